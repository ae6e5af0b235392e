// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package middleware

import (
	"codeberg.org/oliverandrich/ballot-ledger/internal/i18n"
	"github.com/labstack/echo/v4"
)

// Locale picks the best catalog for Accept-Language, stores it in the
// request context and announces it in Content-Language.
func Locale() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			tag := i18n.MatchLanguage(req.Header.Get("Accept-Language"))
			ctx := i18n.WithLocale(req.Context(), tag)
			c.SetRequest(req.WithContext(ctx))

			h := c.Response().Header()
			h.Set("Content-Language", i18n.GetLocale(ctx))
			h.Add(echo.HeaderVary, "Accept-Language")
			return next(c)
		}
	}
}
