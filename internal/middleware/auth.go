// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package middleware holds the echo middleware shared by all API routes.
package middleware

import (
	"context"
	"strings"

	"codeberg.org/oliverandrich/ballot-ledger/internal/auth"
	"codeberg.org/oliverandrich/ballot-ledger/internal/models"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/session"
	"github.com/labstack/echo/v4"
)

// TokenValidator resolves a bearer token to its principal.
type TokenValidator interface {
	Validate(ctx context.Context, bearer string) (*models.Principal, error)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate resolves the bearer token and stores the principal in the
// request context. Requests without a valid token are rejected.
func Authenticate(v TokenValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if token == "" {
				return session.ErrUnknown
			}

			p, err := v.Validate(c.Request().Context(), token)
			if err != nil {
				return err
			}

			ctx := auth.WithPrincipal(c.Request().Context(), p, token)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequireRole rejects principals without role. It must run after
// Authenticate.
func RequireRole(role models.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := session.Require(auth.GetPrincipal(c.Request().Context()), role); err != nil {
				return err
			}
			return next(c)
		}
	}
}
