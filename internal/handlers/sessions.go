// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/ballot-ledger/internal/auth"
	"github.com/labstack/echo/v4"
)

// LoginRequest is the body of a voter login.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// AdminLoginRequest is the body of an administrator login.
type AdminLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges voter credentials for a bearer token.
func (h *Handlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	tok, err := h.svc.Sessions.Login(c.Request().Context(), req.Identifier, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tok)
}

// AdminLogin exchanges administrator credentials for a bearer token.
func (h *Handlers) AdminLogin(c echo.Context) error {
	var req AdminLoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	tok, err := h.svc.Sessions.LoginAdmin(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tok)
}

// Logout destroys the session of the presented token.
func (h *Handlers) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.svc.Sessions.Logout(ctx, auth.GetToken(ctx)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
