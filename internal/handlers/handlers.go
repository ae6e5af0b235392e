// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package handlers implements the JSON API.
package handlers

import (
	"context"
	"net/http"
	"time"

	"codeberg.org/oliverandrich/ballot-ledger/internal/database"
	"codeberg.org/oliverandrich/ballot-ledger/internal/repository"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/candidates"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/credential"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/enrollment"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/ledger"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/session"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/tally"
	"codeberg.org/oliverandrich/ballot-ledger/internal/sse"
	"github.com/labstack/echo/v4"
)

// Services are the domain services behind the API.
type Services struct {
	Enrollment  *enrollment.Service
	Credentials *credential.Service
	Sessions    *session.Service
	Candidates  *candidates.Service
	Ledger      *ledger.Service
	Tally       *tally.Service
	Events      *sse.Hub
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	repo *repository.Repository
	svc  Services
}

// New creates a new Handlers instance.
func New(repo *repository.Repository, svc Services) *Handlers {
	return &Handlers{repo: repo, svc: svc}
}

// Health reports liveness and whether the database answers.
func (h *Handlers) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if err := database.Ping(ctx, h.repo.DB()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":   "unavailable",
			"database": "unreachable",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":   "ok",
		"database": "ok",
	})
}

// bind decodes the request body. Malformed bodies are a bad request.
func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest).SetInternal(err)
	}
	return nil
}
