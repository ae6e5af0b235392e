// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"codeberg.org/oliverandrich/ballot-ledger/internal/handlers"
	"codeberg.org/oliverandrich/ballot-ledger/internal/middleware"
	"codeberg.org/oliverandrich/ballot-ledger/internal/models"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func setupRoutes(e *echo.Echo, h *handlers.Handlers, tokens middleware.TokenValidator, gatherer prometheus.Gatherer) {
	e.GET("/health", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := e.Group("/api/v1")

	// Public
	api.POST("/voters", h.RegisterVoter)
	api.POST("/voters/verify", h.VerifyVoter)
	api.POST("/voters/resend", h.ResendCode)
	api.POST("/sessions", h.Login)
	api.POST("/admin/sessions", h.AdminLogin)
	api.GET("/candidates", h.Candidates)
	api.POST("/candidate-applications", h.SubmitApplication)

	authn := middleware.Authenticate(tokens)

	// Any signed-in principal
	api.DELETE("/sessions", h.Logout, authn)

	// Voters
	voter := api.Group("", authn, middleware.RequireRole(models.RoleVoter))
	voter.GET("/me", h.Me)
	voter.POST("/ballots", h.CastBallot)

	// Administrators
	admin := api.Group("/admin", authn, middleware.RequireRole(models.RoleAdmin))
	admin.GET("/statistics", h.Statistics)
	admin.GET("/audit", h.Audit)
	admin.GET("/events", h.Events)
	admin.GET("/ledger/verify", h.VerifyLedger)
	admin.GET("/candidate-applications", h.ListApplications)
	admin.POST("/candidate-applications/:id/:action", h.ReviewApplication)
}
