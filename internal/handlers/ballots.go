// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/ballot-ledger/internal/auth"
	"codeberg.org/oliverandrich/ballot-ledger/internal/models"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/candidates"
	"github.com/labstack/echo/v4"
)

// CastRequest carries the voter's choice.
type CastRequest struct {
	CandidateID string `json:"candidate_id"`
}

// ApplicationRequest is a candidate nomination.
type ApplicationRequest struct {
	FullName     string `json:"full_name"`
	DateOfBirth  string `json:"date_of_birth"`
	Email        string `json:"email"`
	Mobile       string `json:"mobile"`
	Constituency string `json:"constituency"`
	VoterID      string `json:"voter_id"`
	Affiliation  string `json:"affiliation"`
	Platform     string `json:"platform"`
}

// Candidates lists the approved candidates.
func (h *Handlers) Candidates(c echo.Context) error {
	list, err := h.svc.Candidates.Approved(c.Request().Context())
	if err != nil {
		return err
	}
	if list == nil {
		list = []models.Candidate{}
	}
	return c.JSON(http.StatusOK, map[string]any{"candidates": list})
}

// SubmitApplication records a candidate nomination for review.
func (h *Handlers) SubmitApplication(c echo.Context) error {
	var req ApplicationRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	app, err := h.svc.Candidates.Submit(c.Request().Context(), candidates.ApplicationParams{
		FullName:     req.FullName,
		DateOfBirth:  req.DateOfBirth,
		Email:        req.Email,
		Mobile:       req.Mobile,
		Constituency: req.Constituency,
		VoterID:      req.VoterID,
		Affiliation:  req.Affiliation,
		Platform:     req.Platform,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, app)
}

// CastBallot records the signed-in voter's choice and returns the receipt.
func (h *Handlers) CastBallot(c echo.Context) error {
	var req CastRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	receipt, err := h.svc.Ledger.CastVote(ctx, auth.GetPrincipal(ctx), req.CandidateID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, receipt)
}
