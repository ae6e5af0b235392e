// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/ballot-ledger/internal/auth"
	"codeberg.org/oliverandrich/ballot-ledger/internal/i18n"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/credential"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/delivery"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/enrollment"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/ledger"
	"github.com/labstack/echo/v4"
)

// RegisterRequest is the body of a voter registration.
type RegisterRequest struct {
	Identifier  string `json:"identifier"`
	FullName    string `json:"full_name"`
	DateOfBirth string `json:"date_of_birth"`
	Mobile      string `json:"mobile"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

// VerifyRequest submits a one-time code.
type VerifyRequest struct {
	Identifier string `json:"identifier"`
	Code       string `json:"code"`
}

// ResendRequest asks for a fresh code.
type ResendRequest struct {
	Identifier string `json:"identifier"`
}

// ChallengeResponse tells the client where the code went.
type ChallengeResponse struct {
	Identifier string           `json:"identifier"`
	SentTo     delivery.Address `json:"sent_to"`
	Delivered  bool             `json:"delivered"`
	Message    string           `json:"message,omitempty"`
}

// ProfileResponse describes the signed-in voter.
type ProfileResponse struct {
	Identifier string `json:"identifier"`
	FullName   string `json:"full_name"`
	Verified   bool   `json:"verified"`
	HasVoted   bool   `json:"has_voted"`

	// Receipt is the voter's own receipt, present once they have voted.
	Receipt *ledger.Receipt `json:"receipt,omitempty"`
}

// RegisterVoter creates an unverified voter and sends the first code.
func (h *Handlers) RegisterVoter(c echo.Context) error {
	var req RegisterRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := h.svc.Enrollment.Enroll(c.Request().Context(), credential.RegisterParams{
		Identifier:  req.Identifier,
		FullName:    req.FullName,
		DateOfBirth: req.DateOfBirth,
		Mobile:      req.Mobile,
		Email:       req.Email,
		Password:    req.Password,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, challengeResponse(c, res))
}

// VerifyVoter consumes a code and marks the voter verified.
func (h *Handlers) VerifyVoter(c echo.Context) error {
	var req VerifyRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	if err := h.svc.Enrollment.Complete(c.Request().Context(), req.Identifier, req.Code); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"identifier": req.Identifier,
		"verified":   true,
	})
}

// ResendCode replaces the live code of an unverified voter.
func (h *Handlers) ResendCode(c echo.Context) error {
	var req ResendRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := h.svc.Enrollment.Resend(c.Request().Context(), req.Identifier)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, challengeResponse(c, res))
}

// Me returns the profile of the signed-in voter.
func (h *Handlers) Me(c echo.Context) error {
	ctx := c.Request().Context()
	p := auth.GetPrincipal(ctx)

	voter, err := h.svc.Credentials.Get(ctx, p.Subject)
	if err != nil {
		return err
	}
	receipt, err := h.svc.Ledger.ReceiptFor(ctx, p)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ProfileResponse{
		Identifier: voter.Identifier,
		FullName:   voter.FullName,
		Verified:   voter.Verified,
		HasVoted:   receipt != nil,
		Receipt:    receipt,
	})
}

func challengeResponse(c echo.Context, res *enrollment.Result) ChallengeResponse {
	resp := ChallengeResponse{
		Identifier: res.Voter.Identifier,
		SentTo:     res.SentTo,
		Delivered:  res.Delivered,
	}
	if !res.Delivered {
		resp.Message = i18n.T(c.Request().Context(), "delivery_failed")
	}
	return resp
}
