// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package enrollment ties registration, code issuance and delivery together.
package enrollment

import (
	"context"
	"errors"
	"log/slog"

	"codeberg.org/oliverandrich/ballot-ledger/internal/models"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/challenge"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/credential"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/delivery"
)

// Result describes an issued code. Delivered is false when the gateway
// failed; the code stays valid and can be resent.
type Result struct {
	Voter     *models.Voter
	SentTo    delivery.Address
	Delivered bool
}

type Service struct {
	credentials *credential.Service
	challenges  *challenge.Service
	deliverer   delivery.Deliverer
}

func NewService(credentials *credential.Service, challenges *challenge.Service, deliverer delivery.Deliverer) *Service {
	return &Service{
		credentials: credentials,
		challenges:  challenges,
		deliverer:   deliverer,
	}
}

// Enroll registers a voter and sends the first verification code.
func (s *Service) Enroll(ctx context.Context, params credential.RegisterParams) (*Result, error) {
	voter, err := s.credentials.Register(ctx, params)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, voter)
}

// Resend replaces the live code of an unverified voter and sends it again.
func (s *Service) Resend(ctx context.Context, identifier string) (*Result, error) {
	voter, err := s.credentials.Get(ctx, identifier)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return nil, challenge.ErrUnknownIdentity
		}
		return nil, err
	}
	return s.issue(ctx, voter)
}

// Complete checks the code and marks the voter verified.
func (s *Service) Complete(ctx context.Context, identifier, code string) error {
	if err := s.challenges.Verify(ctx, identifier, code); err != nil {
		return err
	}
	return s.credentials.MarkVerified(ctx, identifier)
}

func (s *Service) issue(ctx context.Context, voter *models.Voter) (*Result, error) {
	code, err := s.challenges.Issue(ctx, voter.Identifier)
	if err != nil {
		return nil, err
	}

	to := delivery.Address{Email: voter.Email, Mobile: voter.Mobile}
	res := &Result{Voter: voter, SentTo: to.Masked(), Delivered: true}

	if err := s.deliverer.Deliver(ctx, to, code); err != nil {
		slog.Error("otp_delivery_failed", "identifier", voter.Identifier, "error", err)
		res.Delivered = false
	}
	return res, nil
}
