// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package candidates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"codeberg.org/oliverandrich/ballot-ledger/internal/models"
	"codeberg.org/oliverandrich/ballot-ledger/internal/repository"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/credential"
	"github.com/google/uuid"
)

const (
	// MinCandidateAge is the minimum age to stand for election.
	MinCandidateAge = 25
	// MinPlatformLength is the minimum length of a platform statement.
	MinPlatformLength = 100
)

// Action is a review decision on an application.
type Action string

const (
	ActionVerify  Action = "verify"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ApplicationParams holds a nomination as submitted.
type ApplicationParams struct {
	FullName     string
	DateOfBirth  string
	Email        string
	Mobile       string
	Constituency string
	VoterID      string
	Affiliation  string
	Platform     string
}

func (s *Service) validate(p *ApplicationParams) error {
	verr := &credential.ValidationError{}
	add := func(field, code string) {
		verr.Errors = append(verr.Errors, credential.FieldError{Field: field, Code: code})
	}

	p.FullName = strings.TrimSpace(p.FullName)
	p.Email = strings.TrimSpace(p.Email)
	p.Mobile = strings.TrimSpace(p.Mobile)
	p.Constituency = strings.TrimSpace(p.Constituency)
	p.Affiliation = strings.TrimSpace(p.Affiliation)
	p.Platform = strings.TrimSpace(p.Platform)

	if p.FullName == "" {
		add("full_name", "required")
	}
	if age, err := credential.AgeOn(p.DateOfBirth, s.now().UTC()); err != nil {
		add("date_of_birth", "invalid_date")
	} else if age < MinCandidateAge {
		add("date_of_birth", "candidate_underage")
	}
	if !credential.ValidEmail(p.Email) {
		add("email", "invalid_email")
	}
	if !credential.ValidMobile(p.Mobile) {
		add("mobile", "invalid_mobile")
	}
	if p.Constituency == "" {
		add("constituency", "required")
	}
	if id, err := credential.NormalizeIdentifier(p.VoterID); err != nil {
		add("voter_id", "invalid_identifier")
	} else {
		p.VoterID = id
	}
	if len([]rune(p.Platform)) < MinPlatformLength {
		add("platform", "platform_too_short")
	}

	if len(verr.Errors) > 0 {
		return verr
	}
	return nil
}

// Submit records a pending application.
func (s *Service) Submit(ctx context.Context, p ApplicationParams) (*models.CandidateApplication, error) {
	if err := s.validate(&p); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	app := &models.CandidateApplication{
		ID:           uuid.NewString(),
		FullName:     p.FullName,
		DateOfBirth:  p.DateOfBirth,
		Email:        p.Email,
		Mobile:       p.Mobile,
		Constituency: p.Constituency,
		VoterID:      p.VoterID,
		Affiliation:  p.Affiliation,
		Platform:     p.Platform,
		Status:       models.ApplicationPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateApplication(ctx, app); err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	slog.Info("application_submitted", "application_id", app.ID)
	return app, nil
}

// Review applies action to an application. Pending applications can be
// verified or rejected, verified ones approved or rejected. Approval adds the
// candidate to the ballot.
func (s *Service) Review(ctx context.Context, id string, action Action, reason string) (*models.CandidateApplication, error) {
	var next models.ApplicationStatus
	switch action {
	case ActionVerify:
		next = models.ApplicationVerified
	case ActionApprove:
		next = models.ApplicationApproved
	case ActionReject:
		next = models.ApplicationRejected
	default:
		return nil, ErrUnknownAction
	}

	var app *models.CandidateApplication
	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		var err error
		app, err = tx.GetApplication(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !canTransition(app.Status, next) {
			return ErrInvalidTransition
		}

		now := s.now().UTC()
		app.Status = next
		app.Reason = strings.TrimSpace(reason)
		app.UpdatedAt = now

		if next == models.ApplicationApproved {
			c := &models.Candidate{
				ID:          "candidate-" + app.ID[:8],
				Name:        app.FullName,
				Affiliation: app.Affiliation,
				Platform:    app.Platform,
				Status:      models.CandidateApproved,
				UpdatedAt:   now,
			}
			if err := tx.UpsertCandidate(ctx, c); err != nil {
				return err
			}
			app.CandidateID = &c.ID
		}

		return tx.UpdateApplicationStatus(ctx, app)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidTransition) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to review application: %w", err)
	}

	slog.Info("application_reviewed", "application_id", app.ID, "status", app.Status)
	return app, nil
}

// ListApplications returns applications with the given status, or all of
// them when status is empty.
func (s *Service) ListApplications(ctx context.Context, status models.ApplicationStatus) ([]models.CandidateApplication, error) {
	apps, err := s.repo.ListApplications(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return apps, nil
}

func canTransition(from, to models.ApplicationStatus) bool {
	switch from {
	case models.ApplicationPending:
		return to == models.ApplicationVerified || to == models.ApplicationRejected
	case models.ApplicationVerified:
		return to == models.ApplicationApproved || to == models.ApplicationRejected
	}
	return false
}
