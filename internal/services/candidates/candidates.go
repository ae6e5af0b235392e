// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package candidates maintains the approved candidate feed and the
// nomination workflow that publishes into it.
package candidates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"codeberg.org/oliverandrich/ballot-ledger/internal/models"
	"codeberg.org/oliverandrich/ballot-ledger/internal/repository"
	"github.com/BurntSushi/toml"
)

var (
	ErrNotFound          = errors.New("candidate not found")
	ErrInvalidTransition = errors.New("invalid application transition")
	ErrUnknownAction     = errors.New("unknown review action")
)

// Feed is the on-disk format of a candidate file.
type Feed struct {
	Candidates []models.Candidate `toml:"candidates"`
}

type Service struct {
	repo *repository.Repository
	now  func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo *repository.Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadFile reads a TOML candidate feed.
func LoadFile(path string) ([]models.Candidate, error) {
	var feed Feed
	if _, err := toml.DecodeFile(path, &feed); err != nil {
		return nil, fmt.Errorf("failed to read candidate feed: %w", err)
	}
	return feed.Candidates, nil
}

// Import upserts a feed in one transaction. Entries without a status are
// approved.
func (s *Service) Import(ctx context.Context, cs []models.Candidate) error {
	now := s.now().UTC()
	for i := range cs {
		c := &cs[i]
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" || strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("candidate %d: id and name are required", i+1)
		}
		if c.Status == "" {
			c.Status = models.CandidateApproved
		}
		if c.Status != models.CandidateApproved && c.Status != models.CandidateWithdrawn {
			return fmt.Errorf("candidate %s: unknown status %q", c.ID, c.Status)
		}
		c.UpdatedAt = now
	}

	err := s.repo.InTx(ctx, func(tx *repository.Repository) error {
		for i := range cs {
			if err := tx.UpsertCandidate(ctx, &cs[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to import candidates: %w", err)
	}

	slog.Info("candidates_imported", "count", len(cs))
	return nil
}

// Approved returns the candidates on the ballot.
func (s *Service) Approved(ctx context.Context) ([]models.Candidate, error) {
	cs, err := s.repo.ListCandidates(ctx, models.CandidateApproved)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	return cs, nil
}

// Get returns an approved candidate. Withdrawn candidates are reported as
// not found.
func (s *Service) Get(ctx context.Context, id string) (*models.Candidate, error) {
	c, err := s.repo.GetCandidate(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	if c.Status != models.CandidateApproved {
		return nil, ErrNotFound
	}
	return c, nil
}
