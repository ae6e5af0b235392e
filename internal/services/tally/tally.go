// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package tally computes aggregate results and the anonymised audit view
// from the ballot ledger.
package tally

import (
	"context"
	"fmt"
	"iter"
	"time"

	"codeberg.org/oliverandrich/ballot-ledger/internal/models"
	"codeberg.org/oliverandrich/ballot-ledger/internal/repository"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/credential"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/ledger"
	"golang.org/x/sync/errgroup"
)

// CandidateCount is the vote total of one candidate.
type CandidateCount struct {
	CandidateID string `json:"candidate_id"`
	Name        string `json:"name"`
	Affiliation string `json:"affiliation"`
	Votes       int64  `json:"votes"`
}

type Statistics struct {
	Registered   int64            `json:"registered"`
	Verified     int64            `json:"verified"`
	TotalBallots int64            `json:"total_ballots"`
	Turnout      float64          `json:"turnout"`
	PerCandidate []CandidateCount `json:"per_candidate"`
}

// AuditEntry is one ballot as shown to administrators. It carries no voter
// identity and a timestamp coarsened to the minute.
type AuditEntry struct {
	MaskedReceipt string    `json:"receipt"`
	CandidateName string    `json:"candidate"`
	Timestamp     time.Time `json:"timestamp"`
}

type Service struct {
	repo        *repository.Repository
	credentials *credential.Service
	ledger      *ledger.Service
}

func NewService(repo *repository.Repository, credentials *credential.Service, l *ledger.Service) *Service {
	return &Service{repo: repo, credentials: credentials, ledger: l}
}

// Statistics returns voter counts and per-candidate totals. Every approved
// candidate is listed, with zero when nobody voted for them. The per
// candidate totals always sum to TotalBallots.
func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	stats := &Statistics{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		stats.Registered, stats.Verified, err = s.credentials.Counts(ctx)
		return err
	})

	g.Go(func() error {
		per, total, err := s.countBallots(ctx)
		if err != nil {
			return err
		}
		stats.PerCandidate = per
		stats.TotalBallots = total
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if stats.Verified > 0 {
		stats.Turnout = float64(stats.TotalBallots) / float64(stats.Verified)
	}
	return stats, nil
}

func (s *Service) countBallots(ctx context.Context) ([]CandidateCount, int64, error) {
	approved, err := s.repo.ListCandidates(ctx, models.CandidateApproved)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list candidates: %w", err)
	}

	counts := make(map[string]int64, len(approved))
	var total int64
	for b, err := range s.repo.Ballots(ctx) {
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read ledger: %w", err)
		}
		vote, err := s.ledger.Open(b)
		if err != nil {
			return nil, 0, err
		}
		counts[vote.CandidateID]++
		total++
	}

	per := make([]CandidateCount, 0, len(approved))
	for _, c := range approved {
		per = append(per, CandidateCount{CandidateID: c.ID, Name: c.Name, Affiliation: c.Affiliation, Votes: counts[c.ID]})
		delete(counts, c.ID)
	}

	// Ballots for candidates withdrawn after voting still count.
	for id, n := range counts {
		cc := CandidateCount{CandidateID: id, Name: id, Votes: n}
		if c, err := s.repo.GetCandidate(ctx, id); err == nil {
			cc.Name, cc.Affiliation = c.Name, c.Affiliation
		}
		per = append(per, cc)
	}

	return per, total, nil
}

// AuditView streams the ledger as anonymised entries ordered by receipt.
// Receipts are random, so the order says nothing about when a ballot was
// cast. Each range over the returned sequence reads the ledger afresh.
func (s *Service) AuditView(ctx context.Context) iter.Seq2[AuditEntry, error] {
	return func(yield func(AuditEntry, error) bool) {
		names, err := s.candidateNames(ctx)
		if err != nil {
			yield(AuditEntry{}, err)
			return
		}

		for b, err := range s.repo.BallotsByReceipt(ctx) {
			if err != nil {
				yield(AuditEntry{}, fmt.Errorf("failed to read ledger: %w", err))
				return
			}
			vote, err := s.ledger.Open(b)
			if err != nil {
				yield(AuditEntry{}, err)
				return
			}

			name, ok := names[vote.CandidateID]
			if !ok {
				name = vote.CandidateID
			}
			entry := AuditEntry{
				MaskedReceipt: ledger.MaskReceipt(b.Receipt),
				CandidateName: name,
				Timestamp:     b.SubmittedAt.UTC().Truncate(time.Minute),
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

// VerifyChain re-derives the ledger hash chain.
func (s *Service) VerifyChain(ctx context.Context) (*ledger.ChainReport, error) {
	return s.ledger.VerifyChain(ctx)
}

func (s *Service) candidateNames(ctx context.Context) (map[string]string, error) {
	names := make(map[string]string)
	for _, status := range []models.CandidateStatus{models.CandidateApproved, models.CandidateWithdrawn} {
		cs, err := s.repo.ListCandidates(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("failed to list candidates: %w", err)
		}
		for _, c := range cs {
			names[c.ID] = c.Name
		}
	}
	return names, nil
}
