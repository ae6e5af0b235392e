// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package credential is the credential store: voter registration, password
// verification and the verified flag.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"codeberg.org/oliverandrich/ballot-ledger/internal/database"
	"codeberg.org/oliverandrich/ballot-ledger/internal/metrics"
	"codeberg.org/oliverandrich/ballot-ledger/internal/models"
	"codeberg.org/oliverandrich/ballot-ledger/internal/repository"
)

var (
	ErrDuplicateIdentity = errors.New("identity already registered")
	ErrNotFound          = errors.New("identity not found")
	ErrNotVerified       = errors.New("identity not verified")
	ErrBadPassword       = errors.New("password mismatch")
	ErrAlreadyVerified   = errors.New("identity already verified")
)

// MinVoterAge is the minimum age on the registration day.
const MinVoterAge = 18

type Service struct {
	repo      *repository.Repository
	hasher    *Hasher
	policy    *PasswordPolicy
	metrics   *metrics.Metrics
	now       func() time.Time
	dummyHash string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics records registrations and verifications.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(repo *repository.Repository, hasher *Hasher, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		hasher: hasher,
		policy: DefaultPasswordPolicy(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	// Compared against on unknown identities so that both paths cost one
	// Argon2 derivation.
	s.dummyHash, _ = hasher.Hash("dummy-password-for-timing")
	return s
}

// Hasher returns the password hasher for use by other authorities.
func (s *Service) Hasher() *Hasher {
	return s.hasher
}

// RegisterParams holds the parameters for voter registration
type RegisterParams struct {
	Identifier  string
	FullName    string
	DateOfBirth string
	Mobile      string
	Email       string
	Password    string
}

// Validate normalises p in place and returns a *ValidationError listing every
// rejected field.
func (s *Service) Validate(p *RegisterParams) error {
	verr := &ValidationError{}

	id, err := NormalizeIdentifier(p.Identifier)
	if err != nil {
		verr.add("identifier", "invalid_identifier")
	}
	p.Identifier = id
	p.FullName = strings.TrimSpace(p.FullName)
	p.Email = strings.TrimSpace(p.Email)
	p.Mobile = strings.TrimSpace(p.Mobile)

	if p.FullName == "" {
		verr.add("full_name", "required")
	}
	if !ValidEmail(p.Email) {
		verr.add("email", "invalid_email")
	}
	if !ValidMobile(p.Mobile) {
		verr.add("mobile", "invalid_mobile")
	}
	if age, err := AgeOn(p.DateOfBirth, s.now().UTC()); err != nil {
		verr.add("date_of_birth", "invalid_date")
	} else if age < MinVoterAge {
		verr.add("date_of_birth", "underage")
	}
	for _, code := range s.policy.Validate(p.Password, p.Identifier, p.Email, p.FullName) {
		verr.add("password", code)
	}

	return verr.err()
}

// Register creates an unverified voter. Of several concurrent registrations
// for the same identifier exactly one succeeds; the others get
// ErrDuplicateIdentity.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*models.Voter, error) {
	if err := s.Validate(&params); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	voter := &models.Voter{
		Identifier:   params.Identifier,
		FullName:     params.FullName,
		DateOfBirth:  params.DateOfBirth,
		Mobile:       params.Mobile,
		Email:        params.Email,
		PasswordHash: passwordHash,
		RegisteredAt: s.now().UTC(),
	}

	if err := s.repo.CreateVoter(ctx, voter); err != nil {
		if database.IsUniqueViolation(err) {
			slog.Warn("register_failed", "reason", "duplicate_identity")
			return nil, ErrDuplicateIdentity
		}
		return nil, fmt.Errorf("failed to create voter: %w", err)
	}

	s.metrics.IncVoterRegistered()
	slog.Info("register_success", "identifier", voter.Identifier)

	return voter, nil
}

// VerifyCredential checks the password of a verified voter.
func (s *Service) VerifyCredential(ctx context.Context, identifier, password string) (*models.Voter, error) {
	id, err := NormalizeIdentifier(identifier)
	if err != nil {
		return nil, err
	}

	voter, err := s.repo.GetVoter(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_, _ = s.hasher.Verify(s.dummyHash, password)
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get voter: %w", err)
	}

	ok, err := s.hasher.Verify(voter.PasswordHash, password)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return nil, ErrBadPassword
	}
	if !voter.Verified {
		return nil, ErrNotVerified
	}

	return voter, nil
}

// MarkVerified sets the verified flag. It never moves back.
func (s *Service) MarkVerified(ctx context.Context, identifier string) error {
	id, err := NormalizeIdentifier(identifier)
	if err != nil {
		return err
	}

	updated, err := s.repo.MarkVoterVerified(ctx, id, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark voter verified: %w", err)
	}
	if updated {
		s.metrics.IncVoterVerified()
		slog.Info("voter_verified", "identifier", id)
		return nil
	}

	if _, err := s.repo.GetVoter(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get voter: %w", err)
	}
	return ErrAlreadyVerified
}

// Get returns a voter by identifier.
func (s *Service) Get(ctx context.Context, identifier string) (*models.Voter, error) {
	id, err := NormalizeIdentifier(identifier)
	if err != nil {
		return nil, err
	}
	voter, err := s.repo.GetVoter(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get voter: %w", err)
	}
	return voter, nil
}

// Counts returns the number of registered and verified voters.
func (s *Service) Counts(ctx context.Context) (registered, verified int64, err error) {
	registered, verified, err = s.repo.CountVoters(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count voters: %w", err)
	}
	return registered, verified, nil
}
