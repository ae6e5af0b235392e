// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package challenge issues and verifies one-time verification codes.
package challenge

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"codeberg.org/oliverandrich/ballot-ledger/internal/keylock"
	"codeberg.org/oliverandrich/ballot-ledger/internal/metrics"
	"codeberg.org/oliverandrich/ballot-ledger/internal/models"
	"codeberg.org/oliverandrich/ballot-ledger/internal/repository"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/credential"
)

var (
	ErrUnknownIdentity   = errors.New("unknown identity")
	ErrAlreadyVerified   = errors.New("identity already verified")
	ErrNoActiveChallenge = errors.New("no active challenge")
	ErrExpired           = errors.New("challenge expired")
	ErrMismatch          = errors.New("code mismatch")
	ErrThrottled         = errors.New("too many failed attempts")
	ErrResendTooSoon     = errors.New("resend requested too soon")
)

// CodeDigits is the length of a verification code.
const CodeDigits = 6

// Config holds the challenge timing and throttling parameters. A zero
// ResendCooldown disables the cooldown; a zero MaxAttempts disables
// throttling.
type Config struct {
	TTL            time.Duration
	ResendCooldown time.Duration
	MaxAttempts    int
	AttemptWindow  time.Duration
	Lockout        time.Duration
}

type Service struct {
	repo    *repository.Repository
	key     []byte
	cfg     Config
	now     func() time.Time
	metrics *metrics.Metrics
	locks   *keylock.Locker
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics records issued codes and verification results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a challenge service. key keys the stored code hashes.
func NewService(repo *repository.Repository, key []byte, cfg Config, opts ...Option) *Service {
	s := &Service{
		repo:  repo,
		key:   key,
		cfg:   cfg,
		now:   time.Now,
		locks: keylock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue creates a fresh code for an unverified identity, replacing any live
// one, and returns the plaintext code for delivery.
func (s *Service) Issue(ctx context.Context, identifier string) (string, error) {
	id, err := credential.NormalizeIdentifier(identifier)
	if err != nil {
		return "", err
	}
	now := s.now().UTC()

	if locked, err := s.locked(ctx, s.repo, id, now); err != nil {
		return "", err
	} else if locked {
		return "", ErrThrottled
	}

	voter, err := s.repo.GetVoter(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrUnknownIdentity
		}
		return "", fmt.Errorf("failed to get voter: %w", err)
	}
	if voter.Verified {
		return "", ErrAlreadyVerified
	}

	if s.cfg.ResendCooldown > 0 {
		existing, err := s.repo.GetChallenge(ctx, id)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("failed to get challenge: %w", err)
		}
		if existing != nil && now.Before(existing.IssuedAt.Add(s.cfg.ResendCooldown)) {
			return "", ErrResendTooSoon
		}
	}

	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}

	ch := &models.Challenge{
		Identifier: id,
		CodeHash:   s.hashCode(id, code),
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.cfg.TTL),
	}
	if err := s.repo.UpsertChallenge(ctx, ch); err != nil {
		return "", fmt.Errorf("failed to store challenge: %w", err)
	}

	s.metrics.IncChallengeIssued()
	slog.Info("challenge_issued", "identifier", id, "expires_at", ch.ExpiresAt)

	return code, nil
}

// Verify checks a submitted code. A matching code is consumed; a second
// submission of the same code fails with ErrNoActiveChallenge.
func (s *Service) Verify(ctx context.Context, identifier, code string) error {
	id, err := credential.NormalizeIdentifier(identifier)
	if err != nil {
		return err
	}
	now := s.now().UTC()

	result, err := s.verify(ctx, id, strings.TrimSpace(code), now)
	s.metrics.ObserveVerification(result)
	if err != nil {
		slog.Warn("challenge_failed", "identifier", id, "reason", result)
		return err
	}

	slog.Info("challenge_verified", "identifier", id)
	return nil
}

// verify runs at most one attempt per identity at a time, each inside one
// write transaction.
func (s *Service) verify(ctx context.Context, id, code string, now time.Time) (string, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return "error", err
	}
	defer unlock()

	var (
		result  string
		outcome error
	)
	err = s.repo.InTx(ctx, func(tx *repository.Repository) error {
		result, outcome = s.attempt(ctx, tx, id, code, now)
		if result == "error" {
			return outcome
		}
		return nil
	})
	if err != nil {
		return "error", err
	}
	return result, outcome
}

func (s *Service) attempt(ctx context.Context, tx *repository.Repository, id, code string, now time.Time) (string, error) {
	if locked, err := s.locked(ctx, tx, id, now); err != nil {
		return "error", err
	} else if locked {
		return "throttled", ErrThrottled
	}

	ch, err := tx.GetChallenge(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "no_challenge", ErrNoActiveChallenge
		}
		return "error", fmt.Errorf("failed to get challenge: %w", err)
	}

	if ch.ExpiredAt(now) {
		if _, err := tx.DeleteChallenge(ctx, id); err != nil {
			return "error", fmt.Errorf("failed to purge challenge: %w", err)
		}
		return "expired", ErrExpired
	}

	if !hmac.Equal([]byte(s.hashCode(id, code)), []byte(ch.CodeHash)) {
		locked, err := s.recordFailure(ctx, tx, id, now)
		if err != nil {
			return "error", err
		}
		if locked {
			return "throttled", ErrThrottled
		}
		return "mismatch", ErrMismatch
	}

	consumed, err := tx.DeleteChallenge(ctx, id)
	if err != nil {
		return "error", fmt.Errorf("failed to consume challenge: %w", err)
	}
	if !consumed {
		return "no_challenge", ErrNoActiveChallenge
	}

	if err := tx.ClearLockout(ctx, id); err != nil {
		return "error", fmt.Errorf("failed to clear failures: %w", err)
	}
	return "success", nil
}

func (s *Service) locked(ctx context.Context, repo *repository.Repository, id string, now time.Time) (bool, error) {
	if s.cfg.MaxAttempts <= 0 {
		return false, nil
	}
	l, err := repo.GetLockout(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to get lockout: %w", err)
	}
	return l != nil && l.IsLockedAt(now), nil
}

// recordFailure counts a failed attempt and reports whether it locked the
// identity. Reaching the limit destroys the live challenge.
func (s *Service) recordFailure(ctx context.Context, tx *repository.Repository, id string, now time.Time) (bool, error) {
	if s.cfg.MaxAttempts <= 0 {
		return false, nil
	}

	l, err := tx.UpdateLockout(ctx, id, func(l *models.ChallengeLockout) {
		expiredLock := l.LockedUntil != nil && !now.Before(*l.LockedUntil)
		if l.FailureCount == 0 || expiredLock || now.Sub(l.WindowStart) >= s.cfg.AttemptWindow {
			l.FailureCount = 0
			l.WindowStart = now
			l.LockedUntil = nil
		}
		l.FailureCount++
		l.LastFailureAt = now
		if l.FailureCount >= s.cfg.MaxAttempts {
			until := now.Add(s.cfg.Lockout)
			l.LockedUntil = &until
		}
	})
	if err != nil {
		return false, fmt.Errorf("failed to record failure: %w", err)
	}

	if !l.IsLockedAt(now) {
		return false, nil
	}
	if _, err := tx.DeleteChallenge(ctx, id); err != nil {
		return true, fmt.Errorf("failed to destroy challenge: %w", err)
	}
	slog.Warn("challenge_locked", "identifier", id, "locked_until", l.LockedUntil)
	return true, nil
}

// PurgeExpired removes expired challenges and failure records older than the
// attempt window.
func (s *Service) PurgeExpired(ctx context.Context) (challenges, lockouts int64, err error) {
	now := s.now().UTC()
	challenges, err = s.repo.DeleteExpiredChallenges(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to purge challenges: %w", err)
	}
	lockouts, err = s.repo.DeleteStaleLockouts(ctx, now.Add(-s.cfg.AttemptWindow), now)
	if err != nil {
		return challenges, 0, fmt.Errorf("failed to purge lockouts: %w", err)
	}
	return challenges, lockouts, nil
}

func (s *Service) hashCode(id, code string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(id))
	mac.Write([]byte{0})
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", CodeDigits, n.Int64()), nil
}
