// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session is the session authority: it exchanges credentials for
// opaque bearer tokens and resolves tokens back to principals.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/ballot-ledger/internal/config"
	"codeberg.org/oliverandrich/ballot-ledger/internal/database"
	"codeberg.org/oliverandrich/ballot-ledger/internal/metrics"
	"codeberg.org/oliverandrich/ballot-ledger/internal/models"
	"codeberg.org/oliverandrich/ballot-ledger/internal/repository"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/credential"
	"github.com/gorilla/securecookie"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotVerified        = errors.New("identity not verified")
	ErrExpired            = errors.New("session expired")
	ErrUnknown            = errors.New("unknown session")
	ErrForbidden          = errors.New("forbidden")
)

const (
	tokenName   = "ballot_token"
	tokenLength = 32
)

// Token is a freshly issued bearer credential. Value is only ever returned
// here; the store keeps a digest.
type Token struct {
	Value     string      `json:"token"`
	Subject   string      `json:"subject"`
	Role      models.Role `json:"role"`
	ExpiresAt time.Time   `json:"expires_at"`
}

type Service struct {
	repo        *repository.Repository
	credentials *credential.Service
	codec       *securecookie.SecureCookie
	idleTimeout time.Duration
	maxAge      time.Duration
	now         func() time.Time
	metrics     *metrics.Metrics
	dummyHash   string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics records login outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates the session authority. Tokens are signed with the hash
// key and, when a block key is configured, encrypted.
func NewService(repo *repository.Repository, credentials *credential.Service, cfg *config.SessionConfig, opts ...Option) (*Service, error) {
	hashKey, generated, err := config.DecodeKey("session hash key", cfg.HashKey)
	if err != nil {
		return nil, err
	}
	if generated {
		slog.Warn("session hash key not configured, tokens will not survive a restart")
	}

	var blockKey []byte
	if cfg.BlockKey != "" {
		blockKey, _, err = config.DecodeKey("session block key", cfg.BlockKey)
		if err != nil {
			return nil, err
		}
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.SetSerializer(securecookie.JSONEncoder{})
	codec.MaxAge(int(cfg.MaxAge.Seconds()))

	s := &Service{
		repo:        repo,
		credentials: credentials,
		codec:       codec,
		idleTimeout: cfg.IdleTimeout,
		maxAge:      cfg.MaxAge,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.dummyHash, _ = credentials.Hasher().Hash("dummy-password-for-timing")
	return s, nil
}

// Login authenticates a verified voter.
func (s *Service) Login(ctx context.Context, identifier, password string) (*Token, error) {
	voter, err := s.credentials.VerifyCredential(ctx, identifier, password)
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrNotVerified):
			s.metrics.ObserveLogin(string(models.RoleVoter), "not_verified")
			slog.Warn("login_failed", "role", models.RoleVoter, "reason", "not_verified")
			return nil, ErrNotVerified
		case errors.Is(err, credential.ErrNotFound),
			errors.Is(err, credential.ErrBadPassword),
			errors.Is(err, credential.ErrInvalidFormat):
			s.metrics.ObserveLogin(string(models.RoleVoter), "invalid_credentials")
			slog.Warn("login_failed", "role", models.RoleVoter, "reason", "invalid_credentials")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	tok, err := s.issue(ctx, voter.Identifier, models.RoleVoter)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveLogin(string(models.RoleVoter), "success")
	slog.Info("login_success", "role", models.RoleVoter, "identifier", voter.Identifier)
	return tok, nil
}

// LoginAdmin authenticates an administrator.
func (s *Service) LoginAdmin(ctx context.Context, username, password string) (*Token, error) {
	hasher := s.credentials.Hasher()

	admin, err := s.repo.GetAdmin(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_, _ = hasher.Verify(s.dummyHash, password)
			s.metrics.ObserveLogin(string(models.RoleAdmin), "invalid_credentials")
			slog.Warn("login_failed", "role", models.RoleAdmin, "reason", "user_not_found")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}

	ok, err := hasher.Verify(admin.PasswordHash, password)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		s.metrics.ObserveLogin(string(models.RoleAdmin), "invalid_credentials")
		slog.Warn("login_failed", "role", models.RoleAdmin, "reason", "invalid_password")
		return nil, ErrInvalidCredentials
	}

	tok, err := s.issue(ctx, admin.Username, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveLogin(string(models.RoleAdmin), "success")
	slog.Info("login_success", "role", models.RoleAdmin, "username", admin.Username)
	return tok, nil
}

func (s *Service) issue(ctx context.Context, subject string, role models.Role) (*Token, error) {
	raw := make([]byte, tokenLength)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	id := hex.EncodeToString(raw)

	value, err := s.codec.Encode(tokenName, id)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token: %w", err)
	}

	now := s.now().UTC()
	sess := &models.Session{
		TokenHash:  hashToken(id),
		Subject:    subject,
		Role:       role,
		IssuedAt:   now,
		LastSeenAt: now,
		ExpiresAt:  s.expiry(now, now),
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &Token{Value: value, Subject: subject, Role: role, ExpiresAt: sess.ExpiresAt}, nil
}

// Validate resolves a bearer token to its principal and extends the
// inactivity window. An expired session is purged.
func (s *Service) Validate(ctx context.Context, bearer string) (*models.Principal, error) {
	id, ok := s.decode(bearer)
	if !ok {
		return nil, ErrUnknown
	}
	hash := hashToken(id)

	sess, err := s.repo.GetSession(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnknown
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	now := s.now().UTC()
	if !now.Before(sess.ExpiresAt) {
		if err := s.repo.DeleteSession(ctx, hash); err != nil {
			return nil, fmt.Errorf("failed to delete session: %w", err)
		}
		slog.Info("session_expired", "role", sess.Role)
		return nil, ErrExpired
	}

	if err := s.repo.TouchSession(ctx, hash, now, s.expiry(sess.IssuedAt, now)); err != nil {
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}

	return &models.Principal{Subject: sess.Subject, Role: sess.Role}, nil
}

// Logout destroys the session behind bearer. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, bearer string) error {
	id, ok := s.decode(bearer)
	if !ok {
		return nil
	}
	if err := s.repo.DeleteSession(ctx, hashToken(id)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Require checks that p holds role.
func Require(p *models.Principal, role models.Role) error {
	if p == nil {
		return ErrUnknown
	}
	if p.Role != role {
		return ErrForbidden
	}
	return nil
}

// EnsureAdmin creates the configured administrator when it does not exist.
// An empty password leaves the admins table untouched.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		slog.Warn("admin credentials not configured, admin login disabled")
		return nil
	}

	if _, err := s.repo.GetAdmin(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("failed to get admin: %w", err)
	}

	hash, err := s.credentials.Hasher().Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	err = s.repo.CreateAdmin(ctx, &models.Admin{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil && !database.IsUniqueViolation(err) {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	slog.Info("admin_created", "username", username)
	return nil
}

// PurgeExpired deletes expired sessions.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpiredSessions(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	return n, nil
}

func (s *Service) decode(bearer string) (string, bool) {
	if bearer == "" {
		return "", false
	}
	var id string
	if err := s.codec.Decode(tokenName, bearer, &id); err != nil {
		return "", false
	}
	return id, len(id) == 2*tokenLength
}

// expiry is the earlier of the idle deadline and the absolute deadline.
func (s *Service) expiry(issued, lastSeen time.Time) time.Time {
	idle := lastSeen.Add(s.idleTimeout)
	absolute := issued.Add(s.maxAge)
	if idle.Before(absolute) {
		return idle
	}
	return absolute
}

func hashToken(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}
