// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/oliverandrich/ballot-ledger/internal/database"
	"codeberg.org/oliverandrich/ballot-ledger/internal/models"
	"codeberg.org/oliverandrich/ballot-ledger/internal/repository"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
)

// Test secrets. Never use outside tests.
var (
	Pepper        = []byte("0123456789abcdef0123456789abcdef")
	CommitmentKey = []byte("fedcba9876543210fedcba9876543210")
	LedgerKey     = []byte("abcdefghijklmnopqrstuvwxyz012345")
	HashKey       = []byte("hash-key-for-tests-32-bytes-long")
	BlockKey      = []byte("block-key-for-tests-32-bytes-lng")
)

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// NewFileTestDB creates a file-backed database in a temporary directory.
// Unlike the in-memory variant it uses a real connection pool, which
// concurrency tests need.
func NewFileTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db, repository.New(db)
}

// NewTestVoter inserts a voter with the given identifier. The password hash
// is a placeholder and does not verify against any password.
func NewTestVoter(t *testing.T, repo *repository.Repository, identifier string, verified bool) *models.Voter {
	t.Helper()
	now := time.Now().UTC()
	v := &models.Voter{
		Identifier:   identifier,
		FullName:     "Test Voter " + identifier,
		DateOfBirth:  "1990-01-01",
		Mobile:       "9876543210",
		Email:        "voter@example.com",
		PasswordHash: "placeholder",
		Verified:     verified,
		RegisteredAt: now,
	}
	if verified {
		v.VerifiedAt = &now
	}
	require.NoError(t, repo.CreateVoter(context.Background(), v))
	return v
}

// NewTestCandidate inserts an approved candidate.
func NewTestCandidate(t *testing.T, repo *repository.Repository, id, name string) *models.Candidate {
	t.Helper()
	c := &models.Candidate{
		ID:          id,
		Name:        name,
		Affiliation: "Independent",
		Platform:    "Platform of " + name,
		Status:      models.CandidateApproved,
		UpdatedAt:   time.Now().UTC(),
	}
	require.NoError(t, repo.UpsertCandidate(context.Background(), c))
	return c
}

// Clock is a manually advanced time source.
type Clock struct {
	now time.Time
}

// NewClock returns a clock frozen at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewEchoContextWithHeaders creates an Echo context with custom headers.
func NewEchoContextWithHeaders(e *echo.Echo, method, path string, body io.Reader, headers map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewRequest creates an HTTP request for testing.
func NewRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}
