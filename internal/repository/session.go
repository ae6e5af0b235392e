// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/ballot-ledger/internal/models"
)

// CreateSession stores a new session.
func (r *Repository) CreateSession(ctx context.Context, s *models.Session) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO sessions (token_hash, subject, role, issued_at, last_seen_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.TokenHash, s.Subject, s.Role, s.IssuedAt.UTC(), s.LastSeenAt.UTC(), s.ExpiresAt.UTC())
	return err
}

// GetSession retrieves a session by token hash.
func (r *Repository) GetSession(ctx context.Context, tokenHash string) (*models.Session, error) {
	var s models.Session
	if err := r.q.GetContext(ctx, &s, `SELECT * FROM sessions WHERE token_hash = ?`, tokenHash); err != nil {
		return nil, wrapError(err)
	}
	return &s, nil
}

// TouchSession records activity and moves the expiry forward.
func (r *Repository) TouchSession(ctx context.Context, tokenHash string, lastSeen, expiresAt time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE sessions SET last_seen_at = ?, expires_at = ? WHERE token_hash = ?`,
		lastSeen.UTC(), expiresAt.UTC(), tokenHash)
	return err
}

// DeleteSession removes a session by token hash.
func (r *Repository) DeleteSession(ctx context.Context, tokenHash string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, tokenHash)
	return err
}

// DeleteExpiredSessions deletes sessions that expired before now.
func (r *Repository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
