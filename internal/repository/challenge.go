// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"errors"
	"time"

	"codeberg.org/oliverandrich/ballot-ledger/internal/models"
)

// UpsertChallenge stores c as the only live challenge for its identifier,
// replacing any previous one.
func (r *Repository) UpsertChallenge(ctx context.Context, c *models.Challenge) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO challenges (identifier, code_hash, issued_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (identifier) DO UPDATE SET
			code_hash = excluded.code_hash,
			issued_at = excluded.issued_at,
			expires_at = excluded.expires_at`,
		c.Identifier, c.CodeHash, c.IssuedAt.UTC(), c.ExpiresAt.UTC())
	return err
}

// GetChallenge retrieves the live challenge for an identifier.
func (r *Repository) GetChallenge(ctx context.Context, identifier string) (*models.Challenge, error) {
	var c models.Challenge
	if err := r.q.GetContext(ctx, &c, `SELECT * FROM challenges WHERE identifier = ?`, identifier); err != nil {
		return nil, wrapError(err)
	}
	return &c, nil
}

// DeleteChallenge removes the challenge for an identifier. It reports whether
// a row was removed, which lets exactly one of two racing verifications win.
func (r *Repository) DeleteChallenge(ctx context.Context, identifier string) (bool, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM challenges WHERE identifier = ?`, identifier)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteExpiredChallenges deletes challenges that expired before now.
func (r *Repository) DeleteExpiredChallenges(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM challenges WHERE expires_at < ?`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetLockout returns the failure record for an identifier, or nil when none
// exists.
func (r *Repository) GetLockout(ctx context.Context, identifier string) (*models.ChallengeLockout, error) {
	var l models.ChallengeLockout
	err := r.q.GetContext(ctx, &l, `SELECT * FROM challenge_lockouts WHERE identifier = ?`, identifier)
	if err != nil {
		if errors.Is(wrapError(err), ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

// UpdateLockout loads (or zero-initialises) the failure record, applies fn and
// writes it back inside one transaction so concurrent failures cannot be lost.
func (r *Repository) UpdateLockout(ctx context.Context, identifier string, fn func(l *models.ChallengeLockout)) (*models.ChallengeLockout, error) {
	var out *models.ChallengeLockout
	err := r.InTx(ctx, func(tx *Repository) error {
		current, err := tx.GetLockout(ctx, identifier)
		if err != nil {
			return err
		}
		if current == nil {
			current = &models.ChallengeLockout{Identifier: identifier}
		}
		fn(current)

		var lockedUntil any
		if current.LockedUntil != nil {
			lockedUntil = current.LockedUntil.UTC()
		}
		_, err = tx.q.ExecContext(ctx,
			`INSERT INTO challenge_lockouts (identifier, failure_count, window_start, last_failure_at, locked_until)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (identifier) DO UPDATE SET
				failure_count = excluded.failure_count,
				window_start = excluded.window_start,
				last_failure_at = excluded.last_failure_at,
				locked_until = excluded.locked_until`,
			current.Identifier, current.FailureCount, current.WindowStart.UTC(), current.LastFailureAt.UTC(), lockedUntil)
		if err != nil {
			return err
		}
		out = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ClearLockout removes the failure record for an identifier.
func (r *Repository) ClearLockout(ctx context.Context, identifier string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM challenge_lockouts WHERE identifier = ?`, identifier)
	return err
}

// DeleteStaleLockouts removes records whose last failure happened before
// cutoff and which are not currently locked.
func (r *Repository) DeleteStaleLockouts(ctx context.Context, cutoff, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM challenge_lockouts
		 WHERE last_failure_at < ? AND (locked_until IS NULL OR locked_until < ?)`,
		cutoff.UTC(), now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
