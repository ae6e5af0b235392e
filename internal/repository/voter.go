// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/oliverandrich/ballot-ledger/internal/models"
)

// CreateVoter inserts a voter. The identifier is the primary key, so a
// concurrent insert of the same identifier fails with a unique violation.
func (r *Repository) CreateVoter(ctx context.Context, v *models.Voter) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO voters (identifier, full_name, date_of_birth, mobile, email, password_hash, verified, registered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.Identifier, v.FullName, v.DateOfBirth, v.Mobile, v.Email, v.PasswordHash, v.Verified, v.RegisteredAt.UTC())
	return err
}

// GetVoter retrieves a voter by identifier.
func (r *Repository) GetVoter(ctx context.Context, identifier string) (*models.Voter, error) {
	var v models.Voter
	if err := r.q.GetContext(ctx, &v, `SELECT * FROM voters WHERE identifier = ?`, identifier); err != nil {
		return nil, wrapError(err)
	}
	return &v, nil
}

// MarkVoterVerified flips an unverified voter to verified. It reports false
// when no unverified row matched.
func (r *Repository) MarkVoterVerified(ctx context.Context, identifier string, at time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE voters SET verified = 1, verified_at = ? WHERE identifier = ? AND verified = 0`,
		at.UTC(), identifier)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CountVoters returns the number of registered and verified voters.
func (r *Repository) CountVoters(ctx context.Context) (registered, verified int64, err error) {
	var row struct {
		Registered int64 `db:"registered"`
		Verified   int64 `db:"verified"`
	}
	err = r.q.GetContext(ctx, &row,
		`SELECT COUNT(*) AS registered, COALESCE(SUM(verified), 0) AS verified FROM voters`)
	if err != nil {
		return 0, 0, err
	}
	return row.Registered, row.Verified, nil
}

// CreateAdmin inserts an administrator.
func (r *Repository) CreateAdmin(ctx context.Context, a *models.Admin) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO admins (username, password_hash, created_at) VALUES (?, ?, ?)`,
		a.Username, a.PasswordHash, a.CreatedAt.UTC())
	return err
}

// GetAdmin retrieves an administrator by username.
func (r *Repository) GetAdmin(ctx context.Context, username string) (*models.Admin, error) {
	var a models.Admin
	if err := r.q.GetContext(ctx, &a, `SELECT * FROM admins WHERE username = ?`, username); err != nil {
		return nil, wrapError(err)
	}
	return &a, nil
}

// CountAdmins returns the number of administrators.
func (r *Repository) CountAdmins(ctx context.Context) (int64, error) {
	var count int64
	if err := r.q.GetContext(ctx, &count, `SELECT COUNT(*) FROM admins`); err != nil {
		return 0, err
	}
	return count, nil
}
