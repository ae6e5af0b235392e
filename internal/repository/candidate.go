// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/oliverandrich/ballot-ledger/internal/models"
)

// UpsertCandidate inserts or replaces a candidate of the feed.
func (r *Repository) UpsertCandidate(ctx context.Context, c *models.Candidate) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO candidates (id, name, affiliation, platform, status, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			affiliation = excluded.affiliation,
			platform = excluded.platform,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		c.ID, c.Name, c.Affiliation, c.Platform, c.Status, c.UpdatedAt.UTC())
	return err
}

// GetCandidate retrieves a candidate by ID.
func (r *Repository) GetCandidate(ctx context.Context, id string) (*models.Candidate, error) {
	var c models.Candidate
	if err := r.q.GetContext(ctx, &c, `SELECT * FROM candidates WHERE id = ?`, id); err != nil {
		return nil, wrapError(err)
	}
	return &c, nil
}

// ListCandidates returns candidates with the given status ordered by ID.
func (r *Repository) ListCandidates(ctx context.Context, status models.CandidateStatus) ([]models.Candidate, error) {
	var cs []models.Candidate
	if err := r.q.SelectContext(ctx, &cs, `SELECT * FROM candidates WHERE status = ? ORDER BY id`, status); err != nil {
		return nil, err
	}
	return cs, nil
}

// CreateApplication inserts a candidate application.
func (r *Repository) CreateApplication(ctx context.Context, a *models.CandidateApplication) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO candidate_applications
			(id, full_name, date_of_birth, email, mobile, constituency, voter_id, affiliation, platform, status, reason, candidate_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.FullName, a.DateOfBirth, a.Email, a.Mobile, a.Constituency, a.VoterID, a.Affiliation, a.Platform,
		a.Status, a.Reason, a.CandidateID, a.CreatedAt.UTC(), a.UpdatedAt.UTC())
	return err
}

// GetApplication retrieves an application by ID.
func (r *Repository) GetApplication(ctx context.Context, id string) (*models.CandidateApplication, error) {
	var a models.CandidateApplication
	if err := r.q.GetContext(ctx, &a, `SELECT * FROM candidate_applications WHERE id = ?`, id); err != nil {
		return nil, wrapError(err)
	}
	return &a, nil
}

// ListApplications returns applications, newest first. An empty status
// returns all of them.
func (r *Repository) ListApplications(ctx context.Context, status models.ApplicationStatus) ([]models.CandidateApplication, error) {
	var as []models.CandidateApplication
	var err error
	if status == "" {
		err = r.q.SelectContext(ctx, &as, `SELECT * FROM candidate_applications ORDER BY created_at DESC`)
	} else {
		err = r.q.SelectContext(ctx, &as,
			`SELECT * FROM candidate_applications WHERE status = ? ORDER BY created_at DESC`, status)
	}
	if err != nil {
		return nil, err
	}
	return as, nil
}

// UpdateApplicationStatus stores the review outcome of an application.
func (r *Repository) UpdateApplicationStatus(ctx context.Context, a *models.CandidateApplication) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE candidate_applications SET status = ?, reason = ?, candidate_id = ?, updated_at = ? WHERE id = ?`,
		a.Status, a.Reason, a.CandidateID, a.UpdatedAt.UTC(), a.ID)
	return err
}
