// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"errors"
	"iter"
	"time"

	"codeberg.org/oliverandrich/ballot-ledger/internal/models"
)

// InsertBallot appends a ballot. The commitment and receipt columns are
// UNIQUE, so a duplicate fails with a constraint violation.
func (r *Repository) InsertBallot(ctx context.Context, b *models.Ballot) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO ballots (seq, receipt, commitment, payload, submitted_at, prev_hash, hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.Seq, b.Receipt, b.Commitment, b.Payload, b.SubmittedAt.UTC(), b.PrevHash, b.Hash)
	return err
}

// LastBallot returns the ballot with the highest sequence number, or nil for
// an empty ledger.
func (r *Repository) LastBallot(ctx context.Context) (*models.Ballot, error) {
	var b models.Ballot
	err := r.q.GetContext(ctx, &b, `SELECT * FROM ballots ORDER BY seq DESC LIMIT 1`)
	if err != nil {
		if errors.Is(wrapError(err), ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// CommitmentExists reports whether a ballot with the commitment exists.
func (r *Repository) CommitmentExists(ctx context.Context, commitment string) (bool, error) {
	var n int64
	if err := r.q.GetContext(ctx, &n, `SELECT COUNT(*) FROM ballots WHERE commitment = ?`, commitment); err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountBallots returns the number of ballots in the ledger.
func (r *Repository) CountBallots(ctx context.Context) (int64, error) {
	var n int64
	if err := r.q.GetContext(ctx, &n, `SELECT COUNT(*) FROM ballots`); err != nil {
		return 0, err
	}
	return n, nil
}

// Ballots streams the ledger in sequence order. Each iteration opens a new
// cursor, so the sequence can be ranged over again and sees the ledger as of
// that call. The cursor holds a connection until the loop ends.
func (r *Repository) Ballots(ctx context.Context) iter.Seq2[*models.Ballot, error] {
	return r.scanBallots(ctx, `SELECT * FROM ballots ORDER BY seq`)
}

// BallotsByReceipt streams the ledger ordered by receipt. Receipts are
// random, so this order says nothing about when a ballot was cast.
func (r *Repository) BallotsByReceipt(ctx context.Context) iter.Seq2[*models.Ballot, error] {
	return r.scanBallots(ctx, `SELECT * FROM ballots ORDER BY receipt`)
}

// ReceiptByCommitment returns only the receipt and submission time of the
// ballot carrying commitment.
func (r *Repository) ReceiptByCommitment(ctx context.Context, commitment string) (receipt string, submittedAt time.Time, err error) {
	var row struct {
		Receipt     string    `db:"receipt"`
		SubmittedAt time.Time `db:"submitted_at"`
	}
	err = r.q.GetContext(ctx, &row, `SELECT receipt, submitted_at FROM ballots WHERE commitment = ?`, commitment)
	if err != nil {
		return "", time.Time{}, wrapError(err)
	}
	return row.Receipt, row.SubmittedAt, nil
}

func (r *Repository) scanBallots(ctx context.Context, query string) iter.Seq2[*models.Ballot, error] {
	return func(yield func(*models.Ballot, error) bool) {
		rows, err := r.q.QueryxContext(ctx, query)
		if err != nil {
			yield(nil, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var b models.Ballot
			if err := rows.StructScan(&b); err != nil {
				yield(nil, err)
				return
			}
			if !yield(&b, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}
