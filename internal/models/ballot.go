// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// Ballot is one entry of the append-only ledger. It carries no voter
// identifier: Commitment is a keyed one-way tag used only for uniqueness and
// Payload is sealed.
type Ballot struct {
	Seq         int64     `db:"seq"`
	Receipt     string    `db:"receipt"`
	Commitment  string    `db:"commitment"`
	Payload     []byte    `db:"payload"`
	SubmittedAt time.Time `db:"submitted_at"`
	PrevHash    string    `db:"prev_hash"`
	Hash        string    `db:"hash"`
}
