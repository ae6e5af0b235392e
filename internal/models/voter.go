// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// Voter is a registered voter identity. Records are never deleted.
type Voter struct { //nolint:govet // fieldalignment: readability over optimization
	Identifier   string     `db:"identifier" json:"identifier"`
	FullName     string     `db:"full_name" json:"full_name"`
	DateOfBirth  string     `db:"date_of_birth" json:"date_of_birth"`
	Mobile       string     `db:"mobile" json:"-"`
	Email        string     `db:"email" json:"-"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Verified     bool       `db:"verified" json:"verified"`
	RegisteredAt time.Time  `db:"registered_at" json:"registered_at"`
	VerifiedAt   *time.Time `db:"verified_at" json:"verified_at,omitempty"`
}

// Admin is an administrator principal.
type Admin struct {
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
