// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// Challenge is the live one-time code for a voter. At most one exists per
// identifier; issuing a new one replaces it.
type Challenge struct {
	Identifier string    `db:"identifier"`
	CodeHash   string    `db:"code_hash"`
	IssuedAt   time.Time `db:"issued_at"`
	ExpiresAt  time.Time `db:"expires_at"`
}

// ExpiredAt reports whether the challenge is no longer valid at now.
func (c *Challenge) ExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// ChallengeLockout counts failed verifications for an identifier.
type ChallengeLockout struct {
	Identifier    string     `db:"identifier"`
	FailureCount  int        `db:"failure_count"`
	WindowStart   time.Time  `db:"window_start"`
	LastFailureAt time.Time  `db:"last_failure_at"`
	LockedUntil   *time.Time `db:"locked_until"`
}

// IsLockedAt reports whether the lock is still in force at now.
func (l *ChallengeLockout) IsLockedAt(now time.Time) bool {
	return l != nil && l.LockedUntil != nil && now.Before(*l.LockedUntil)
}
