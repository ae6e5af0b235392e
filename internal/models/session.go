// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// Role scopes a session to one kind of principal.
type Role string

const (
	RoleVoter Role = "voter"
	RoleAdmin Role = "admin"
)

// Session is a bearer session. Only the hash of the token id is stored.
type Session struct {
	TokenHash  string    `db:"token_hash"`
	Subject    string    `db:"subject"`
	Role       Role      `db:"role"`
	IssuedAt   time.Time `db:"issued_at"`
	LastSeenAt time.Time `db:"last_seen_at"`
	ExpiresAt  time.Time `db:"expires_at"`
}

// Principal is the authenticated caller behind a validated session.
type Principal struct {
	Subject string // voter identifier or admin username
	Role    Role
}

// IsVoter reports whether the principal is a voter.
func (p *Principal) IsVoter() bool {
	return p != nil && p.Role == RoleVoter
}

// IsAdmin reports whether the principal is an administrator.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}
