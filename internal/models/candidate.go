// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

type CandidateStatus string

const (
	CandidateApproved  CandidateStatus = "approved"
	CandidateWithdrawn CandidateStatus = "withdrawn"
)

// Candidate is an entry of the approved candidate feed.
type Candidate struct {
	ID          string          `db:"id" json:"id" toml:"id"`
	Name        string          `db:"name" json:"name" toml:"name"`
	Affiliation string          `db:"affiliation" json:"affiliation" toml:"affiliation"`
	Platform    string          `db:"platform" json:"platform" toml:"platform"`
	Status      CandidateStatus `db:"status" json:"status" toml:"status"`
	UpdatedAt   time.Time       `db:"updated_at" json:"-" toml:"-"`
}

type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationVerified ApplicationStatus = "verified"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

// CandidateApplication is a nomination moving through document review.
type CandidateApplication struct { //nolint:govet // fieldalignment: readability over optimization
	ID           string            `db:"id" json:"id"`
	FullName     string            `db:"full_name" json:"full_name"`
	DateOfBirth  string            `db:"date_of_birth" json:"date_of_birth"`
	Email        string            `db:"email" json:"email"`
	Mobile       string            `db:"mobile" json:"mobile"`
	Constituency string            `db:"constituency" json:"constituency"`
	VoterID      string            `db:"voter_id" json:"voter_id"`
	Affiliation  string            `db:"affiliation" json:"affiliation"`
	Platform     string            `db:"platform" json:"platform"`
	Status       ApplicationStatus `db:"status" json:"status"`
	Reason       string            `db:"reason" json:"reason,omitempty"`
	CandidateID  *string           `db:"candidate_id" json:"candidate_id,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}
