// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package candidates

import "codeberg.org/oliverandrich/ballot-ledger/internal/models"

// DemoCandidates is the seed ballot used in development.
func DemoCandidates() []models.Candidate {
	return []models.Candidate{
		{
			ID:          "candidate-1",
			Name:        "Rahul Sharma",
			Affiliation: "Progressive Students Union",
			Platform:    "Committed to improving campus infrastructure, increasing scholarship opportunities, and promoting sustainable initiatives across all departments.",
		},
		{
			ID:          "candidate-2",
			Name:        "Priya Patel",
			Affiliation: "Unity Student Front",
			Platform:    "Focused on mental health support, diversity & inclusion programs, and creating more recreational spaces for student activities.",
		},
		{
			ID:          "candidate-3",
			Name:        "Amit Kumar",
			Affiliation: "Innovation Alliance",
			Platform:    "Advocating for modernized learning facilities, industry partnerships for internships, and technology-driven campus solutions.",
		},
		{
			ID:          "candidate-4",
			Name:        "Neha Singh",
			Affiliation: "Student Welfare Party",
			Platform:    "Prioritizing affordable housing, enhanced security measures, and transparent governance in all student body decisions.",
		},
	}
}
