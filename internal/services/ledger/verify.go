// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package ledger

import (
	"context"
	"fmt"
)

// ChainReport is the outcome of a full ledger verification.
type ChainReport struct {
	Ballots  int64  `json:"ballots"`
	Valid    bool   `json:"valid"`
	Head     string `json:"head"`
	BrokenAt int64  `json:"broken_at,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// VerifyChain walks the ledger in order and re-derives every link. It stops
// at the first broken ballot.
func (s *Service) VerifyChain(ctx context.Context) (*ChainReport, error) {
	report := &ChainReport{Valid: true, Head: GenesisHash}
	expectedSeq := int64(1)

	for b, err := range s.repo.Ballots(ctx) {
		if err != nil {
			return nil, fmt.Errorf("failed to read ledger: %w", err)
		}

		var why string
		switch {
		case b.Seq != expectedSeq:
			why = fmt.Sprintf("sequence gap: expected %d", expectedSeq)
		case b.PrevHash != report.Head:
			why = "previous hash mismatch"
		case chainHash(b) != b.Hash:
			why = "hash mismatch"
		case !ValidReceiptID(b.Receipt):
			why = "malformed receipt"
		default:
			if _, err := s.Open(b); err != nil {
				why = "payload does not open"
			}
		}
		if why != "" {
			report.Valid = false
			report.BrokenAt = b.Seq
			report.Reason = why
			return report, nil
		}

		report.Ballots++
		report.Head = b.Hash
		expectedSeq++
	}

	return report, nil
}
