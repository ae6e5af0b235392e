// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package janitor periodically removes expired challenges, stale failure
// records and expired sessions.
package janitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/ballot-ledger/internal/metrics"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/challenge"
	"codeberg.org/oliverandrich/ballot-ledger/internal/services/session"
)

type Janitor struct {
	challenges *challenge.Service
	sessions   *session.Service
	interval   time.Duration
	metrics    *metrics.Metrics
}

func New(challenges *challenge.Service, sessions *session.Service, interval time.Duration, m *metrics.Metrics) *Janitor {
	return &Janitor{
		challenges: challenges,
		sessions:   sessions,
		interval:   interval,
		metrics:    m,
	}
}

// RunOnce performs a single sweep.
func (j *Janitor) RunOnce(ctx context.Context) error {
	challenges, lockouts, cerr := j.challenges.PurgeExpired(ctx)
	sessions, serr := j.sessions.PurgeExpired(ctx)

	j.metrics.AddPurged("challenges", challenges)
	j.metrics.AddPurged("lockouts", lockouts)
	j.metrics.AddPurged("sessions", sessions)

	if challenges+lockouts+sessions > 0 {
		slog.Debug("janitor_sweep", "challenges", challenges, "lockouts", lockouts, "sessions", sessions)
	}
	return errors.Join(cerr, serr)
}

// Run sweeps every interval until ctx is cancelled. A non-positive interval
// disables the janitor.
func (j *Janitor) Run(ctx context.Context) {
	if j.interval <= 0 {
		return
	}

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
				slog.Error("janitor_sweep_failed", "error", err)
			}
		}
	}
}
