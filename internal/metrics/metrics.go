// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package metrics holds the Prometheus instruments of the ballot service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	VotersRegistered       prometheus.Counter
	VotersVerified         prometheus.Counter
	ChallengesIssued       prometheus.Counter
	ChallengeVerifications *prometheus.CounterVec
	Logins                 *prometheus.CounterVec
	VotesCast              prometheus.Counter
	VoteRejections         *prometheus.CounterVec
	CastDuration           prometheus.Histogram
	JanitorPurged          *prometheus.CounterVec
}

// New registers all instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		VotersRegistered: f.NewCounter(prometheus.CounterOpts{
			Name: "ballot_voters_registered_total",
			Help: "Total number of voter registrations",
		}),
		VotersVerified: f.NewCounter(prometheus.CounterOpts{
			Name: "ballot_voters_verified_total",
			Help: "Total number of voters that completed verification",
		}),
		ChallengesIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "ballot_challenges_issued_total",
			Help: "Total number of verification codes issued",
		}),
		ChallengeVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ballot_challenge_verifications_total",
			Help: "Verification attempts by result",
		}, []string{"result"}),
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ballot_logins_total",
			Help: "Login attempts by role and result",
		}, []string{"role", "result"}),
		VotesCast: f.NewCounter(prometheus.CounterOpts{
			Name: "ballot_votes_cast_total",
			Help: "Total number of ballots committed to the ledger",
		}),
		VoteRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ballot_vote_rejections_total",
			Help: "Rejected cast attempts by reason",
		}, []string{"reason"}),
		CastDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ballot_cast_duration_seconds",
			Help:    "Duration of CastVote operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		JanitorPurged: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ballot_janitor_purged_total",
			Help: "Rows purged by the janitor by kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) IncVoterRegistered() {
	if m == nil {
		return
	}
	m.VotersRegistered.Inc()
}

func (m *Metrics) IncVoterVerified() {
	if m == nil {
		return
	}
	m.VotersVerified.Inc()
}

func (m *Metrics) IncChallengeIssued() {
	if m == nil {
		return
	}
	m.ChallengesIssued.Inc()
}

func (m *Metrics) ObserveVerification(result string) {
	if m == nil {
		return
	}
	m.ChallengeVerifications.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveLogin(role, result string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(role, result).Inc()
}

// ObserveCast records the outcome of a CastVote call started at start. An
// empty reason means the vote was committed.
func (m *Metrics) ObserveCast(start time.Time, reason string) {
	if m == nil {
		return
	}
	m.CastDuration.Observe(time.Since(start).Seconds())
	if reason == "" {
		m.VotesCast.Inc()
		return
	}
	m.VoteRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) AddPurged(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.JanitorPurged.WithLabelValues(kind).Add(float64(n))
}
