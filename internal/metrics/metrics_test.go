// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package metrics_test

import (
	"testing"
	"time"

	"codeberg.org/oliverandrich/ballot-ledger/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.IncVoterRegistered()
		m.ObserveLogin("voter", "success")
		m.ObserveCast(time.Now(), "")
		m.AddPurged("sessions", 3)
	})
}

func TestObserveCast(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.ObserveCast(time.Now(), "")
	m.ObserveCast(time.Now(), "already_voted")
	m.ObserveCast(time.Now(), "already_voted")

	assert.InDelta(t, 1, testutil.ToFloat64(m.VotesCast), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.VoteRejections.WithLabelValues("already_voted")), 0)
}

func TestAddPurgedIgnoresZero(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	m.AddPurged("challenges", 0)
	m.AddPurged("challenges", 4)

	assert.InDelta(t, 4, testutil.ToFloat64(m.JanitorPurged.WithLabelValues("challenges")), 0)
}
