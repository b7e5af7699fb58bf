// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestwatch_session_transitions_total",
		Help: "Upload session state transitions",
	}, []string{"from", "to"})

	SessionFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestwatch_session_failures_total",
		Help: "Upload sessions that reached Failed, by error kind and code",
	}, []string{"kind", "code"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ingestwatch_sessions_tracked",
		Help: "Upload sessions currently tracked by the registry",
	})
)

// RecordSessionTransition increments the transition counter.
func RecordSessionTransition(from, to string) {
	SessionTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordSessionFailure increments the failure counter for the given cause.
func RecordSessionFailure(kind, code string) {
	if code == "" {
		code = "none"
	}
	SessionFailuresTotal.WithLabelValues(kind, code).Inc()
}

// SetTrackedSessions records how many sessions the registry tracks.
func SetTrackedSessions(n int) {
	activeSessions.Set(float64(n))
}
