// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProbeResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestwatch_probe_results_total",
		Help: "Health probe outcomes by service and status",
	}, []string{"service", "status"})

	probeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingestwatch_probe_duration_seconds",
		Help:    "Health probe latency by service",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
	}, []string{"service"})

	serviceStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ingestwatch_service_status",
		Help: "Current service status (checking/online/offline, active=1)",
	}, []string{"service", "status"})
)

var serviceStates = []string{"checking", "online", "offline"}

// ObserveProbe records the outcome and latency of one completed probe.
func ObserveProbe(service, status string, took time.Duration) {
	ProbeResultsTotal.WithLabelValues(service, status).Inc()
	probeDuration.WithLabelValues(service).Observe(took.Seconds())
}

// SetServiceStatus records the active status for a service.
func SetServiceStatus(service, status string) {
	for _, s := range serviceStates {
		value := 0.0
		if s == status {
			value = 1.0
		}
		serviceStatus.WithLabelValues(service, s).Set(value)
	}
}
