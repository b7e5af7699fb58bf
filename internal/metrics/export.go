// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ExportWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestwatch_export_writes_total",
		Help: "Status export writes by result",
	}, []string{"result"})

	DropdirFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingestwatch_dropdir_files_total",
		Help: "Files seen in the drop directory by outcome",
	}, []string{"outcome"})
)

// IncExportWrite records one export attempt ("ok" or "error").
func IncExportWrite(result string) {
	ExportWritesTotal.WithLabelValues(result).Inc()
}

// IncDropdirFile records a drop directory file by outcome.
func IncDropdirFile(outcome string) {
	DropdirFilesTotal.WithLabelValues(outcome).Inc()
}
