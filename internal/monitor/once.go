// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package monitor

import (
	"context"
	"time"

	"github.com/ManuGH/ingestwatch/internal/health"
	"github.com/ManuGH/ingestwatch/internal/metrics"
	platformnet "github.com/ManuGH/ingestwatch/internal/platform/net"
	"github.com/ManuGH/ingestwatch/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// CheckOnce probes every service concurrently and returns the final list in
// configured order. It does not need a running Monitor.
func CheckOnce(ctx context.Context, services []Service, prober health.Prober, timeout time.Duration) []ServiceStatus {
	if timeout <= 0 {
		timeout = health.DefaultTimeout
	}
	out := initialStatuses(services)

	var g errgroup.Group
	for i, svc := range services {
		g.Go(func() error {
			res := probe(ctx, prober, svc, timeout)
			metrics.ObserveProbe(svc.ID, string(res.Status), res.Took)
			out[i].Status = res.Status
			out[i].LastCheckedAt = time.Now()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// AllOnline reports whether every entry is online.
func AllOnline(statuses []ServiceStatus) bool {
	for _, s := range statuses {
		if s.Status != health.StatusOnline {
			return false
		}
	}
	return true
}

// probe runs one traced liveness check.
func probe(ctx context.Context, prober health.Prober, svc Service, timeout time.Duration) health.Result {
	ctx, span := telemetry.Tracer("ingestwatch/monitor").Start(ctx, "monitor.probe",
		trace.WithAttributes(telemetry.ProbeAttributes(svc.ID, platformnet.RedactURL(svc.Endpoint))...))
	defer span.End()

	res := prober.Probe(ctx, svc.Endpoint, timeout)
	span.SetAttributes(attribute.String(telemetry.StatusKey, string(res.Status)))
	if res.Status == health.StatusOffline {
		span.SetStatus(codes.Error, res.Reason)
	}
	return res
}
