// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api serves the local presentation surface: JSON snapshots of the
// service board and upload sessions, a server-sent event stream of both,
// multipart file selection and the Prometheus endpoint.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ManuGH/ingestwatch/internal/bus"
	"github.com/ManuGH/ingestwatch/internal/channel"
	"github.com/ManuGH/ingestwatch/internal/monitor"
	"github.com/ManuGH/ingestwatch/internal/registry"
	"github.com/ManuGH/ingestwatch/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultMaxRequestBytes = 256 << 20
	defaultHeartbeat       = 15 * time.Second
)

// StatusBoard is the status monitor as seen by the server.
type StatusBoard interface {
	Snapshot() []monitor.ServiceStatus
	Subscribe() *bus.Subscription[[]monitor.ServiceStatus]
	Refresh()
}

// SessionStore is the session registry as seen by the server.
type SessionStore interface {
	Snapshot() []session.Session
	Get(id string) (session.Session, bool)
	Subscribe() *bus.Subscription[[]session.Session]
	Select(ctx context.Context, sels []registry.Selection) ([]string, error)
	Acknowledge(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
}

// StreamState is the progress channel's connection state.
type StreamState interface {
	State() channel.State
	SubscribeState() *bus.Subscription[channel.State]
}

// Config tunes the server. Zero values select defaults.
type Config struct {
	// RateLimit is the number of /api requests allowed per client per minute.
	// 0 disables rate limiting.
	RateLimit int
	// MaxRequestBytes bounds the body of a file selection request.
	MaxRequestBytes int64
	// Heartbeat is the keep-alive interval of the event stream.
	Heartbeat time.Duration
	// TracingService names the server spans. Empty disables tracing.
	TracingService string
}

// Server holds the routes of the local surface.
type Server struct {
	board    StatusBoard
	sessions SessionStore
	stream   StreamState
	cfg      Config
	router   chi.Router
}

// New builds the server. stream may be nil, in which case /api/stream
// answers 404 and the event stream carries no stream events.
func New(board StatusBoard, sessions SessionStore, stream StreamState, cfg Config) *Server {
	if cfg.MaxRequestBytes <= 0 {
		cfg.MaxRequestBytes = defaultMaxRequestBytes
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaultHeartbeat
	}
	s := &Server{board: board, sessions: sessions, stream: stream, cfg: cfg}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	if s.cfg.TracingService == "" {
		return s.router
	}
	return otelhttp.NewHandler(s.router, s.cfg.TracingService,
		otelhttp.WithFilter(shouldTrace),
		otelhttp.WithSpanNameFormatter(spanName),
	)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(requestID)
	r.Use(accessLog)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(rateLimit(s.cfg.RateLimit, time.Minute))
		}
		r.Get("/services", s.handleServices)
		r.Post("/services/refresh", s.handleRefresh)
		r.Get("/sessions", s.handleSessions)
		r.Post("/sessions", s.handleSelect)
		r.Get("/sessions/{id}", s.handleSession)
		r.Delete("/sessions/{id}", s.handleAcknowledge)
		r.Post("/sessions/{id}/cancel", s.handleCancel)
		r.Get("/stream", s.handleStream)
		r.Get("/events", s.handleEvents)
	})
	return r
}

// shouldTrace skips probes and scrapes.
func shouldTrace(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return false
	}
	return true
}

func spanName(operation string, r *http.Request) string {
	return operation + " " + r.Method + " " + r.URL.Path
}
