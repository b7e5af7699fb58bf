// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/ingestwatch/internal/log"
	"github.com/rs/zerolog"
)

const (
	defaultShutdownTimeout   = 10 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second
	defaultIdleTimeout       = 60 * time.Second
)

// ShutdownHook is a function that performs cleanup during graceful shutdown.
// Hooks are executed in reverse registration order (LIFO).
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	hook ShutdownHook
}

// Manager owns the local HTTP server and the shutdown hooks.
type Manager struct {
	addr            string
	handler         http.Handler
	shutdownTimeout time.Duration
	logger          zerolog.Logger

	mu         sync.Mutex
	server     *http.Server
	listener   net.Listener
	cancelReqs context.CancelFunc
	hooks      []namedHook
	started    bool
	stopping   bool
	ready      chan struct{}
}

// NewManager creates a manager serving handler on addr. An empty addr runs
// only the shutdown hooks.
func NewManager(addr string, handler http.Handler, shutdownTimeout time.Duration) (*Manager, error) {
	if addr != "" && handler == nil {
		return nil, ErrMissingHandler
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	return &Manager{
		addr:            addr,
		handler:         handler,
		shutdownTimeout: shutdownTimeout,
		logger:          log.WithComponent("manager"),
		ready:           make(chan struct{}),
	}, nil
}

// Addr returns the bound listen address once Start has bound it, else the
// configured one.
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener != nil {
		return m.listener.Addr().String()
	}
	return m.addr
}

// Ready is closed once the server is listening (or immediately after Start
// when no server is configured).
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// Start serves until ctx is cancelled or the server fails, then shuts down.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrManagerStarted
	}
	m.started = true
	m.mu.Unlock()

	// Shutdown uses a detached-but-bounded context so it can complete after ctx is cancelled.
	shutdownCtx := func() (context.Context, context.CancelFunc) {
		return context.WithTimeout(context.WithoutCancel(ctx), m.shutdownTimeout)
	}

	errChan := make(chan error, 1)
	if m.addr != "" {
		if err := m.startServer(errChan); err != nil {
			sctx, cancel := shutdownCtx()
			defer cancel()
			return errors.Join(err, m.Shutdown(sctx))
		}
	} else {
		m.logger.Info().Msg("local HTTP surface disabled")
	}
	close(m.ready)

	select {
	case err := <-errChan:
		m.logger.Error().Err(err).Msg("server error, initiating shutdown")
		sctx, cancel := shutdownCtx()
		defer cancel()
		if shutdownErr := m.Shutdown(sctx); shutdownErr != nil {
			return fmt.Errorf("server error and shutdown failure: %w", errors.Join(err, shutdownErr))
		}
		return err
	case <-ctx.Done():
		m.logger.Info().Msg("shutdown signal received")
		sctx, cancel := shutdownCtx()
		defer cancel()
		return m.Shutdown(sctx)
	}
}

func (m *Manager) startServer(errChan chan<- error) error {
	ln, err := net.Listen("tcp", m.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", m.addr, err)
	}

	// Request contexts are cancelled at shutdown so that event streams end.
	reqCtx, cancelReqs := context.WithCancel(context.Background())
	srv := &http.Server{
		Handler:           m.handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return reqCtx },
	}
	m.mu.Lock()
	m.server = srv
	m.listener = ln
	m.cancelReqs = cancelReqs
	m.mu.Unlock()

	m.logger.Info().
		Str(log.FieldEvent, "server.listening").
		Str("addr", ln.Addr().String()).
		Msg("local HTTP surface listening")

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().
				Err(err).
				Str(log.FieldEvent, "server.failed").
				Msg("local HTTP server failed")
			errChan <- fmt.Errorf("local HTTP server: %w", err)
		}
	}()
	return nil
}

// Shutdown stops the server and runs the hooks. It is idempotent.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	m.stopping = true
	srv := m.server
	cancelReqs := m.cancelReqs
	hooks := append([]namedHook(nil), m.hooks...)
	m.mu.Unlock()

	var errs []error
	if srv != nil {
		cancelReqs()
		if err := srv.Shutdown(ctx); err != nil {
			_ = srv.Close()
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		if err := h.hook(ctx); err != nil {
			m.logger.Error().
				Err(err).
				Str("hook", h.name).
				Dur("duration", time.Since(start)).
				Msg("shutdown hook failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
			continue
		}
		m.logger.Debug().
			Str("hook", h.name).
			Dur("duration", time.Since(start)).
			Msg("shutdown hook completed")
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	m.logger.Info().Msg("manager stopped cleanly")
	return nil
}

// RegisterShutdownHook registers a cleanup function for Shutdown.
func (m *Manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, namedHook{name: name, hook: hook})
}
