// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package monitor polls the configured backend services and publishes an
// ordered status board.
//
// The Monitor owns the status list: only its Run loop mutates it, and every
// mutation publishes a fresh copy. Membership and order are fixed at
// construction.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/ingestwatch/internal/bus"
	"github.com/ManuGH/ingestwatch/internal/health"
	"github.com/ManuGH/ingestwatch/internal/log"
	"github.com/ManuGH/ingestwatch/internal/metrics"
	"github.com/rs/zerolog"
)

var (
	ErrNoServices       = errors.New("monitor: no services configured")
	ErrDuplicateService = errors.New("monitor: duplicate service id")
	ErrAlreadyRunning   = errors.New("monitor: already running")
)

// Service is one configured backend dependency.
type Service struct {
	ID          string
	DisplayName string
	Icon        string
	Endpoint    string
}

// ServiceStatus is the observable state of one service.
type ServiceStatus struct {
	ID            string        `json:"id"`
	DisplayName   string        `json:"displayName"`
	Icon          string        `json:"icon,omitempty"`
	Status        health.Status `json:"status"`
	LastCheckedAt time.Time     `json:"lastCheckedAt,omitzero"`
}

// Options tune polling. Zero values select defaults.
type Options struct {
	Timeout  time.Duration // per-probe timeout, default health.DefaultTimeout
	Interval time.Duration // 0 polls only at start and on Refresh
	Now      func() time.Time
}

type probeResult struct {
	gen    uint64
	index  int
	result health.Result
}

// Monitor runs health probes and owns the resulting status list.
type Monitor struct {
	services []Service
	prober   health.Prober
	timeout  time.Duration
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	pub     *bus.Publisher[[]ServiceStatus]
	refresh chan struct{}
	results chan probeResult
	running atomic.Bool

	// owned by the Run goroutine
	statuses []ServiceStatus
	gen      uint64
	pending  int
}

// New creates a monitor for services in the given order.
func New(services []Service, prober health.Prober, opts Options) (*Monitor, error) {
	if len(services) == 0 {
		return nil, ErrNoServices
	}
	seen := make(map[string]struct{}, len(services))
	for _, s := range services {
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateService, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = health.DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := &Monitor{
		services: append([]Service(nil), services...),
		prober:   prober,
		timeout:  opts.Timeout,
		interval: opts.Interval,
		now:      opts.Now,
		logger:   log.WithComponent("monitor"),
		pub:      bus.New[[]ServiceStatus]("services", 0),
		refresh:  make(chan struct{}, 1),
		results:  make(chan probeResult, len(services)),
		statuses: initialStatuses(services),
	}
	m.publish()
	return m, nil
}

func initialStatuses(services []Service) []ServiceStatus {
	out := make([]ServiceStatus, len(services))
	for i, s := range services {
		out[i] = ServiceStatus{
			ID:          s.ID,
			DisplayName: s.DisplayName,
			Icon:        s.Icon,
			Status:      health.StatusChecking,
		}
	}
	return out
}

// Snapshot returns the latest published status list.
func (m *Monitor) Snapshot() []ServiceStatus {
	v, _ := m.pub.Latest()
	return clone(v)
}

// Subscribe returns a stream of status lists. The current list is delivered
// immediately. The stream closes when Run returns.
func (m *Monitor) Subscribe() *bus.Subscription[[]ServiceStatus] {
	return m.pub.Subscribe()
}

// Refresh requests a new polling cycle. An in-flight cycle is cancelled and
// its late results are discarded. Refresh never blocks.
func (m *Monitor) Refresh() {
	select {
	case m.refresh <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled. On return every outstanding probe has
// been cancelled and has exited, and the snapshot stream is closed.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.pub.Close()

	var wg sync.WaitGroup
	cancelCycle := context.CancelFunc(func() {})
	defer func() {
		cancelCycle()
		wg.Wait()
	}()

	startCycle := func(reason string) {
		cancelCycle()
		var cycleCtx context.Context
		cycleCtx, cancelCycle = context.WithCancel(ctx)
		m.startCycle(cycleCtx, &wg, reason)
	}

	var tick <-chan time.Time
	if m.interval > 0 {
		t := time.NewTicker(m.interval)
		defer t.Stop()
		tick = t.C
	}

	startCycle("start")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Str(log.FieldEvent, "monitor.stopped").Msg("status monitor stopped")
			return nil
		case <-m.refresh:
			startCycle("refresh")
		case <-tick:
			if m.pending > 0 {
				m.logger.Debug().
					Str(log.FieldEvent, "monitor.tick_skipped").
					Int("pending", m.pending).
					Msg("previous cycle still in flight")
				continue
			}
			startCycle("interval")
		case r := <-m.results:
			if ctx.Err() != nil {
				continue
			}
			m.apply(r)
		}
	}
}

// startCycle marks every entry Checking and launches one probe per service.
func (m *Monitor) startCycle(ctx context.Context, wg *sync.WaitGroup, reason string) {
	m.gen++
	gen := m.gen
	m.pending = len(m.services)

	for i := range m.statuses {
		m.statuses[i].Status = health.StatusChecking
		metrics.SetServiceStatus(m.statuses[i].ID, string(health.StatusChecking))
	}
	m.publish()

	m.logger.Debug().
		Str(log.FieldEvent, "monitor.cycle_started").
		Str("reason", reason).
		Uint64("generation", gen).
		Msg("polling cycle started")

	for i, svc := range m.services {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := probe(ctx, m.prober, svc, m.timeout)
			select {
			case m.results <- probeResult{gen: gen, index: i, result: res}:
			case <-ctx.Done():
			}
		}()
	}
}

func (m *Monitor) apply(r probeResult) {
	svc := m.services[r.index]
	if r.gen != m.gen {
		m.logger.Debug().
			Str(log.FieldEvent, "probe.discarded").
			Str(log.FieldServiceID, svc.ID).
			Msg("discarding result from superseded cycle")
		return
	}
	m.pending--

	st := &m.statuses[r.index]
	st.Status = r.result.Status
	st.LastCheckedAt = m.now()

	metrics.ObserveProbe(svc.ID, string(r.result.Status), r.result.Took)
	metrics.SetServiceStatus(svc.ID, string(r.result.Status))

	ev := m.logger.Debug()
	if r.result.Status == health.StatusOffline {
		ev = m.logger.Info()
	}
	ev.Str(log.FieldEvent, "probe.completed").
		Str(log.FieldServiceID, svc.ID).
		Str("status", string(r.result.Status)).
		Dur("took", r.result.Took).
		Str("reason", r.result.Reason).
		Msg("probe completed")

	m.publish()
}

func (m *Monitor) publish() {
	m.pub.Publish(clone(m.statuses))
}

func clone(in []ServiceStatus) []ServiceStatus {
	if in == nil {
		return nil
	}
	out := make([]ServiceStatus, len(in))
	copy(out, in)
	return out
}
