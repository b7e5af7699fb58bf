// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/ingestwatch/internal/bus"
	"github.com/ManuGH/ingestwatch/internal/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func ids(statuses []ServiceStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = s.ID
	}
	return out
}

// waitFor reads snapshots until pred holds, returning every snapshot seen.
func waitFor(t *testing.T, sub *bus.Subscription[[]ServiceStatus], pred func([]ServiceStatus) bool) [][]ServiceStatus {
	t.Helper()
	var seen [][]ServiceStatus
	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap, ok := <-sub.C():
			require.True(t, ok, "snapshot stream closed early")
			seen = append(seen, snap)
			if pred(snap) {
				return seen
			}
		case <-deadline:
			t.Fatalf("condition not reached, last snapshots: %v", seen)
		}
	}
}

func resolved(snap []ServiceStatus) bool {
	for _, s := range snap {
		if s.Status == health.StatusChecking {
			return false
		}
	}
	return true
}

func statusOf(snap []ServiceStatus, id string) health.Status {
	for _, s := range snap {
		if s.ID == id {
			return s.Status
		}
	}
	return ""
}

func TestNew_Validation(t *testing.T) {
	prober := health.ProberFunc(func(context.Context, string, time.Duration) health.Result {
		return health.Result{Status: health.StatusOnline}
	})

	_, err := New(nil, prober, Options{})
	require.ErrorIs(t, err, ErrNoServices)

	_, err = New([]Service{{ID: "api"}, {ID: "api"}}, prober, Options{})
	require.ErrorIs(t, err, ErrDuplicateService)

	m, err := New([]Service{{ID: "api", DisplayName: "API"}}, prober, Options{})
	require.NoError(t, err)
	snap := m.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, health.StatusChecking, snap[0].Status)
	assert.True(t, snap[0].LastCheckedAt.IsZero())
}

// api answers 200 after 20ms, llm 500 after 150ms, vectorstore never answers.
func TestMonitor_MixedServices(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api":
			time.Sleep(20 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		case "/llm":
			time.Sleep(150 * time.Millisecond)
			w.WriteHeader(http.StatusInternalServerError)
		case "/vectorstore":
			<-r.Context().Done()
		}
	}))
	defer srv.Close()

	tr := &http.Transport{}
	defer tr.CloseIdleConnections()

	const timeout = 600 * time.Millisecond
	services := []Service{
		{ID: "api", Endpoint: srv.URL + "/api"},
		{ID: "vectorstore", Endpoint: srv.URL + "/vectorstore"},
		{ID: "llm", Endpoint: srv.URL + "/llm"},
	}
	m, err := New(services, health.NewHTTPProber(&http.Client{Transport: tr}), Options{Timeout: timeout})
	require.NoError(t, err)

	sub := m.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	start := time.Now()
	go func() { done <- m.Run(ctx) }()

	firstResolved := map[string]time.Duration{}
	var order []string
	seen := waitFor(t, sub, func(snap []ServiceStatus) bool {
		for _, s := range snap {
			if s.Status == health.StatusChecking {
				continue
			}
			if _, ok := firstResolved[s.ID]; !ok {
				firstResolved[s.ID] = time.Since(start)
				order = append(order, s.ID)
			}
		}
		return resolved(snap)
	})

	for _, snap := range seen {
		assert.Equal(t, []string{"api", "vectorstore", "llm"}, ids(snap), "membership and order are fixed")
	}
	final := seen[len(seen)-1]
	assert.Equal(t, health.StatusOnline, statusOf(final, "api"))
	assert.Equal(t, health.StatusOffline, statusOf(final, "llm"))
	assert.Equal(t, health.StatusOffline, statusOf(final, "vectorstore"))
	assert.Equal(t, []string{"api", "llm", "vectorstore"}, order)
	assert.GreaterOrEqual(t, firstResolved["vectorstore"], timeout)
	assert.Less(t, firstResolved["vectorstore"], timeout+time.Second)
	for _, s := range final {
		assert.False(t, s.LastCheckedAt.IsZero(), s.ID)
	}

	cancel()
	require.NoError(t, <-done)
}

func TestMonitor_TeardownCancelsProbes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var started sync.WaitGroup
	started.Add(2)
	var cancelled atomic.Int32
	prober := health.ProberFunc(func(ctx context.Context, _ string, timeout time.Duration) health.Result {
		started.Done()
		<-ctx.Done()
		cancelled.Add(1)
		// completes after teardown; must be discarded
		return health.Result{Status: health.StatusOnline}
	})

	m, err := New([]Service{{ID: "a"}, {ID: "b"}}, prober, Options{Timeout: time.Hour})
	require.NoError(t, err)
	sub := m.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	started.Wait()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, int32(2), cancelled.Load())

	for _, s := range m.Snapshot() {
		assert.Equal(t, health.StatusChecking, s.Status, "late result must not be applied")
	}

	// stream is closed after draining
	for range sub.C() {
	}
}

func TestMonitor_RefreshCancelsInFlightCycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var calls atomic.Int32
	firstStarted := make(chan struct{})
	firstCancelled := make(chan struct{})
	prober := health.ProberFunc(func(ctx context.Context, _ string, _ time.Duration) health.Result {
		if calls.Add(1) == 1 {
			close(firstStarted)
			<-ctx.Done()
			close(firstCancelled)
			return health.Result{Status: health.StatusOnline}
		}
		return health.Result{Status: health.StatusOffline}
	})

	m, err := New([]Service{{ID: "api"}}, prober, Options{Timeout: time.Hour})
	require.NoError(t, err)
	sub := m.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	<-firstStarted
	m.Refresh()

	select {
	case <-firstCancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle probe was not cancelled by Refresh")
	}

	waitFor(t, sub, func(snap []ServiceStatus) bool {
		return statusOf(snap, "api") == health.StatusOffline
	})

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, health.StatusOffline, statusOf(m.Snapshot(), "api"), "stale online result discarded")
}

func TestMonitor_IntervalPolling(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var calls atomic.Int32
	prober := health.ProberFunc(func(context.Context, string, time.Duration) health.Result {
		calls.Add(1)
		return health.Result{Status: health.StatusOnline}
	})
	m, err := New([]Service{{ID: "api"}}, prober, Options{Interval: 10 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestMonitor_RunTwice(t *testing.T) {
	prober := health.ProberFunc(func(context.Context, string, time.Duration) health.Result {
		return health.Result{Status: health.StatusOnline}
	})
	m, err := New([]Service{{ID: "api"}}, prober, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	require.Eventually(t, func() bool { return m.running.Load() }, time.Second, time.Millisecond)

	require.ErrorIs(t, m.Run(ctx), ErrAlreadyRunning)
	cancel()
	require.NoError(t, <-done)
}

func TestSnapshot_IsCopy(t *testing.T) {
	prober := health.ProberFunc(func(context.Context, string, time.Duration) health.Result {
		return health.Result{Status: health.StatusOnline}
	})
	m, err := New([]Service{{ID: "api"}}, prober, Options{})
	require.NoError(t, err)

	snap := m.Snapshot()
	snap[0].Status = health.StatusOffline
	assert.Equal(t, health.StatusChecking, m.Snapshot()[0].Status)
}
