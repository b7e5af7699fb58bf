// SPDX-License-Identifier: MIT

// Package health performs bounded-time liveness probes against the backend
// services the client depends on.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ManuGH/ingestwatch/internal/platform/httpx"
)

// Status is the availability of one service as seen by the client.
type Status string

const (
	StatusChecking Status = "checking"
	StatusOnline   Status = "online"
	StatusOffline  Status = "offline"
)

// DefaultTimeout bounds a probe when the caller does not supply a timeout.
const DefaultTimeout = 3 * time.Second

// maxDrainBytes limits how much of a probe response body is read before the
// connection is returned to the pool.
const maxDrainBytes = 4 << 10

// Result is the outcome of one probe. Reason is diagnostic only and is never
// shown to the user.
type Result struct {
	Status Status
	Took   time.Duration
	Reason string
}

// Prober performs a single liveness check. Implementations must honour the
// timeout and must not retry.
type Prober interface {
	Probe(ctx context.Context, endpoint string, timeout time.Duration) Result
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, endpoint string, timeout time.Duration) Result

func (f ProberFunc) Probe(ctx context.Context, endpoint string, timeout time.Duration) Result {
	return f(ctx, endpoint, timeout)
}

// HTTPProber issues GET <endpoint>; any 2xx response means online.
type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber creates a prober using the given client, or an instrumented
// httpx client bounded by DefaultTimeout when client is nil.
func NewHTTPProber(client *http.Client) *HTTPProber {
	if client == nil {
		client = httpx.Instrument(httpx.NewClient(DefaultTimeout), "health.probe")
	}
	return &HTTPProber{client: client}
}

// Probe runs the liveness request. It resolves within timeout: the request
// context carries the deadline, so an unanswered request is cancelled rather
// than left running.
func (p *HTTPProber) Probe(ctx context.Context, endpoint string, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	offline := func(reason string) Result {
		return Result{Status: StatusOffline, Took: time.Since(start), Reason: reason}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return offline("invalid endpoint")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return offline("timeout")
		case errors.Is(err, context.Canceled):
			return offline("cancelled")
		default:
			return offline("transport error")
		}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.CopyN(io.Discard, resp.Body, maxDrainBytes)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return offline(fmt.Sprintf("status %d", resp.StatusCode))
	}
	return Result{Status: StatusOnline, Took: time.Since(start)}
}
