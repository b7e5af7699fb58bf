// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package channel maintains the multiplexed progress stream shared by all
// upload sessions.
//
// A single supervisor goroutine owns the connection. It connects when the
// first session attaches, reconnects with exponential backoff after an
// unexpected closure and gives up after a bounded number of consecutive
// failed attempts, reporting every attached session as lost. An open that
// drops before it has delivered a frame or stayed up for StableAfter counts
// as a failed attempt. Deliveries are
// emitted on one ordered channel, so events for a session arrive in the order
// the backend sent them.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/ingestwatch/internal/bus"
	"github.com/ManuGH/ingestwatch/internal/log"
	"github.com/ManuGH/ingestwatch/internal/metrics"
	platformnet "github.com/ManuGH/ingestwatch/internal/platform/net"
	"github.com/ManuGH/ingestwatch/internal/protocol"
	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	ErrNoURL          = errors.New("channel: stream url is required")
	ErrNoDialer       = errors.New("channel: dialer is required")
	ErrAlreadyRunning = errors.New("channel: already running")
	ErrClosed         = errors.New("channel: closed")
)

// State is the connection state of the progress stream.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

// DeliveryKind distinguishes stream messages from channel notices.
type DeliveryKind int

const (
	// DeliveryMessage carries one decoded progress message.
	DeliveryMessage DeliveryKind = iota
	// DeliveryStreamGap reports that the stream reopened after an unexpected
	// closure; SessionIDs lists the sessions attached at that moment.
	DeliveryStreamGap
	// DeliveryConnectionLost reports that the reconnection budget is exhausted.
	// SessionIDs lists the sessions that were attached; they are detached.
	DeliveryConnectionLost
)

func (k DeliveryKind) String() string {
	switch k {
	case DeliveryMessage:
		return "message"
	case DeliveryStreamGap:
		return "stream_gap"
	case DeliveryConnectionLost:
		return "connection_lost"
	}
	return "unknown"
}

// Delivery is one item on the ordered output of the channel.
type Delivery struct {
	Kind       DeliveryKind
	Message    protocol.Message
	SessionIDs []string
}

// Options configure a Channel. Zero values select defaults.
type Options struct {
	URL            string
	Dialer         Dialer
	MaxAttempts    int           // consecutive failed connects before giving up, default 5
	InitialBackoff time.Duration // default 1s
	MaxBackoff     time.Duration // default 30s
	StableAfter    time.Duration // uptime that proves a silent connection, default 5s
	Buffer         int           // delivery queue size, default 256
}

const (
	defaultMaxAttempts    = 5
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 30 * time.Second
	defaultStableAfter    = 5 * time.Second
	defaultBuffer         = 256
)

// Channel is the progress stream shared by all sessions.
type Channel struct {
	url            string
	dialer         Dialer
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	stableAfter    time.Duration
	logger         zerolog.Logger

	mu       sync.Mutex
	attached map[string]struct{}

	wake    chan struct{}
	out     chan Delivery
	state   *bus.Publisher[State]
	running atomic.Bool
	diag    rate.Sometimes
}

// New creates a channel. It does not connect until Run is called and a
// session is attached.
func New(opts Options) (*Channel, error) {
	if opts.URL == "" {
		return nil, ErrNoURL
	}
	if opts.Dialer == nil {
		return nil, ErrNoDialer
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = opts.InitialBackoff
	}
	if opts.StableAfter <= 0 {
		opts.StableAfter = defaultStableAfter
	}
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}

	c := &Channel{
		url:            opts.URL,
		dialer:         opts.Dialer,
		maxAttempts:    opts.MaxAttempts,
		initialBackoff: opts.InitialBackoff,
		maxBackoff:     opts.MaxBackoff,
		stableAfter:    opts.StableAfter,
		logger:         log.WithComponent("channel"),
		attached:       make(map[string]struct{}),
		wake:           make(chan struct{}, 1),
		out:            make(chan Delivery, opts.Buffer),
		state:          bus.New[State]("channel_state", 4),
		diag:           rate.Sometimes{First: 5, Interval: 10 * time.Second},
	}
	c.state.Publish(StateClosed)
	return c, nil
}

// newBackOff returns the deterministic reconnect schedule:
// initial, 2*initial, 4*initial ... capped at maxInterval.
func newBackOff(initial, maxInterval time.Duration) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxInterval,
	}
	b.Reset()
	return b
}

// Attach registers interest in a session's events. The first attachment
// triggers a connect.
func (c *Channel) Attach(sessionID string) {
	c.mu.Lock()
	c.attached[sessionID] = struct{}{}
	c.mu.Unlock()
	c.signal()
}

// Detach removes a session. When the last session detaches the connection
// is closed.
func (c *Channel) Detach(sessionID string) {
	c.mu.Lock()
	_, ok := c.attached[sessionID]
	delete(c.attached, sessionID)
	c.mu.Unlock()
	if ok {
		c.signal()
	}
}

// Attached returns the attached session ids in sorted order.
func (c *Channel) Attached() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.attached))
	for id := range c.attached {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Channel) attachedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.attached)
}

// detachAll clears the attachment set and returns what it held.
func (c *Channel) detachAll() []string {
	ids := c.Attached()
	c.mu.Lock()
	clear(c.attached)
	c.mu.Unlock()
	return ids
}

func (c *Channel) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Deliveries is the ordered output. It is closed when Run returns.
func (c *Channel) Deliveries() <-chan Delivery {
	return c.out
}

// State returns the current connection state.
func (c *Channel) State() State {
	s, _ := c.state.Latest()
	return s
}

// SubscribeState streams connection state changes.
func (c *Channel) SubscribeState() *bus.Subscription[State] {
	return c.state.Subscribe()
}

// WaitOpen blocks until the connection is open, ctx is done or the channel
// stops.
func (c *Channel) WaitOpen(ctx context.Context) error {
	sub := c.state.Subscribe()
	defer func() { _ = sub.Close() }()
	for {
		select {
		case s, ok := <-sub.C():
			if !ok {
				return ErrClosed
			}
			if s == StateOpen {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Channel) setState(s State) {
	if c.State() == s {
		return
	}
	c.state.Publish(s)
	metrics.SetChannelState(string(s))
	c.logger.Debug().
		Str(log.FieldEvent, "channel.state_changed").
		Str(log.FieldNewState, string(s)).
		Msg("progress channel state changed")
}

// Run supervises the connection until ctx is cancelled. On return the
// connection is closed, no reconnect is pending and Deliveries is closed.
func (c *Channel) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(c.out)
	defer c.state.Close()
	defer c.setState(StateClosed)

	bo := newBackOff(c.initialBackoff, c.maxBackoff)
	failures := 0
	dropped := false

	for {
		if ctx.Err() != nil {
			return nil
		}
		if c.attachedCount() == 0 {
			c.setState(StateClosed)
			failures, dropped = 0, false
			bo.Reset()
			select {
			case <-ctx.Done():
				return nil
			case <-c.wake:
			}
			continue
		}

		c.setState(StateConnecting)
		conn, err := c.dialer.Dial(ctx, c.url)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			metrics.IncReconnect("failure")
			if failures >= c.maxAttempts {
				c.exhaust(ctx, failures, err)
				failures, dropped = 0, false
				bo.Reset()
				continue
			}
			wait := bo.NextBackOff()
			c.logger.Warn().
				Err(err).
				Str(log.FieldEvent, "channel.reconnect_scheduled").
				Int(log.FieldAttempt, failures).
				Dur(log.FieldBackoff, wait).
				Msg("progress stream connect failed")
			c.setState(StateClosed)
			if !c.sleep(ctx, wait) {
				return nil
			}
			continue
		}

		if failures > 0 || dropped {
			metrics.IncReconnect("success")
		}
		openedAt := time.Now()
		c.setState(StateOpen)
		c.logger.Info().
			Str(log.FieldEvent, "channel.opened").
			Str(log.FieldEndpoint, platformnet.RedactURL(c.url)).
			Msg("progress stream open")

		if dropped {
			dropped = false
			if ids := c.Attached(); len(ids) > 0 {
				c.logger.Warn().
					Str(log.FieldEvent, "channel.stream_gap").
					Strs("sessions", ids).
					Msg("progress stream reopened with sessions in flight")
				if !c.emit(ctx, Delivery{Kind: DeliveryStreamGap, SessionIDs: ids}) {
					_ = conn.Close()
					return nil
				}
			}
		}

		end, received, err := c.serve(ctx, conn)
		switch end {
		case endCancelled:
			return nil
		case endIdle:
			failures = 0
			bo.Reset()
			c.logger.Info().
				Str(log.FieldEvent, "channel.closed_idle").
				Msg("last session detached, progress stream closed")
		case endDropped:
			dropped = true
			if received || time.Since(openedAt) >= c.stableAfter {
				failures = 0
				bo.Reset()
			} else {
				failures++
				metrics.IncReconnect("unstable")
				if failures >= c.maxAttempts {
					c.exhaust(ctx, failures, err)
					failures, dropped = 0, false
					bo.Reset()
					continue
				}
			}
			wait := bo.NextBackOff()
			c.logger.Warn().
				Err(err).
				Str(log.FieldEvent, "channel.dropped").
				Int(log.FieldAttempt, failures).
				Dur(log.FieldBackoff, wait).
				Msg("progress stream closed unexpectedly")
			c.setState(StateClosed)
			if !c.sleep(ctx, wait) {
				return nil
			}
		}
	}
}

// exhaust detaches every session and reports them lost.
func (c *Channel) exhaust(ctx context.Context, attempts int, err error) {
	ids := c.detachAll()
	metrics.ChannelExhaustedTotal.Inc()
	c.logger.Error().
		Err(err).
		Str(log.FieldEvent, "channel.retry_exhausted").
		Int(log.FieldAttempt, attempts).
		Strs("sessions", ids).
		Msg("progress stream reconnect budget exhausted")
	c.setState(StateClosed)
	if len(ids) > 0 {
		c.emit(ctx, Delivery{Kind: DeliveryConnectionLost, SessionIDs: ids})
	}
}

// sleep waits for d. It returns early (true) when the last session detaches
// and false when ctx is done.
func (c *Channel) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
			return true
		case <-c.wake:
			if c.attachedCount() == 0 {
				return true
			}
		}
	}
}

func (c *Channel) emit(ctx context.Context, d Delivery) bool {
	select {
	case c.out <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

type serveEnd int

const (
	endCancelled serveEnd = iota
	endIdle
	endDropped
)

// serve reads from conn until it fails, ctx is done or no session is
// attached. received reports whether any frame arrived. The reader goroutine
// has exited when serve returns.
func (c *Channel) serve(ctx context.Context, conn Conn) (end serveEnd, received bool, err error) {
	var got atomic.Bool
	stop := make(chan struct{})
	readErr := make(chan error, 1)
	readerDone := make(chan struct{})

	go func() {
		defer close(readerDone)
		for {
			frame, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			got.Store(true)
			if !c.dispatch(frame, stop) {
				return
			}
		}
	}()

	shutdown := func() {
		close(stop)
		_ = conn.Close()
		<-readerDone
	}

	for {
		select {
		case <-ctx.Done():
			shutdown()
			return endCancelled, got.Load(), nil
		case err := <-readErr:
			shutdown()
			return endDropped, got.Load(), err
		case <-c.wake:
			if c.attachedCount() == 0 {
				shutdown()
				return endIdle, got.Load(), nil
			}
		}
	}
}

// dispatch decodes one frame and forwards its valid messages in order.
// It returns false when stop is closed.
func (c *Channel) dispatch(frame []byte, stop <-chan struct{}) bool {
	msgs, errs := protocol.DecodeFrame(frame)
	for _, err := range errs {
		reason := protocol.ReasonOf(err)
		outcome := "malformed"
		if errors.Is(err, protocol.ErrUnknownStage) {
			outcome = "unknown_stage"
		}
		metrics.IncStreamMessage(outcome)
		c.diag.Do(func() {
			c.logger.Warn().
				Err(err).
				Str(log.FieldEvent, "channel.message_dropped").
				Str("reason", reason).
				Msg("dropping progress message")
		})
	}
	for _, m := range msgs {
		select {
		case c.out <- Delivery{Kind: DeliveryMessage, Message: m}:
			metrics.IncStreamMessage("delivered")
		case <-stop:
			return false
		}
	}
	return true
}

// String is used in diagnostics.
func (d Delivery) String() string {
	if d.Kind == DeliveryMessage {
		return fmt.Sprintf("message(%s %s)", d.Message.SessionID, d.Message.Stage)
	}
	return fmt.Sprintf("%s%v", d.Kind, d.SessionIDs)
}
