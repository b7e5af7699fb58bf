// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package registry tracks the upload sessions of this client.
//
// The Registry is a single-writer actor: every session mutation happens on
// its Run goroutine, fed by one ordered queue of stream deliveries, the
// results of submissions and the commands of its public methods. Observers
// only ever see copies.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/ingestwatch/internal/bus"
	"github.com/ManuGH/ingestwatch/internal/channel"
	"github.com/ManuGH/ingestwatch/internal/log"
	"github.com/ManuGH/ingestwatch/internal/metrics"
	"github.com/ManuGH/ingestwatch/internal/session"
	"github.com/ManuGH/ingestwatch/internal/upload"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	ErrNotFound       = errors.New("registry: session not found")
	ErrSessionActive  = errors.New("registry: session is not in a terminal state")
	ErrClosed         = errors.New("registry: closed")
	ErrAlreadyRunning = errors.New("registry: already running")
	ErrNoSelection    = errors.New("registry: nothing selected")
)

// Stream is the progress channel as seen by the registry.
type Stream interface {
	Attach(sessionID string)
	Detach(sessionID string)
	Deliveries() <-chan channel.Delivery
	WaitOpen(ctx context.Context) error
}

// Options tune the registry. Zero values select defaults.
type Options struct {
	Policy upload.Policy
	// OpenWait bounds how long a submission waits for the progress stream
	// before sending anyway. Default 5s.
	OpenWait time.Duration
	NewID    func() string
	Now      func() time.Time
}

type submitResult struct {
	id  string
	err error
}

// Registry owns every upload session.
type Registry struct {
	stream    Stream
	submitter upload.Submitter
	policy    upload.Policy
	openWait  time.Duration
	newID     func() string
	now       func() time.Time
	logger    zerolog.Logger
	diag      rate.Sometimes

	pub     *bus.Publisher[[]session.Session]
	cmds    chan func()
	results chan submitResult
	stopped chan struct{}
	running atomic.Bool
	wg      sync.WaitGroup

	// owned by the Run goroutine
	runCtx   context.Context
	sessions map[string]*session.Session
	order    []string
	cancels  map[string]context.CancelFunc
}

// New creates a registry reading events from stream and submitting through submitter.
func New(stream Stream, submitter upload.Submitter, opts Options) *Registry {
	if opts.OpenWait <= 0 {
		opts.OpenWait = 5 * time.Second
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	r := &Registry{
		stream:    stream,
		submitter: submitter,
		policy:    opts.Policy,
		openWait:  opts.OpenWait,
		newID:     opts.NewID,
		now:       opts.Now,
		logger:    log.WithComponent("registry"),
		diag:      rate.Sometimes{First: 5, Interval: 10 * time.Second},
		pub:       bus.New[[]session.Session]("sessions", 0),
		cmds:      make(chan func()),
		results:   make(chan submitResult),
		stopped:   make(chan struct{}),
		sessions:  make(map[string]*session.Session),
		cancels:   make(map[string]context.CancelFunc),
	}
	r.pub.Publish([]session.Session{})
	return r
}

// Snapshot returns copies of all tracked sessions in selection order.
func (r *Registry) Snapshot() []session.Session {
	v, _ := r.pub.Latest()
	return cloneAll(v)
}

// Get returns a copy of one session.
func (r *Registry) Get(id string) (session.Session, bool) {
	for _, s := range r.Snapshot() {
		if s.ID == id {
			return s, true
		}
	}
	return session.Session{}, false
}

// Subscribe streams session lists. The current list is delivered immediately.
func (r *Registry) Subscribe() *bus.Subscription[[]session.Session] {
	return r.pub.Subscribe()
}

// do runs fn on the Run goroutine and waits for it.
func (r *Registry) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case r.cmds <- func() { fn(); close(done) }:
	case <-r.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// Select creates one Queued session per file and starts their submissions.
// Files failing the client-side policy go straight to Failed. The returned
// ids are in selection order.
func (r *Registry) Select(ctx context.Context, sels []Selection) ([]string, error) {
	if len(sels) == 0 {
		return nil, ErrNoSelection
	}
	var ids []string
	err := r.do(ctx, func() {
		ids = make([]string, 0, len(sels))
		for _, sel := range sels {
			ids = append(ids, r.create(sel))
		}
		r.publish()
	})
	return ids, err
}

// Acknowledge removes a terminal session.
func (r *Registry) Acknowledge(ctx context.Context, id string) error {
	var res error
	err := r.do(ctx, func() {
		s, ok := r.sessions[id]
		switch {
		case !ok:
			res = ErrNotFound
		case !s.State.IsTerminal():
			res = fmt.Errorf("%w: %s is %s", ErrSessionActive, id, s.State)
		default:
			delete(r.sessions, id)
			for i, oid := range r.order {
				if oid == id {
					r.order = append(r.order[:i], r.order[i+1:]...)
					break
				}
			}
			r.logger.Debug().
				Str(log.FieldEvent, "registry.acknowledged").
				Str(log.FieldSessionID, id).
				Msg("session acknowledged and removed")
			r.publish()
		}
	})
	if err != nil {
		return err
	}
	return res
}

// Cancel fails a non-terminal session with code cancelled and aborts its
// submission. Cancelling a terminal session is a no-op.
func (r *Registry) Cancel(ctx context.Context, id string) error {
	var res error
	err := r.do(ctx, func() {
		if _, ok := r.sessions[id]; !ok {
			res = ErrNotFound
			return
		}
		r.apply(id, session.Event{Kind: session.EvCancelled})
		r.publish()
	})
	if err != nil {
		return err
	}
	return res
}

// Run processes deliveries, submission results and commands until ctx is
// cancelled. On return all submissions have been aborted and every session
// is detached from the stream.
func (r *Registry) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	r.runCtx = ctx
	defer close(r.stopped)
	defer r.pub.Close()
	defer r.teardown()

	deliveries := r.stream.Deliveries()
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-r.cmds:
			fn()
		case res := <-r.results:
			r.onSubmitted(res)
		case d, ok := <-deliveries:
			if !ok {
				deliveries = nil
				continue
			}
			r.onDelivery(d)
		}
	}
}

func (r *Registry) teardown() {
	for _, cancel := range r.cancels {
		cancel()
	}
	r.wg.Wait()
	for _, id := range r.order {
		if !r.sessions[id].State.IsTerminal() {
			r.stream.Detach(id)
		}
	}
	r.logger.Info().Str(log.FieldEvent, "registry.stopped").Msg("session registry stopped")
}

// create registers one selection. Runs on the loop.
func (r *Registry) create(sel Selection) string {
	id := r.newID()
	for _, dup := r.sessions[id]; dup; _, dup = r.sessions[id] {
		id = r.newID()
	}
	s := session.New(id, sel.File, r.now())
	r.sessions[id] = &s
	r.order = append(r.order, id)

	r.logger.Info().
		Str(log.FieldEvent, "registry.session_created").
		Str(log.FieldSessionID, id).
		Str(log.FieldFileName, sel.File.Name).
		Int64(log.FieldFileSize, sel.File.Size).
		Msg("upload session created")

	if err := r.policy.Check(sel.File); err != nil {
		r.apply(id, session.Event{Kind: session.EvRejected, Detail: upload.Detail(err)})
		return id
	}

	r.stream.Attach(id)
	ctx, cancel := context.WithCancel(r.runCtx)
	r.cancels[id] = cancel
	r.wg.Add(1)
	go r.submit(ctx, id, sel)
	return id
}

// submit runs off the loop. It touches no session state.
func (r *Registry) submit(ctx context.Context, id string, sel Selection) {
	defer r.wg.Done()

	waitCtx, cancel := context.WithTimeout(ctx, r.openWait)
	if err := r.stream.WaitOpen(waitCtx); err != nil && ctx.Err() == nil {
		r.logger.Debug().
			Err(err).
			Str(log.FieldEvent, "registry.stream_not_open").
			Str(log.FieldSessionID, id).
			Msg("submitting before the progress stream is open")
	}
	cancel()

	var err error
	if sel.Open == nil {
		err = errors.New("no payload")
	} else if body, openErr := sel.Open(); openErr != nil {
		err = fmt.Errorf("open payload: %w", openErr)
	} else {
		err = r.submitter.Submit(ctx, id, sel.File, body)
		_ = body.Close()
	}

	select {
	case r.results <- submitResult{id: id, err: err}:
	case <-ctx.Done():
	}
}

func (r *Registry) onSubmitted(res submitResult) {
	if cancel, ok := r.cancels[res.id]; ok {
		cancel()
		delete(r.cancels, res.id)
	}
	s, ok := r.sessions[res.id]
	if !ok || s.State.IsTerminal() {
		return
	}
	if res.err == nil {
		r.apply(res.id, session.Event{Kind: session.EvAccepted})
	} else {
		r.apply(res.id, session.Event{Kind: session.EvRejected, Detail: upload.Detail(res.err)})
	}
	r.publish()
}

func (r *Registry) onDelivery(d channel.Delivery) {
	switch d.Kind {
	case channel.DeliveryMessage:
		id := d.Message.SessionID
		if _, ok := r.sessions[id]; !ok {
			metrics.IncStreamMessage("unknown_session")
			r.diag.Do(func() {
				r.logger.Warn().
					Str(log.FieldEvent, "registry.event_dropped").
					Str(log.FieldSessionID, id).
					Str(log.FieldStage, string(d.Message.Stage)).
					Msg("dropping event for unknown session")
			})
			return
		}
		ev, ok := d.Message.SessionEvent()
		if !ok {
			return
		}
		r.apply(id, ev)
	case channel.DeliveryStreamGap:
		for _, id := range d.SessionIDs {
			if _, ok := r.sessions[id]; ok {
				r.apply(id, session.Event{Kind: session.EvStreamGap, Detail: session.StreamGap()})
			}
		}
	case channel.DeliveryConnectionLost:
		for _, id := range d.SessionIDs {
			if _, ok := r.sessions[id]; ok {
				r.apply(id, session.Event{Kind: session.EvConnectionLost, Detail: session.ConnectionLost()})
			}
		}
	}
	r.publish()
}

// apply folds ev into a tracked session and handles the side effects of
// reaching a terminal state. Runs on the loop.
func (r *Registry) apply(id string, ev session.Event) {
	s := r.sessions[id]
	res := session.Apply(s, ev, r.now())

	switch res.Outcome {
	case session.IgnoredTerminal:
		metrics.IncStreamMessage("late")
		r.logger.Debug().
			Str(log.FieldEvent, "registry.late_event").
			Str(log.FieldSessionID, id).
			Str("kind", ev.Kind.String()).
			Str(log.FieldOldState, string(s.State)).
			Msg("ignoring event for terminal session")
		return
	case session.IgnoredStale, session.IgnoredInvalid:
		r.logger.Debug().
			Str(log.FieldEvent, "registry.event_ignored").
			Str(log.FieldSessionID, id).
			Str("kind", ev.Kind.String()).
			Str("outcome", res.Outcome.String()).
			Int(log.FieldPercent, ev.Percent).
			Str(log.FieldOldState, string(s.State)).
			Msg("event not applied")
		return
	}

	if res.Changed() {
		metrics.RecordSessionTransition(string(res.From), string(res.To))
		r.logger.Info().
			Str(log.FieldEvent, "registry.session_transition").
			Str(log.FieldSessionID, id).
			Str(log.FieldOldState, string(res.From)).
			Str(log.FieldNewState, string(res.To)).
			Int(log.FieldPercent, s.ProgressPercent).
			Msg("session state changed")
	}
	if ev.Kind == session.EvStreamGap {
		r.logger.Warn().
			Str(log.FieldEvent, "registry.stream_gap").
			Str(log.FieldSessionID, id).
			Msg("session may have missed progress updates")
	}

	if !s.State.IsTerminal() {
		return
	}
	if cancel, ok := r.cancels[id]; ok {
		cancel()
		delete(r.cancels, id)
	}
	r.stream.Detach(id)
	if s.State == session.StateFailed && s.Error != nil {
		metrics.RecordSessionFailure(string(s.Error.Kind), s.Error.Code)
		r.logger.Warn().
			Str(log.FieldEvent, "registry.session_failed").
			Str(log.FieldSessionID, id).
			Str(log.FieldErrorKind, string(s.Error.Kind)).
			Str(log.FieldErrorCode, s.Error.Code).
			Str("message", s.Error.Message).
			Msg("upload session failed")
	}
}

func (r *Registry) publish() {
	out := make([]session.Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id].Clone())
	}
	metrics.SetTrackedSessions(len(out))
	r.pub.Publish(out)
}

func cloneAll(in []session.Session) []session.Session {
	out := make([]session.Session, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}

// AllTerminal reports whether every session in the list is Complete or Failed.
func AllTerminal(sessions []session.Session) bool {
	for _, s := range sessions {
		if !s.State.IsTerminal() {
			return false
		}
	}
	return true
}
