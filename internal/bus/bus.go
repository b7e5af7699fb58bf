// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package bus provides the in-process snapshot publish/subscribe used by the
// owning components (monitor, registry, channel) to expose immutable state to
// observers.
package bus

import (
	"sync"

	"github.com/ManuGH/ingestwatch/internal/metrics"
)

const defaultBuffer = 16

// Publisher fans out snapshots of type T to subscribers. Publish never blocks:
// a subscriber that falls behind loses its oldest pending snapshot, so every
// subscriber always converges on the latest published value.
type Publisher[T any] struct {
	mu      sync.Mutex
	topic   string
	buffer  int
	subs    map[uint64]*Subscription[T]
	nextID  uint64
	last    T
	hasLast bool
	closed  bool
}

// New creates a publisher for the given topic. buffer <= 0 selects the default.
func New[T any](topic string, buffer int) *Publisher[T] {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Publisher[T]{
		topic:  topic,
		buffer: buffer,
		subs:   make(map[uint64]*Subscription[T]),
	}
}

// Publish delivers v to every subscriber and remembers it as the latest value.
// Publishing on a closed publisher is a no-op.
func (p *Publisher[T]) Publish(v T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.last = v
	p.hasLast = true
	metrics.IncBusPublished(p.topic)
	for _, s := range p.subs {
		p.deliver(s, v)
	}
}

// deliver performs a non-blocking send, evicting the oldest pending value when
// the subscriber buffer is full. Caller must hold p.mu.
func (p *Publisher[T]) deliver(s *Subscription[T], v T) {
	select {
	case s.ch <- v:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- v:
		metrics.IncBusDropReason(p.topic, "conflated")
	default:
		metrics.IncBusDropReason(p.topic, "full")
	}
}

// Latest returns the most recently published value, if any.
func (p *Publisher[T]) Latest() (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.hasLast
}

// Subscribe registers a new subscriber. If a value was already published the
// subscriber receives it immediately.
func (p *Publisher[T]) Subscribe() *Subscription[T] {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := &Subscription[T]{p: p, ch: make(chan T, p.buffer)}
	if p.closed {
		close(s.ch)
		s.done = true
		return s
	}
	p.nextID++
	s.id = p.nextID
	p.subs[s.id] = s
	if p.hasLast {
		s.ch <- p.last
	}
	return s
}

// Close closes every subscriber channel. Further publishes are dropped.
func (p *Publisher[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, s := range p.subs {
		delete(p.subs, id)
		s.done = true
		close(s.ch)
	}
}

// Subscription is one observer's view of a Publisher.
type Subscription[T any] struct {
	p    *Publisher[T]
	id   uint64
	ch   chan T
	done bool // guarded by p.mu
}

// C returns the channel on which snapshots are delivered. It is closed when
// the subscription or its publisher is closed.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription[T]) Close() error {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	delete(s.p.subs, s.id)
	close(s.ch)
	return nil
}
