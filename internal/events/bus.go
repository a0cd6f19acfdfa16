// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package events

import (
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Filter selects the events a subscriber wants.
type Filter func(Event) bool

// Handler receives events.
type Handler func(Event)

// Kinds returns a filter accepting only the given kinds.
func Kinds(kinds ...Kind) Filter {
	return func(e Event) bool {
		return slices.Contains(kinds, e.Kind)
	}
}

// All accepts every event.
func All(Event) bool { return true }

// =============================================================================
// BUS
// =============================================================================

// Bus fans published events out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
	log    zerolog.Logger
}

// NewBus creates an empty bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[string]*Subscription),
		log:  log,
	}
}

// Subscribe registers handler for events matching filter. A nil filter accepts all.
func (b *Bus) Subscribe(filter Filter, handler Handler) *Subscription {
	if filter == nil {
		filter = All
	}
	s := &Subscription{
		id:      uuid.NewString(),
		bus:     b,
		filter:  filter,
		handler: handler,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		log:     b.log,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.closed = true
		close(s.done)
		return s
	}
	b.subs[s.id] = s
	b.mu.Unlock()

	go s.run()
	return s
}

// Publish queues e for every matching subscriber. It never blocks on handlers.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		if s.filter(e) {
			s.enqueue(e)
		}
	}
}

// Close stops delivery to every subscriber.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = map[string]*Subscription{}
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

func (b *Bus) remove(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// =============================================================================
// SUBSCRIPTION
// =============================================================================

// Subscription is a single subscriber's ordered delivery queue.
type Subscription struct {
	id      string
	bus     *Bus
	filter  Filter
	handler Handler
	log     zerolog.Logger

	mu     sync.Mutex
	queue  []Event
	closed bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// Close stops delivery. Events already being handled finish first.
func (s *Subscription) Close() {
	s.bus.remove(s.id)
	s.stop()
}

func (s *Subscription) stop() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Subscription) enqueue(e Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, e)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if s.closed || len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			e := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			s.deliver(e)
		}
	}
}

func (s *Subscription) deliver(e Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("kind", e.Kind.String()).Msg("event handler panicked")
		}
	}()
	s.handler(e)
}
