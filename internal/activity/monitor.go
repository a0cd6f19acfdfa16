// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package activity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"k8s.io/utils/clock"
)

// DefaultDebounce is the window inside which activity updates coalesce.
const DefaultDebounce = 50 * time.Millisecond

// Channel names the input channel that produced a signal.
type Channel string

const (
	Pointer    Channel = "pointer"
	Keyboard   Channel = "keyboard"
	Touch      Channel = "touch"
	Scroll     Channel = "scroll"
	Visibility Channel = "visibility"
	Focus      Channel = "focus"
	Resume     Channel = "resume"
	Manual     Channel = "manual"
)

// Signal is delivered to subscribers whenever the timestamp advances.
type Signal struct {
	Channel Channel
	At      time.Time
}

// =============================================================================
// SOURCES
// =============================================================================

// Source produces activity signals until ctx is cancelled.
type Source interface {
	Run(ctx context.Context, emit func(Channel))
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, emit func(Channel))

// Run calls f.
func (f SourceFunc) Run(ctx context.Context, emit func(Channel)) { f(ctx, emit) }

// =============================================================================
// MONITOR
// =============================================================================

// Monitor owns the activity timestamp.
type Monitor struct {
	clock   clock.PassiveClock
	log     zerolog.Logger
	sources []Source

	mu          sync.Mutex
	last        time.Time
	lastChannel Channel
	limiter     *rate.Limiter
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	listenersMu sync.RWMutex
	listeners   map[int]func(Signal)
	nextID      int
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithDebounce sets the coalescing window. Zero disables debouncing.
func WithDebounce(d time.Duration) Option {
	return func(m *Monitor) {
		m.limiter = newLimiter(d)
	}
}

// WithSources adds sources attached on Start.
func WithSources(sources ...Source) Option {
	return func(m *Monitor) {
		m.sources = append(m.sources, sources...)
	}
}

// NewMonitor creates a stopped monitor whose timestamp starts at the clock's now.
func NewMonitor(clk clock.PassiveClock, log zerolog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		clock:     clk,
		log:       log,
		last:      clk.Now(),
		limiter:   newLimiter(DefaultDebounce),
		listeners: make(map[int]func(Signal)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func newLimiter(d time.Duration) *rate.Limiter {
	if d <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

// Start attaches every source. Calling Start on a running monitor is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true

	for _, src := range m.sources {
		m.wg.Add(1)
		go m.runSource(ctx, src)
	}
}

func (m *Monitor) runSource(ctx context.Context, src Source) {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Msg("activity source panicked; source detached")
		}
	}()
	src.Run(ctx, func(ch Channel) { m.Record(ch) })
}

// Stop detaches every source and waits for them. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Running reports whether the monitor is attached.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Record registers activity on ch. It returns true when the timestamp advanced.
// Signals are ignored while stopped, inside the debounce window, or when the
// clock reads earlier than the current timestamp.
func (m *Monitor) Record(ch Channel) bool {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return false
	}
	now := m.clock.Now()
	if !now.After(m.last) || !m.limiter.AllowN(now, 1) {
		m.mu.Unlock()
		return false
	}
	m.last = now
	m.lastChannel = ch
	m.mu.Unlock()

	m.notify(Signal{Channel: ch, At: now})
	return true
}

// LastActive returns the activity timestamp.
func (m *Monitor) LastActive() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Last returns the timestamp together with the channel that set it.
// The channel is empty until the first recorded signal.
func (m *Monitor) Last() Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Signal{Channel: m.lastChannel, At: m.last}
}

// Subscribe registers fn for timestamp advances and returns its cancel func.
func (m *Monitor) Subscribe(fn func(Signal)) func() {
	m.listenersMu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.listenersMu.Unlock()

	return func() {
		m.listenersMu.Lock()
		delete(m.listeners, id)
		m.listenersMu.Unlock()
	}
}

func (m *Monitor) notify(sig Signal) {
	m.listenersMu.RLock()
	fns := make([]func(Signal), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.listenersMu.RUnlock()

	for _, fn := range fns {
		m.call(fn, sig)
	}
}

func (m *Monitor) call(fn func(Signal), sig Signal) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Str("channel", string(sig.Channel)).Msg("activity listener panicked")
		}
	}()
	fn(sig)
}
