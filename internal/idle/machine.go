// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package idle

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/utils/clock"

	"github.com/jeranaias/sessionkeep/internal/activity"
	"github.com/jeranaias/sessionkeep/internal/events"
)

// =============================================================================
// STATE
// =============================================================================

// State is the idle classification.
type State int

const (
	// Active means the user interacted within the warning threshold.
	Active State = iota
	// Warning means the warning lead was reached.
	Warning
	// TimedOut means the idle timeout was reached and no reset happened yet.
	TimedOut
)

// String returns a string representation of the State.
func (s State) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case Warning:
		return "WARNING"
	case TimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN"
	}
}

// Activity is the part of the activity monitor the machine reads.
type Activity interface {
	Last() activity.Signal
	Subscribe(fn func(activity.Signal)) (cancel func())
}

// Publisher receives emitted events. Publish must not block or call back into the Machine.
type Publisher interface {
	Publish(events.Event)
}

// =============================================================================
// MACHINE
// =============================================================================

// Machine is the idle-state machine.
type Machine struct {
	clock    clock.WithTicker
	activity Activity
	pub      Publisher
	baseLog  zerolog.Logger

	mu         sync.Mutex
	log        zerolog.Logger
	cfg        Config
	configured bool
	running    bool
	state      State
	baseline   time.Time // last rearm; counts as activity
	idleSince  time.Time // activity timestamp in use when ACTIVE was left
	expired    bool
	stop       chan struct{}
	done       chan struct{}
	unsub      func()
}

// NewMachine creates an unconfigured, stopped machine.
func NewMachine(clk clock.WithTicker, act Activity, pub Publisher, log zerolog.Logger) *Machine {
	return &Machine{
		clock:    clk,
		activity: act,
		pub:      pub,
		baseLog:  log,
		log:      log,
	}
}

// Configure installs cfg. It fails with a *ConfigurationError while running.
func (m *Machine) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return configErr("configure", "machine is running; stop it before reconfiguring")
	}
	m.cfg = cfg
	m.configured = true
	m.log = m.baseLog
	if cfg.EnableDiagnostics {
		m.log = m.baseLog.Level(zerolog.DebugLevel)
	}
	return nil
}

// Start begins ticking from state ACTIVE, using the current activity timestamp as baseline.
func (m *Machine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.configured {
		return configErr("start", "configure must be called before start")
	}
	if m.running {
		return configErr("start", "machine is already running")
	}

	m.state = Active
	m.expired = false
	m.baseline = m.activity.Last().At
	m.idleSince = time.Time{}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.unsub = m.activity.Subscribe(m.onActivity)

	// Classify at elapsed zero too, so a lead equal to the timeout warns at once.
	m.evaluateLocked(m.clock.Now())

	go m.loop(m.clock.NewTicker(m.cfg.tick()), m.stop, m.done)

	m.log.Debug().
		Dur("idle_timeout", m.cfg.IdleTimeout).
		Dur("warning_lead", m.cfg.WarningLead).
		Dur("tick", m.cfg.tick()).
		Msg("idle monitoring started")
	return nil
}

// Stop halts ticking and waits for the tick goroutine. The last state is kept.
func (m *Machine) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stop, done, unsub := m.stop, m.done, m.unsub
	m.unsub = nil
	m.mu.Unlock()

	unsub()
	close(stop)
	<-done
	m.log.Debug().Str("state", m.State().String()).Msg("idle monitoring stopped")
}

// Reset leaves TIMED_OUT (or WARNING) without emitting, after a successful
// re-authentication. It is a no-op while stopped.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	prev := m.state
	m.state = Active
	m.expired = false
	m.baseline = m.clock.Now()
	m.idleSince = time.Time{}
	logSessionEvent(m.log, "SESSION_REARMED", prev, 0)
}

// Check runs one classification pass. The tick loop calls it on every tick.
func (m *Machine) Check() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.evaluateLocked(m.clock.Now())
}

func (m *Machine) loop(ticker clock.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			m.safeCheck()
		}
	}
}

func (m *Machine) safeCheck() {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Msg("idle tick panicked; monitoring continues")
		}
	}()
	m.Check()
}

// =============================================================================
// TRANSITIONS
// =============================================================================

func (m *Machine) lastActiveLocked() activity.Signal {
	sig := m.activity.Last()
	if m.baseline.After(sig.At) {
		return activity.Signal{At: m.baseline}
	}
	return sig
}

func (m *Machine) evaluateLocked(now time.Time) {
	last := m.lastActiveLocked()

	// Activity the listener has not seen yet (e.g. recorded before Subscribe ran).
	if m.state != Active && last.At.After(m.idleSince) {
		m.returnLocked(last)
		return
	}

	elapsed := now.Sub(last.At)

	if m.state == Active && elapsed >= m.cfg.WarningAt() {
		m.state = Warning
		m.idleSince = last.At
		m.emitLocked(events.Event{
			Kind:         events.IdleWarning,
			Elapsed:      elapsed,
			LastActiveAt: last.At,
			At:           now,
			Context: map[string]any{
				events.CtxRemainingMs: max(m.cfg.IdleTimeout-elapsed, 0).Milliseconds(),
			},
		})
		logSessionEvent(m.log, "SESSION_WARNING", Active, elapsed)
	}

	if m.state == Warning && elapsed >= m.cfg.IdleTimeout {
		m.state = TimedOut
		m.emitLocked(events.Event{
			Kind:         events.TimeoutExceeded,
			Elapsed:      elapsed,
			LastActiveAt: last.At,
			At:           now,
			Context: map[string]any{
				events.CtxIdleTimeoutMs: m.cfg.IdleTimeout.Milliseconds(),
			},
		})
		logSessionEvent(m.log, "SESSION_TIMEOUT", Warning, elapsed)
	}

	if m.state == TimedOut && !m.expired && m.cfg.HardTimeout > 0 && elapsed >= m.cfg.HardTimeout {
		m.expired = true
		m.emitLocked(events.Event{
			Kind:         events.SessionExpired,
			Elapsed:      elapsed,
			LastActiveAt: last.At,
			At:           now,
			Context: map[string]any{
				events.CtxHardTimeoutMs: m.cfg.HardTimeout.Milliseconds(),
			},
		})
		logSessionEvent(m.log, "SESSION_EXPIRED", TimedOut, elapsed)
	}
}

func (m *Machine) onActivity(sig activity.Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || m.state == Active || !sig.At.After(m.idleSince) {
		return
	}
	m.returnLocked(sig)
}

// returnLocked moves back to ACTIVE after activity. An expired session ignores
// raw activity; only Reset or Stop leave it.
func (m *Machine) returnLocked(sig activity.Signal) {
	if m.expired {
		return
	}
	prev := m.state
	idleFor := sig.At.Sub(m.idleSince)

	ctx := map[string]any{
		events.CtxReturnReason:  string(sig.Channel),
		events.CtxPreviousState: prev.String(),
	}
	if prev == TimedOut {
		ctx[events.CtxRecoveredWithoutDecision] = true
	}

	m.emitLocked(events.Event{
		Kind:         events.UserReturned,
		Elapsed:      idleFor,
		LastActiveAt: m.idleSince,
		At:           sig.At,
		Context:      ctx,
	})
	m.state = Active
	m.idleSince = time.Time{}
	logSessionEvent(m.log, "SESSION_RETURNED", prev, idleFor)
}

func (m *Machine) emitLocked(e events.Event) {
	m.log.Debug().
		Str("kind", e.Kind.String()).
		Dur("elapsed", e.Elapsed).
		Time("last_active", e.LastActiveAt).
		Msg("idle event")
	m.pub.Publish(e)
}

// =============================================================================
// STATUS
// =============================================================================

// State returns the current classification.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Running reports whether the machine is ticking.
func (m *Machine) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Config returns the installed configuration.
func (m *Machine) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Status is a point-in-time view of the machine.
type Status struct {
	State        State
	Running      bool
	Expired      bool
	LastActiveAt time.Time
	Idle         time.Duration
	Remaining    time.Duration
}

// Status returns the current status.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	last := m.lastActiveLocked().At
	idleFor := m.clock.Since(last)
	return Status{
		State:        m.state,
		Running:      m.running,
		Expired:      m.expired,
		LastActiveAt: last,
		Idle:         idleFor,
		Remaining:    max(m.cfg.IdleTimeout-idleFor, 0),
	}
}

// logSessionEvent writes an audit line for a session transition.
func logSessionEvent(log zerolog.Logger, eventType string, from State, idleFor time.Duration) {
	log.Info().
		Str("event", eventType).
		Str("from", from.String()).
		Dur("idle", idleFor).
		Msg("session transition")
}
