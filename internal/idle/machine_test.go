// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package idle

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/jeranaias/sessionkeep/internal/activity"
	"github.com/jeranaias/sessionkeep/internal/events"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

const tick = 200 * time.Millisecond

// recorder collects published events synchronously.
type recorder struct {
	mu  sync.Mutex
	got []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	r.got = append(r.got, e)
	r.mu.Unlock()
}

func (r *recorder) events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.got...)
}

func (r *recorder) count(k events.Kind) int {
	n := 0
	for _, e := range r.events() {
		if e.Kind == k {
			n++
		}
	}
	return n
}

type fixture struct {
	clock   *clocktesting.FakeClock
	monitor *activity.Monitor
	rec     *recorder
	machine *Machine
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	clk := clocktesting.NewFakeClock(epoch)
	mon := activity.NewMonitor(clk, zerolog.Nop(), activity.WithDebounce(0))
	mon.Start()
	rec := &recorder{}
	m := NewMachine(clk, mon, rec, zerolog.Nop())
	require.NoError(t, m.Configure(cfg))
	require.NoError(t, m.Start())
	t.Cleanup(func() {
		m.Stop()
		mon.Stop()
	})
	return &fixture{clock: clk, monitor: mon, rec: rec, machine: m}
}

// advance steps the clock one tick at a time and runs a classification pass after each.
func (f *fixture) advance(d time.Duration) {
	f.advanceBy(d, tick)
}

func (f *fixture) advanceBy(d, step time.Duration) {
	for stepped := time.Duration(0); stepped < d; stepped += step {
		f.clock.Step(step)
		f.machine.Check()
	}
}

// =============================================================================
// CONFIGURATION TESTS
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"defaults", DefaultConfig(), true},
		{"zero lead", Config{IdleTimeout: 10 * time.Second}, true},
		{"lead equals timeout", Config{IdleTimeout: time.Minute, WarningLead: time.Minute}, true},
		{"zero timeout", Config{}, false},
		{"negative lead", Config{IdleTimeout: time.Minute, WarningLead: -time.Second}, false},
		{"lead exceeds timeout", Config{IdleTimeout: time.Minute, WarningLead: 2 * time.Minute}, false},
		{"hard timeout too small", Config{IdleTimeout: time.Minute, HardTimeout: time.Minute}, false},
		{"hard timeout larger", Config{IdleTimeout: time.Minute, HardTimeout: 2 * time.Minute}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrConfiguration)
			}
		})
	}
}

func TestMachine_StartWithoutConfigure(t *testing.T) {
	clk := clocktesting.NewFakeClock(epoch)
	mon := activity.NewMonitor(clk, zerolog.Nop())
	m := NewMachine(clk, mon, &recorder{}, zerolog.Nop())

	err := m.Start()
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "start", cfgErr.Op)
}

func TestMachine_ConfigureWhileRunningFails(t *testing.T) {
	f := newFixture(t, Config{IdleTimeout: time.Minute})

	err := f.machine.Configure(Config{IdleTimeout: 2 * time.Minute})
	require.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, time.Minute, f.machine.Config().IdleTimeout)

	f.machine.Stop()
	require.NoError(t, f.machine.Configure(Config{IdleTimeout: 2 * time.Minute}))
	require.NoError(t, f.machine.Start())
	assert.Equal(t, 2*time.Minute, f.machine.Config().IdleTimeout)
}

func TestMachine_DoubleStartFails(t *testing.T) {
	f := newFixture(t, Config{IdleTimeout: time.Minute})
	assert.ErrorIs(t, f.machine.Start(), ErrConfiguration)
}

// =============================================================================
// TRANSITION TESTS
// =============================================================================

func TestMachine_WarningNeverEarlyAndWithinOneTick(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		lead    time.Duration
		tick    time.Duration
	}{
		{"lead inside timeout", 10 * time.Second, 3 * time.Second, tick},
		{"zero lead", 5 * time.Second, 0, tick},
		{"unaligned to tick", 7300 * time.Millisecond, 2100 * time.Millisecond, tick},
		{"coarse tick", 10 * time.Second, 2500 * time.Millisecond, time.Second},
		{"fine tick", 3 * time.Second, time.Second, 10 * time.Millisecond},
		{"lead equals timeout", 4 * time.Second, 4 * time.Second, 500 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{IdleTimeout: tt.timeout, WarningLead: tt.lead, TickInterval: tt.tick}
			f := newFixture(t, cfg)

			f.advanceBy(cfg.IdleTimeout+tt.tick, tt.tick)

			evs := f.rec.events()
			require.NotEmpty(t, evs)
			warn := evs[0]
			require.Equal(t, events.IdleWarning, warn.Kind)
			assert.GreaterOrEqual(t, warn.Elapsed, cfg.WarningAt(), "never early")
			assert.Less(t, warn.Elapsed, cfg.WarningAt()+tt.tick, "within one tick")
			assert.Equal(t, 1, f.rec.count(events.IdleWarning))
		})
	}
}

func TestMachine_TimeoutScenario(t *testing.T) {
	f := newFixture(t, Config{IdleTimeout: 10 * time.Second, WarningLead: 0, TickInterval: tick})

	f.advance(10*time.Second + 200*time.Millisecond)

	require.Equal(t, 1, f.rec.count(events.TimeoutExceeded))
	for _, e := range f.rec.events() {
		if e.Kind == events.TimeoutExceeded {
			assert.InDelta(t, 10000, e.Elapsed.Milliseconds(), 200)
			assert.Equal(t, epoch, e.LastActiveAt)
		}
	}
	assert.Equal(t, TimedOut, f.machine.State())
}

func TestMachine_AtMostOneTimeoutWhilePending(t *testing.T) {
	f := newFixture(t, Config{IdleTimeout: 2 * time.Second, WarningLead: time.Second, TickInterval: tick})

	f.advance(time.Minute)

	assert.Equal(t, 1, f.rec.count(events.IdleWarning))
	assert.Equal(t, 1, f.rec.count(events.TimeoutExceeded))
}

func TestMachine_ActivityDuringWarningReturnsOnce(t *testing.T) {
	f := newFixture(t, Config{IdleTimeout: 10 * time.Second, WarningLead: 4 * time.Second, TickInterval: tick})

	f.advance(7 * time.Second)
	require.Equal(t, Warning, f.machine.State())

	for i := 0; i < 5; i++ {
		f.clock.Step(10 * time.Millisecond)
		f.monitor.Record(activity.Keyboard)
	}
	f.machine.Check()

	assert.Equal(t, Active, f.machine.State())
	assert.Equal(t, 1, f.rec.count(events.UserReturned))

	evs := f.rec.events()
	returned := evs[len(evs)-1]
	assert.Equal(t, "keyboard", returned.ContextString(events.CtxReturnReason))
	assert.Equal(t, "WARNING", returned.ContextString(events.CtxPreviousState))
	assert.False(t, returned.ContextBool(events.CtxRecoveredWithoutDecision))

	// No spurious timeout without a fresh idle period.
	f.advance(5 * time.Second)
	assert.Zero(t, f.rec.count(events.TimeoutExceeded))

	f.advance(6 * time.Second)
	assert.Equal(t, 1, f.rec.count(events.TimeoutExceeded))
}

func TestMachine_ActivityAfterTimeoutRecoversWithoutDecision(t *testing.T) {
	f := newFixture(t, Config{IdleTimeout: 3 * time.Second, WarningLead: time.Second, TickInterval: tick})

	f.advance(4 * time.Second)
	require.Equal(t, TimedOut, f.machine.State())

	f.clock.Step(time.Second)
	f.monitor.Record(activity.Focus)

	assert.Equal(t, Active, f.machine.State())
	evs := f.rec.events()
	returned := evs[len(evs)-1]
	require.Equal(t, events.UserReturned, returned.Kind)
	assert.True(t, returned.ContextBool(events.CtxRecoveredWithoutDecision))
	assert.Equal(t, "focus", returned.ContextString(events.CtxReturnReason))
	assert.Equal(t, 5*time.Second, returned.Elapsed)
}

func TestMachine_ResetIsSilent(t *testing.T) {
	f := newFixture(t, Config{IdleTimeout: 3 * time.Second, WarningLead: time.Second, TickInterval: tick})

	f.advance(4 * time.Second)
	require.Equal(t, TimedOut, f.machine.State())
	before := len(f.rec.events())

	f.machine.Reset()
	f.machine.Check()

	assert.Equal(t, Active, f.machine.State())
	assert.Len(t, f.rec.events(), before)

	// The reset counts as activity: a full new period is required.
	f.advance(time.Second + tick)
	assert.Len(t, f.rec.events(), before)
	f.advance(time.Second)
	assert.Equal(t, 2, f.rec.count(events.IdleWarning))
}

func TestMachine_SessionExpiredAfterHardTimeout(t *testing.T) {
	f := newFixture(t, Config{
		IdleTimeout:  3 * time.Second,
		WarningLead:  time.Second,
		HardTimeout:  6 * time.Second,
		TickInterval: tick,
	})

	f.advance(5 * time.Second)
	assert.Zero(t, f.rec.count(events.SessionExpired))

	f.advance(2 * time.Second)
	assert.Equal(t, 1, f.rec.count(events.SessionExpired))
	assert.True(t, f.machine.Status().Expired)

	f.advance(10 * time.Second)
	assert.Equal(t, 1, f.rec.count(events.SessionExpired))

	// Raw activity no longer revives an expired session.
	f.clock.Step(time.Second)
	f.monitor.Record(activity.Pointer)
	assert.Equal(t, TimedOut, f.machine.State())
	assert.Zero(t, f.rec.count(events.UserReturned))
}

// =============================================================================
// TICKER TESTS
// =============================================================================

func TestMachine_TickerDrivesClassification(t *testing.T) {
	f := newFixture(t, Config{IdleTimeout: time.Second, WarningLead: 0, TickInterval: tick})

	for i := 0; i < 6; i++ {
		f.clock.Step(tick)
		time.Sleep(2 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return f.rec.count(events.TimeoutExceeded) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestMachine_StopCancelsTicker(t *testing.T) {
	f := newFixture(t, Config{IdleTimeout: time.Second, TickInterval: tick})

	f.machine.Stop()
	assert.False(t, f.clock.HasWaiters())

	f.clock.Step(time.Minute)
	f.machine.Check()
	assert.Empty(t, f.rec.events())
	assert.Equal(t, Active, f.machine.State())
}
