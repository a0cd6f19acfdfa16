// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"k8s.io/utils/clock"

	"github.com/jeranaias/sessionkeep/internal/activity"
	"github.com/jeranaias/sessionkeep/internal/events"
	"github.com/jeranaias/sessionkeep/internal/identity"
	"github.com/jeranaias/sessionkeep/internal/idle"
	"github.com/jeranaias/sessionkeep/internal/recovery"
	"github.com/jeranaias/sessionkeep/internal/registry"
	"github.com/jeranaias/sessionkeep/internal/storage"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session: closed")

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Deps configures a session.
type Deps struct {
	// Identity is the identity provider. Required.
	Identity identity.Client

	// Idle is the idle configuration (default idle.DefaultConfig()).
	Idle idle.Config

	// Storage selects the snapshot backend. Namespace defaults to the tab ID.
	Storage storage.Config

	// Debounce is the activity debounce (default activity.DefaultDebounce).
	Debounce time.Duration

	// Sources are attached to the activity monitor.
	Sources []activity.Source

	// Clock defaults to the real clock.
	Clock clock.WithTicker

	Logger zerolog.Logger
}

// =============================================================================
// SESSION
// =============================================================================

// Session owns every component of one tab.
type Session struct {
	id        string
	clock     clock.PassiveClock
	startTime time.Time
	log       zerolog.Logger
	identity  identity.Client

	monitor  *activity.Monitor
	machine  *idle.Machine
	bus      *events.Bus
	store    storage.Store
	registry *registry.Registry
	coord    *recovery.Coordinator
	coordSub *events.Subscription

	mu     sync.Mutex
	closed bool
}

// Open builds a session. Nothing is monitored until Begin. ctx bounds opening
// the snapshot store; the session outlives it.
func Open(ctx context.Context, deps Deps) (*Session, error) {
	if deps.Identity == nil {
		return nil, errors.New("session: identity client is required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	if deps.Idle == (idle.Config{}) {
		deps.Idle = idle.DefaultConfig()
	}
	if deps.Debounce == 0 {
		deps.Debounce = activity.DefaultDebounce
	}

	id := "tab-" + uuid.NewString()
	if deps.Storage.Namespace == "" {
		deps.Storage.Namespace = id
	}
	log := deps.Logger.With().Str("tab", id).Logger()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("session: open: %w", err)
	}
	store, err := storage.Open(deps.Storage)
	if err != nil {
		return nil, fmt.Errorf("session: open storage: %w", err)
	}
	if err := ctx.Err(); err != nil {
		if cerr := store.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("close abandoned store")
		}
		return nil, fmt.Errorf("session: open: %w", err)
	}

	s := &Session{
		id:        id,
		clock:     deps.Clock,
		startTime: deps.Clock.Now(),
		log:       log,
		identity:  deps.Identity,
		store:     store,
		bus:       events.NewBus(log.With().Str("component", "events").Logger()),
	}
	s.monitor = activity.NewMonitor(deps.Clock, log.With().Str("component", "activity").Logger(),
		activity.WithDebounce(deps.Debounce),
		activity.WithSources(deps.Sources...))
	s.machine = idle.NewMachine(deps.Clock, s.monitor, s.bus, log.With().Str("component", "idle").Logger())
	s.registry = registry.New(store, deps.Clock, log.With().Str("component", "registry").Logger())
	s.coord = recovery.New(s.machine, s.registry, deps.Identity, log.With().Str("component", "recovery").Logger())

	if err := s.machine.Configure(deps.Idle); err != nil {
		s.bus.Close()
		store.Close()
		return nil, err
	}

	s.coordSub = s.bus.Subscribe(
		events.Kinds(events.TimeoutExceeded, events.UserReturned, events.SessionExpired),
		s.coord.Handle)
	s.coord.OnSignedOut(s.onSignedOut)

	log.Info().
		Str("backend", string(deps.Storage.Backend)).
		Bool("encrypted", deps.Storage.Encrypt).
		Msg("session opened")
	return s, nil
}

// Begin starts monitoring when the provider has a signed-in account. It
// reports whether monitoring started.
func (s *Session) Begin(ctx context.Context) (bool, error) {
	if s.isClosed() {
		return false, ErrClosed
	}

	accounts, err := s.identity.ListAccounts(ctx)
	if err != nil {
		return false, fmt.Errorf("session: list accounts: %w", err)
	}
	if len(accounts) == 0 {
		s.log.Info().Msg("no signed-in account; idle monitoring not started")
		return false, nil
	}
	if _, ok := s.identity.ActiveAccount(); !ok {
		s.identity.SetActiveAccount(accounts[0])
	}

	if s.machine.Running() {
		return true, nil
	}
	s.monitor.Start()
	if err := s.machine.Start(); err != nil {
		return false, err
	}
	return true, nil
}

// Reconfigure applies cfg with a stop, configure, start cycle. A machine that
// was not running is only reconfigured.
func (s *Session) Reconfigure(cfg idle.Config) error {
	if s.isClosed() {
		return ErrClosed
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	wasRunning := s.machine.Running()
	s.machine.Stop()
	if err := s.machine.Configure(cfg); err != nil {
		return err
	}
	if wasRunning {
		if err := s.machine.Start(); err != nil {
			return err
		}
	}
	s.log.Info().
		Dur("idle_timeout", cfg.IdleTimeout).
		Dur("warning_lead", cfg.WarningLead).
		Dur("hard_timeout", cfg.HardTimeout).
		Msg("idle configuration applied")
	return nil
}

// onSignedOut stops monitoring and drops every snapshot.
func (s *Session) onSignedOut() {
	s.machine.Stop()
	s.monitor.Stop()

	keys, err := s.registry.Persisted()
	if err != nil {
		s.log.Warn().Err(err).Msg("list snapshots after sign-out")
		return
	}
	for _, key := range keys {
		if err := s.registry.Clear(key); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("clear snapshot after sign-out")
		}
	}
}

// Close tears the session down and removes everything it persisted.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.coord.Close()
	s.machine.Stop()
	s.monitor.Stop()
	s.coordSub.Close()
	s.bus.Close()

	if err := s.store.Close(); err != nil {
		return fmt.Errorf("session: close storage: %w", err)
	}
	s.log.Info().Dur("duration", s.clock.Since(s.startTime)).Msg("session closed")
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// =============================================================================
// ACCESSORS
// =============================================================================

// ID returns the tab ID.
func (s *Session) ID() string { return s.id }

// Monitor returns the activity monitor.
func (s *Session) Monitor() *activity.Monitor { return s.monitor }

// Machine returns the idle machine.
func (s *Session) Machine() *idle.Machine { return s.machine }

// Registry returns the transient-state registry.
func (s *Session) Registry() *registry.Registry { return s.registry }

// Coordinator returns the recovery coordinator.
func (s *Session) Coordinator() *recovery.Coordinator { return s.coord }

// Subscribe delivers the session's idle events matching filter to handler.
func (s *Session) Subscribe(filter events.Filter, handler events.Handler) *events.Subscription {
	return s.bus.Subscribe(filter, handler)
}

// Status is a point-in-time view of the session.
type Status struct {
	ID       string
	Started  time.Time
	Idle     idle.Status
	Recovery recovery.Status
	Account  identity.Account
}

// Status returns the current status.
func (s *Session) Status() Status {
	acc, _ := s.identity.ActiveAccount()
	return Status{
		ID:       s.id,
		Started:  s.startTime,
		Idle:     s.machine.Status(),
		Recovery: s.coord.Status(),
		Account:  acc,
	}
}
