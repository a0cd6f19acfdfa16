// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package recovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jeranaias/sessionkeep/internal/events"
	"github.com/jeranaias/sessionkeep/internal/identity"
	"github.com/jeranaias/sessionkeep/internal/registry"
)

// =============================================================================
// TYPES
// =============================================================================

// Decision is the user's answer to the timeout prompt.
type Decision int

const (
	Reauthenticate Decision = iota + 1
	SignOut
)

func (d Decision) String() string {
	switch d {
	case Reauthenticate:
		return "REAUTHENTICATE"
	case SignOut:
		return "SIGN_OUT"
	default:
		return "UNKNOWN"
	}
}

// ParseDecision accepts the wire names and a few short forms.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "REAUTHENTICATE", "REAUTH", "R":
		return Reauthenticate, nil
	case "SIGN_OUT", "SIGNOUT", "S":
		return SignOut, nil
	}
	return 0, fmt.Errorf("recovery: unknown decision %q", s)
}

// Status is the coordinator's view of the session.
type Status int

const (
	Authenticated Status = iota
	AwaitingDecision
	Reauthenticating
	SigningOut
	SignedOut
)

func (s Status) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case AwaitingDecision:
		return "awaiting_decision"
	case Reauthenticating:
		return "reauthenticating"
	case SigningOut:
		return "signing_out"
	case SignedOut:
		return "signed_out"
	default:
		return "unknown"
	}
}

// View is what presentation code renders: whether the prompt is visible and
// the event it is about.
type View struct {
	Visible bool
	Event   *events.Event
}

// Machine is the part of the idle machine the coordinator drives.
type Machine interface {
	Reset()
}

// Registry is the part of the transient-state registry the coordinator drives.
type Registry interface {
	Keys() []string
	SnapshotAll() (registry.Report, error)
}

// =============================================================================
// COORDINATOR
// =============================================================================

// Coordinator sequences the recovery workflow.
type Coordinator struct {
	machine  Machine
	registry Registry
	identity identity.Client
	log      zerolog.Logger

	base       context.Context
	cancelBase context.CancelFunc

	mu        sync.Mutex
	status    Status
	pending   *events.Event
	busy      bool
	cancelRun context.CancelFunc
	runDone   chan struct{}
	expiring  bool
	closed    bool
	listeners []func(View)
	signedOut []func()

	notifyMu sync.Mutex
}

// New creates a coordinator for an authenticated session.
func New(machine Machine, reg Registry, client identity.Client, log zerolog.Logger) *Coordinator {
	base, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		machine:    machine,
		registry:   reg,
		identity:   client,
		log:        log,
		base:       base,
		cancelBase: cancel,
		status:     Authenticated,
	}
}

// OnPromptChange registers fn to be called with the current view whenever it
// may have changed.
func (c *Coordinator) OnPromptChange(fn func(View)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// OnSignedOut registers fn to run once the session is signed out.
func (c *Coordinator) OnSignedOut(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signedOut = append(c.signedOut, fn)
}

// Prompt returns the current view.
func (c *Coordinator) Prompt() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Coordinator) viewLocked() View {
	if c.pending == nil {
		return View{}
	}
	ev := c.pending.Clone()
	return View{Visible: c.status == AwaitingDecision, Event: &ev}
}

// Status returns the session status.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// =============================================================================
// EVENTS
// =============================================================================

// Handle reacts to one idle event. It is the bus subscriber.
func (c *Coordinator) Handle(e events.Event) {
	switch e.Kind {
	case events.TimeoutExceeded:
		c.onTimeout(e)
	case events.UserReturned:
		c.onReturned(e)
	case events.SessionExpired:
		c.onExpired(e)
	}
}

func (c *Coordinator) onTimeout(e events.Event) {
	c.mu.Lock()
	if c.closed || c.status != Authenticated || c.pending != nil {
		c.mu.Unlock()
		c.log.Debug().Str("status", c.Status().String()).Msg("timeout ignored")
		return
	}
	ev := e.Clone()
	ev.Context[events.CtxFormsSaved] = false
	ev.Context[events.CtxFormCount] = len(c.registry.Keys())
	c.pending = &ev
	c.status = AwaitingDecision
	c.mu.Unlock()

	logSessionEvent(c.log, "SESSION_DECISION_PENDING", e)
	c.notify()
}

func (c *Coordinator) onReturned(e events.Event) {
	c.mu.Lock()
	if c.pending == nil {
		c.mu.Unlock()
		return
	}
	if reason := e.ContextString(events.CtxReturnReason); reason != "" {
		c.pending.Context[events.CtxReturnReason] = reason
	}
	c.mu.Unlock()

	c.log.Debug().Str("reason", e.ContextString(events.CtxReturnReason)).Msg("user returned; decision still required")
	c.notify()
}

func (c *Coordinator) onExpired(e events.Event) {
	c.mu.Lock()
	if c.closed || c.status == SignedOut || c.expiring {
		c.mu.Unlock()
		return
	}
	// Only a pending or in-flight decision is forced. An expiry delivered
	// after a completed re-authentication is stale.
	if c.pending == nil && !c.busy {
		c.mu.Unlock()
		c.log.Debug().Msg("session expiry ignored; no decision pending")
		return
	}
	c.expiring = true
	c.pending = nil
	cancel, done := c.cancelRun, c.runDone
	c.mu.Unlock()

	logSessionEvent(c.log, "SESSION_FORCED_SIGNOUT", e)
	c.notify()

	if cancel != nil {
		cancel()
		<-done
	}

	c.mu.Lock()
	if c.closed || c.status == SignedOut {
		c.mu.Unlock()
		return
	}
	ctx, finish := c.beginLocked(c.base)
	c.mu.Unlock()

	if err := c.signOut(ctx); err != nil {
		c.log.Warn().Err(err).Msg("forced sign-out: provider logout failed")
	}
	finish()
	c.runSignedOutHooks()
}

// =============================================================================
// DECISIONS
// =============================================================================

// SubmitDecision runs the workflow for d and returns when it is finished.
//
// Reauthenticate returns an *AuthFailure when login fails; the decision then
// stays pending. SignOut always ends the session and returns the provider's
// logout error, if any.
func (c *Coordinator) SubmitDecision(ctx context.Context, d Decision) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.pending == nil || c.busy || c.expiring || c.status != AwaitingDecision:
		c.mu.Unlock()
		c.log.Debug().Str("decision", d.String()).Msg("decision discarded")
		return ErrDecisionDiscarded
	}
	if d != Reauthenticate && d != SignOut {
		c.mu.Unlock()
		return fmt.Errorf("recovery: unknown decision %d", d)
	}
	runCtx, done := c.beginLocked(ctx)
	if d == Reauthenticate {
		c.status = Reauthenticating
	} else {
		c.status = SigningOut
	}
	c.mu.Unlock()

	c.notify()

	if d == SignOut {
		err := c.signOut(runCtx)
		done()
		c.runSignedOutHooks()
		return err
	}
	defer done()
	return c.reauthenticate(runCtx)
}

// beginLocked marks a workflow in flight. The returned context is cancelled by
// Close, by SESSION_EXPIRED and when parent is done.
func (c *Coordinator) beginLocked(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(c.base, cancel)
	done := make(chan struct{})

	c.busy = true
	c.cancelRun = cancel
	c.runDone = done

	return ctx, func() {
		stop()
		cancel()
		c.mu.Lock()
		c.busy = false
		c.cancelRun = nil
		c.runDone = nil
		c.mu.Unlock()
		close(done)
	}
}

func (c *Coordinator) reauthenticate(ctx context.Context) error {
	// Snapshot completes before the provider is engaged.
	report, err := c.registry.SnapshotAll()
	var partial *registry.SnapshotPartialFailure
	if errors.As(err, &partial) {
		c.log.Warn().Strs("skipped", partial.Keys()).Msg("some surfaces were not saved; continuing")
	} else if err != nil {
		c.log.Error().Err(err).Msg("snapshot failed; continuing")
	}

	c.mu.Lock()
	if c.pending != nil {
		c.pending.Context[events.CtxFormsSaved] = report.Count() > 0
		c.pending.Context[events.CtxFormCount] = report.Count()
	}
	c.mu.Unlock()

	acc, loginErr := c.identity.LoginInteractive(ctx)

	c.mu.Lock()
	if c.expiring {
		c.mu.Unlock()
		if loginErr == nil {
			loginErr = context.Canceled
		}
		return &AuthFailure{Decision: Reauthenticate, Err: errors.Join(identity.Classify("login", loginErr), ErrSessionExpired)}
	}
	if loginErr == nil && c.closed {
		loginErr = ErrClosed
	}
	if loginErr != nil {
		c.status = AwaitingDecision
		ev := *c.pending
		c.mu.Unlock()

		failure := &AuthFailure{Decision: Reauthenticate, Err: identity.Classify("login", loginErr)}
		c.log.Warn().Err(failure.Err).Msg("re-authentication failed; decision still pending")
		logSessionEvent(c.log, "SESSION_REAUTH_FAILED", ev)
		c.notify()
		return failure
	}

	// Reset while still holding the lock, so no timeout can slip in between
	// the rearm and clearing the pending decision.
	c.identity.SetActiveAccount(acc)
	c.machine.Reset()
	ev := *c.pending
	c.pending = nil
	c.status = Authenticated
	c.mu.Unlock()

	c.log.Info().Str("account", acc.String()).Int("forms_saved", report.Count()).Msg("re-authenticated")
	logSessionEvent(c.log, "SESSION_REAUTHENTICATED", ev)
	c.notify()
	return nil
}

func (c *Coordinator) signOut(ctx context.Context) error {
	c.mu.Lock()
	c.status = SigningOut
	c.mu.Unlock()
	c.notify()

	logoutErr := c.identity.LogoutInteractive(ctx)
	if logoutErr != nil {
		logoutErr = &AuthFailure{Decision: SignOut, Err: identity.Classify("logout", logoutErr)}
		c.log.Warn().Err(logoutErr).Msg("provider logout failed; signing out locally")
	}

	c.mu.Lock()
	c.pending = nil
	c.status = SignedOut
	c.mu.Unlock()

	c.log.Info().Str("event", "SESSION_SIGNED_OUT").Msg("session transition")
	c.notify()
	return logoutErr
}

// runSignedOutHooks runs after the workflow is finished, so a hook may Close
// the coordinator.
func (c *Coordinator) runSignedOutHooks() {
	c.mu.Lock()
	hooks := append([]func(){}, c.signedOut...)
	c.mu.Unlock()

	for _, hook := range hooks {
		c.safeHook(hook)
	}
}

// Close cancels an in-flight workflow and waits for it. Pending state is kept.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	done := c.runDone
	c.mu.Unlock()

	c.cancelBase()
	if done != nil {
		<-done
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Coordinator) notify() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	view := c.viewLocked()
	listeners := append([]func(View){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Error().Interface("panic", r).Msg("prompt listener panicked")
				}
			}()
			fn(view)
		}()
	}
}

func (c *Coordinator) safeHook(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("sign-out hook panicked")
		}
	}()
	fn()
}

// logSessionEvent writes an audit line for a recovery transition.
func logSessionEvent(log zerolog.Logger, eventType string, e events.Event) {
	log.Info().
		Str("event", eventType).
		Str("trigger", e.Kind.String()).
		Dur("idle", e.Elapsed).
		Msg("session transition")
}
