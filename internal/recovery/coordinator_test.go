// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/jeranaias/sessionkeep/internal/events"
	"github.com/jeranaias/sessionkeep/internal/identity"
	"github.com/jeranaias/sessionkeep/internal/registry"
	"github.com/jeranaias/sessionkeep/internal/storage"
)

// =============================================================================
// FIXTURE
// =============================================================================

type mockClient struct {
	mock.Mock
}

func (m *mockClient) LoginInteractive(ctx context.Context) (identity.Account, error) {
	args := m.Called(ctx)
	return args.Get(0).(identity.Account), args.Error(1)
}

func (m *mockClient) LogoutInteractive(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockClient) ListAccounts(ctx context.Context) ([]identity.Account, error) {
	args := m.Called(ctx)
	return args.Get(0).([]identity.Account), args.Error(1)
}

func (m *mockClient) SetActiveAccount(acc identity.Account) {
	m.Called(acc)
}

func (m *mockClient) ActiveAccount() (identity.Account, bool) {
	args := m.Called()
	return args.Get(0).(identity.Account), args.Bool(1)
}

type fakeMachine struct {
	resets atomic.Int32
}

func (f *fakeMachine) Reset() { f.resets.Add(1) }

type fixture struct {
	coord    *Coordinator
	client   *mockClient
	machine  *fakeMachine
	registry *registry.Registry

	mu    sync.Mutex
	views []View
	outs  atomic.Int32
}

var (
	epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	ada   = identity.Account{ID: "uid-1", Username: "ada@contoso.com"}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		client:   &mockClient{},
		machine:  &fakeMachine{},
		registry: registry.New(store, clocktesting.NewFakePassiveClock(epoch), zerolog.Nop()),
	}
	f.coord = New(f.machine, f.registry, f.client, zerolog.Nop())
	f.coord.OnPromptChange(func(v View) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.views = append(f.views, v)
	})
	f.coord.OnSignedOut(func() { f.outs.Add(1) })
	t.Cleanup(f.coord.Close)
	return f
}

func (f *fixture) lastView() View {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.views) == 0 {
		return View{}
	}
	return f.views[len(f.views)-1]
}

func timeoutEvent(elapsed time.Duration) events.Event {
	return events.Event{
		Kind:         events.TimeoutExceeded,
		Elapsed:      elapsed,
		LastActiveAt: epoch,
		At:           epoch.Add(elapsed),
		Context:      map[string]any{events.CtxIdleTimeoutMs: elapsed.Milliseconds()},
	}
}

func expiredEvent() events.Event {
	return events.Event{Kind: events.SessionExpired, Elapsed: 30 * time.Minute, At: epoch.Add(30 * time.Minute)}
}

// =============================================================================
// TESTS
// =============================================================================

func TestCoordinator_TimeoutMakesDecisionPending(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.Register("form1", registry.Value("a")))

	f.coord.Handle(timeoutEvent(15 * time.Minute))

	v := f.coord.Prompt()
	require.True(t, v.Visible)
	require.NotNil(t, v.Event)
	assert.Equal(t, events.TimeoutExceeded, v.Event.Kind)
	assert.Equal(t, 15*time.Minute, v.Event.Elapsed)
	assert.Equal(t, 1, v.Event.ContextInt(events.CtxFormCount))
	assert.Equal(t, AwaitingDecision, f.coord.Status())
	assert.True(t, f.lastView().Visible)
}

func TestCoordinator_ReentrantTimeoutIgnored(t *testing.T) {
	f := newFixture(t)
	f.coord.Handle(timeoutEvent(15 * time.Minute))
	f.coord.Handle(timeoutEvent(16 * time.Minute))

	assert.Equal(t, 15*time.Minute, f.coord.Prompt().Event.Elapsed)
}

func TestCoordinator_IgnoresWarningAndStrayReturn(t *testing.T) {
	f := newFixture(t)
	f.coord.Handle(events.Event{Kind: events.IdleWarning})
	f.coord.Handle(events.Event{Kind: events.UserReturned, Context: map[string]any{events.CtxReturnReason: "keyboard"}})

	assert.False(t, f.coord.Prompt().Visible)
	assert.Nil(t, f.coord.Prompt().Event)
	assert.Equal(t, Authenticated, f.coord.Status())
}

func TestCoordinator_ReauthenticateSnapshotsBeforeLogin(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.Register("form1", registry.Value(map[string]any{"name": "A"})))
	require.NoError(t, f.registry.Register("form2", registry.Value(map[string]any{"name": "B"})))
	f.coord.Handle(timeoutEvent(15 * time.Minute))

	f.client.On("LoginInteractive", mock.Anything).Run(func(mock.Arguments) {
		keys, err := f.registry.Persisted()
		require.NoError(t, err)
		assert.Equal(t, []string{"form1", "form2"}, keys, "snapshot must exist before login")
		assert.Zero(t, f.machine.resets.Load())
		assert.False(t, f.coord.Prompt().Visible, "prompt hidden while signing in")
	}).Return(ada, nil).Once()
	f.client.On("SetActiveAccount", ada).Once()

	require.NoError(t, f.coord.SubmitDecision(context.Background(), Reauthenticate))

	assert.Equal(t, int32(1), f.machine.resets.Load())
	assert.Equal(t, Authenticated, f.coord.Status())
	v := f.coord.Prompt()
	assert.False(t, v.Visible)
	assert.Nil(t, v.Event)
	assert.False(t, f.lastView().Visible)

	raw, ok, err := f.registry.Restore("form1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"name":"A"}`, string(raw))

	f.client.AssertExpectations(t)
}

func TestCoordinator_ReauthenticateCancelledKeepsDecisionPending(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.Register("form1", registry.Value("draft")))
	f.coord.Handle(timeoutEvent(15 * time.Minute))

	f.client.On("LoginInteractive", mock.Anything).Return(identity.Account{}, context.Canceled).Once()

	err := f.coord.SubmitDecision(context.Background(), Reauthenticate)
	var failure *AuthFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, Reauthenticate, failure.Decision)
	assert.ErrorIs(t, err, identity.ErrCancelled)

	assert.Zero(t, f.machine.resets.Load(), "machine untouched")
	assert.Equal(t, AwaitingDecision, f.coord.Status())
	v := f.coord.Prompt()
	require.True(t, v.Visible, "prompt re-presented")
	assert.Equal(t, 15*time.Minute, v.Event.Elapsed, "same context")
	assert.True(t, v.Event.ContextBool(events.CtxFormsSaved))
	assert.Equal(t, 1, v.Event.ContextInt(events.CtxFormCount))

	// Retry succeeds.
	f.client.On("LoginInteractive", mock.Anything).Return(ada, nil).Once()
	f.client.On("SetActiveAccount", ada).Once()
	require.NoError(t, f.coord.SubmitDecision(context.Background(), Reauthenticate))
	assert.Equal(t, int32(1), f.machine.resets.Load())
	f.client.AssertExpectations(t)
}

func TestCoordinator_ProviderAndNetworkFailuresSurface(t *testing.T) {
	for name, tc := range map[string]struct {
		err  error
		want error
	}{
		"provider": {errors.New("invalid_grant"), identity.ErrProvider},
		"network":  {fmt.Errorf("dial: %w", identity.ErrNetwork), identity.ErrNetwork},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.coord.Handle(timeoutEvent(15 * time.Minute))
			f.client.On("LoginInteractive", mock.Anything).Return(identity.Account{}, tc.err).Once()

			err := f.coord.SubmitDecision(context.Background(), Reauthenticate)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, f.coord.Prompt().Visible)
		})
	}
}

func TestCoordinator_SignOutAlwaysEndsSession(t *testing.T) {
	f := newFixture(t)
	f.coord.Handle(timeoutEvent(15 * time.Minute))
	f.client.On("LogoutInteractive", mock.Anything).Return(errors.New("popup blocked")).Once()

	err := f.coord.SubmitDecision(context.Background(), SignOut)
	var failure *AuthFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, SignOut, failure.Decision)

	assert.Equal(t, SignedOut, f.coord.Status())
	assert.Nil(t, f.coord.Prompt().Event)
	assert.Equal(t, int32(1), f.outs.Load())
	assert.Zero(t, f.machine.resets.Load())

	// Nothing left to decide.
	assert.ErrorIs(t, f.coord.SubmitDecision(context.Background(), SignOut), ErrDecisionDiscarded)
	// A signed-out session does not prompt again.
	f.coord.Handle(timeoutEvent(20 * time.Minute))
	assert.False(t, f.coord.Prompt().Visible)
	f.client.AssertExpectations(t)
}

func TestCoordinator_SignOutSuccess(t *testing.T) {
	f := newFixture(t)
	f.coord.Handle(timeoutEvent(15 * time.Minute))
	f.client.On("LogoutInteractive", mock.Anything).Return(nil).Once()

	require.NoError(t, f.coord.SubmitDecision(context.Background(), SignOut))
	assert.Equal(t, SignedOut, f.coord.Status())
	assert.Equal(t, int32(1), f.outs.Load())
}

func TestCoordinator_SessionExpiredForcesSignOut(t *testing.T) {
	f := newFixture(t)
	f.coord.Handle(timeoutEvent(15 * time.Minute))
	f.client.On("LogoutInteractive", mock.Anything).Return(nil).Once()

	f.coord.Handle(expiredEvent())

	assert.Equal(t, SignedOut, f.coord.Status())
	assert.False(t, f.coord.Prompt().Visible)
	assert.Nil(t, f.coord.Prompt().Event)
	assert.Equal(t, int32(1), f.outs.Load())
	assert.ErrorIs(t, f.coord.SubmitDecision(context.Background(), Reauthenticate), ErrDecisionDiscarded)

	// A second expiry is a no-op.
	f.coord.Handle(expiredEvent())
	f.client.AssertExpectations(t)
}

func TestCoordinator_StaleExpiryAfterReauthenticateIgnored(t *testing.T) {
	f := newFixture(t)
	f.coord.Handle(timeoutEvent(15 * time.Minute))
	f.client.On("LoginInteractive", mock.Anything).Return(ada, nil).Once()
	f.client.On("SetActiveAccount", ada).Once()
	require.NoError(t, f.coord.SubmitDecision(context.Background(), Reauthenticate))
	require.Equal(t, Authenticated, f.coord.Status())

	// Emitted before the reset, delivered after it.
	f.coord.Handle(expiredEvent())

	assert.Equal(t, Authenticated, f.coord.Status())
	assert.Zero(t, f.outs.Load())
	f.client.AssertNotCalled(t, "LogoutInteractive", mock.Anything)
	f.client.AssertExpectations(t)
}

func TestCoordinator_ExpiryWithoutDecisionIgnored(t *testing.T) {
	f := newFixture(t)
	f.coord.Handle(expiredEvent())
	assert.Equal(t, Authenticated, f.coord.Status())
	assert.Zero(t, f.outs.Load())
	f.client.AssertNotCalled(t, "LogoutInteractive", mock.Anything)
}

func TestCoordinator_SessionExpiredCancelsInFlightLogin(t *testing.T) {
	f := newFixture(t)
	f.coord.Handle(timeoutEvent(15 * time.Minute))

	started := make(chan struct{})
	f.client.On("LoginInteractive", mock.Anything).Run(func(args mock.Arguments) {
		close(started)
		<-args.Get(0).(context.Context).Done()
	}).Return(identity.Account{}, context.Canceled).Once()
	f.client.On("LogoutInteractive", mock.Anything).Return(nil).Once()

	result := make(chan error, 1)
	go func() { result <- f.coord.SubmitDecision(context.Background(), Reauthenticate) }()
	<-started

	// Another decision while the login is in flight is discarded.
	assert.ErrorIs(t, f.coord.SubmitDecision(context.Background(), SignOut), ErrDecisionDiscarded)

	f.coord.Handle(expiredEvent())

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrSessionExpired)
		assert.ErrorIs(t, err, identity.ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("login was not cancelled")
	}

	assert.Zero(t, f.machine.resets.Load())
	assert.Equal(t, SignedOut, f.coord.Status())
	assert.Equal(t, int32(1), f.outs.Load())
	f.client.AssertExpectations(t)
}

func TestCoordinator_UserReturnedKeepsDecisionRequired(t *testing.T) {
	f := newFixture(t)
	f.coord.Handle(timeoutEvent(15 * time.Minute))

	f.coord.Handle(events.Event{
		Kind:    events.UserReturned,
		Context: map[string]any{events.CtxReturnReason: "tab_visible", events.CtxRecoveredWithoutDecision: true},
	})

	v := f.coord.Prompt()
	require.True(t, v.Visible)
	assert.Equal(t, events.TimeoutExceeded, v.Event.Kind)
	assert.Equal(t, "tab_visible", v.Event.ContextString(events.CtxReturnReason))
	assert.Equal(t, AwaitingDecision, f.coord.Status())
	assert.Equal(t, "tab_visible", f.lastView().Event.ContextString(events.CtxReturnReason))
}

func TestCoordinator_DecisionWithNothingPendingDiscarded(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.coord.SubmitDecision(context.Background(), Reauthenticate), ErrDecisionDiscarded)
	assert.ErrorIs(t, f.coord.SubmitDecision(context.Background(), SignOut), ErrDecisionDiscarded)
	f.client.AssertNotCalled(t, "LoginInteractive", mock.Anything)
	f.client.AssertNotCalled(t, "LogoutInteractive", mock.Anything)
}

func TestCoordinator_CloseCancelsLoginAndKeepsState(t *testing.T) {
	f := newFixture(t)
	f.coord.Handle(timeoutEvent(15 * time.Minute))

	started := make(chan struct{})
	f.client.On("LoginInteractive", mock.Anything).Run(func(args mock.Arguments) {
		close(started)
		<-args.Get(0).(context.Context).Done()
	}).Return(identity.Account{}, context.Canceled).Once()

	result := make(chan error, 1)
	go func() { result <- f.coord.SubmitDecision(context.Background(), Reauthenticate) }()
	<-started

	f.coord.Close()

	err := <-result
	assert.ErrorIs(t, err, identity.ErrCancelled)
	assert.Zero(t, f.machine.resets.Load())
	v := f.coord.Prompt()
	assert.NotNil(t, v.Event, "pending decision kept")
	assert.ErrorIs(t, f.coord.SubmitDecision(context.Background(), Reauthenticate), ErrClosed)
}

func TestCoordinator_CallerContextCancelsLogin(t *testing.T) {
	f := newFixture(t)
	f.coord.Handle(timeoutEvent(15 * time.Minute))

	f.client.On("LoginInteractive", mock.Anything).Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	}).Return(identity.Account{}, context.DeadlineExceeded).Once()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := f.coord.SubmitDecision(ctx, Reauthenticate)
	assert.ErrorIs(t, err, identity.ErrCancelled)
	assert.True(t, f.coord.Prompt().Visible)
}

func TestCoordinator_PartialSnapshotStillLogsIn(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.Register("good", registry.Value("x")))
	require.NoError(t, f.registry.Register("bad", registry.Value(make(chan int))))
	f.coord.Handle(timeoutEvent(15 * time.Minute))

	f.client.On("LoginInteractive", mock.Anything).Return(ada, nil).Once()
	f.client.On("SetActiveAccount", ada).Once()

	require.NoError(t, f.coord.SubmitDecision(context.Background(), Reauthenticate))
	_, ok, err := f.registry.Restore("good")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(1), f.machine.resets.Load())
}

func TestCoordinator_ListenerPanicRecovered(t *testing.T) {
	f := newFixture(t)
	f.coord.OnPromptChange(func(View) { panic("render failed") })

	assert.NotPanics(t, func() { f.coord.Handle(timeoutEvent(15 * time.Minute)) })
	assert.True(t, f.lastView().Visible)
}

func TestParseDecision(t *testing.T) {
	for in, want := range map[string]Decision{
		"REAUTHENTICATE": Reauthenticate,
		"reauth":         Reauthenticate,
		" r ":            Reauthenticate,
		"SIGN_OUT":       SignOut,
		"signout":        SignOut,
	} {
		got, err := ParseDecision(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDecision("maybe")
	assert.Error(t, err)
	assert.Equal(t, "SIGN_OUT", SignOut.String())
}
