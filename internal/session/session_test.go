// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/jeranaias/sessionkeep/internal/activity"
	"github.com/jeranaias/sessionkeep/internal/events"
	"github.com/jeranaias/sessionkeep/internal/identity"
	"github.com/jeranaias/sessionkeep/internal/idle"
	"github.com/jeranaias/sessionkeep/internal/recovery"
	"github.com/jeranaias/sessionkeep/internal/registry"
	"github.com/jeranaias/sessionkeep/internal/storage"
)

var (
	epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	ada   = identity.Account{ID: "uid-1", Username: "ada@contoso.com"}
)

func testConfig() idle.Config {
	return idle.Config{
		IdleTimeout:  10 * time.Second,
		WarningLead:  2 * time.Second,
		HardTimeout:  30 * time.Second,
		TickInterval: time.Second,
	}
}

func openSession(t *testing.T, client identity.Client, st storage.Config) (*Session, *clocktesting.FakeClock) {
	t.Helper()
	clk := clocktesting.NewFakeClock(epoch)
	s, err := Open(context.Background(), Deps{
		Identity: client,
		Idle:     testConfig(),
		Storage:  st,
		Debounce: -1,
		Clock:    clk,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, clk
}

// idleFor advances the fake clock second by second and runs a classification pass each step.
func idleFor(s *Session, clk *clocktesting.FakeClock, d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += time.Second {
		clk.Step(time.Second)
		s.Machine().Check()
	}
}

func TestOpen_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Open(ctx, Deps{
		Identity: identity.NewStatic(ada, true),
		Storage:  storage.Config{Backend: storage.BackendFile, Dir: dir},
		Logger:   zerolog.Nop(),
	})
	require.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no store is created")
}

func TestBegin_NoAccountNoMonitoring(t *testing.T) {
	s, _ := openSession(t, identity.NewStatic(ada, false), storage.Config{})

	started, err := s.Begin(context.Background())
	require.NoError(t, err)
	assert.False(t, started)
	assert.False(t, s.Machine().Running())
	assert.False(t, s.Monitor().Running())
}

func TestBegin_StartsMonitoringForSignedInAccount(t *testing.T) {
	client := identity.NewStatic(ada, true)
	client.SetActiveAccount(identity.Account{})
	s, _ := openSession(t, client, storage.Config{})

	started, err := s.Begin(context.Background())
	require.NoError(t, err)
	assert.True(t, started)
	assert.True(t, s.Machine().Running())
	assert.True(t, s.Monitor().Running())

	acc, ok := client.ActiveAccount()
	require.True(t, ok)
	assert.Equal(t, ada, acc)

	started, err = s.Begin(context.Background())
	require.NoError(t, err)
	assert.True(t, started, "second Begin is a no-op")
}

func TestSession_TimeoutReauthenticateRestores(t *testing.T) {
	client := identity.NewStatic(ada, true)
	s, clk := openSession(t, client, storage.Config{Backend: storage.BackendFile, Dir: t.TempDir()})
	_, err := s.Begin(context.Background())
	require.NoError(t, err)

	form := map[string]any{"name": "A"}
	require.NoError(t, s.Registry().Register("form1", registry.SourceFunc(func() (any, error) { return form, nil })))

	idleFor(s, clk, 10*time.Second)
	assert.Equal(t, idle.TimedOut, s.Machine().State())
	require.Eventually(t, func() bool { return s.Coordinator().Prompt().Visible }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Coordinator().SubmitDecision(context.Background(), recovery.Reauthenticate))
	assert.Equal(t, idle.Active, s.Machine().State())
	assert.False(t, s.Coordinator().Prompt().Visible)

	// A fresh surface gets its state back.
	var restored map[string]any
	ok, err := s.Registry().RestoreInto("form1", &restored)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, form, restored)
}

func TestSession_SignOutClearsSnapshotsAndStops(t *testing.T) {
	client := identity.NewStatic(ada, true)
	s, clk := openSession(t, client, storage.Config{})
	_, err := s.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Registry().Register("form1", registry.Value("draft")))

	idleFor(s, clk, 10*time.Second)
	require.Eventually(t, func() bool { return s.Coordinator().Prompt().Visible }, 2*time.Second, 5*time.Millisecond)

	// Save first, as a failed re-authentication would.
	_, err = s.Registry().SnapshotAll()
	require.NoError(t, err)

	require.NoError(t, s.Coordinator().SubmitDecision(context.Background(), recovery.SignOut))
	assert.Equal(t, recovery.SignedOut, s.Coordinator().Status())
	assert.False(t, s.Machine().Running())
	assert.False(t, s.Monitor().Running())

	keys, err := s.Registry().Persisted()
	require.NoError(t, err)
	assert.Empty(t, keys)
	_, logouts := client.Calls()
	assert.Equal(t, 1, logouts)
}

func TestSession_HardTimeoutForcesSignOut(t *testing.T) {
	client := identity.NewStatic(ada, true)
	s, clk := openSession(t, client, storage.Config{})
	_, err := s.Begin(context.Background())
	require.NoError(t, err)

	var kinds []events.Kind
	got := make(chan events.Kind, 8)
	sub := s.Subscribe(events.All, func(e events.Event) { got <- e.Kind })
	defer sub.Close()

	idleFor(s, clk, 30*time.Second)
	for len(kinds) < 3 {
		select {
		case k := <-got:
			kinds = append(kinds, k)
		case <-time.After(2 * time.Second):
			t.Fatalf("events so far: %v", kinds)
		}
	}
	assert.Equal(t, []events.Kind{events.IdleWarning, events.TimeoutExceeded, events.SessionExpired}, kinds)

	require.Eventually(t, func() bool { return s.Coordinator().Status() == recovery.SignedOut }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !s.Machine().Running() }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, s.Coordinator().Prompt().Visible)
}

func TestSession_ActivityKeepsSessionActive(t *testing.T) {
	s, clk := openSession(t, identity.NewStatic(ada, true), storage.Config{})
	_, err := s.Begin(context.Background())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		idleFor(s, clk, 5*time.Second)
		require.True(t, s.Monitor().Record(activity.Keyboard))
	}
	assert.Equal(t, idle.Active, s.Machine().State())
	assert.Equal(t, recovery.Authenticated, s.Coordinator().Status())
}

func TestSession_Reconfigure(t *testing.T) {
	s, _ := openSession(t, identity.NewStatic(ada, true), storage.Config{})
	_, err := s.Begin(context.Background())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.IdleTimeout = time.Minute
	require.NoError(t, s.Reconfigure(cfg))
	assert.True(t, s.Machine().Running())
	assert.Equal(t, time.Minute, s.Machine().Config().IdleTimeout)

	bad := cfg
	bad.WarningLead = 2 * time.Minute
	assert.ErrorIs(t, s.Reconfigure(bad), idle.ErrConfiguration)
	assert.True(t, s.Machine().Running(), "invalid config leaves the machine running")
}

func TestSession_CloseRemovesStorage(t *testing.T) {
	dir := t.TempDir()
	s, _ := openSession(t, identity.NewStatic(ada, true), storage.Config{Backend: storage.BackendSQLite, Dir: dir})
	_, err := s.Begin(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Registry().Register("form1", registry.Value("x")))
	_, err = s.Registry().SnapshotAll()
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, s.ID()))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	_, err = os.Stat(filepath.Join(dir, s.ID()))
	assert.True(t, os.IsNotExist(err))
	assert.False(t, s.Machine().Running())

	_, err = s.Begin(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, s.Close())
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(context.Background(), Deps{})
	assert.Error(t, err)

	_, err = Open(context.Background(), Deps{
		Identity: identity.NewStatic(ada, true),
		Idle:     idle.Config{IdleTimeout: time.Second, WarningLead: time.Minute},
		Logger:   zerolog.Nop(),
	})
	assert.ErrorIs(t, err, idle.ErrConfiguration)
}
