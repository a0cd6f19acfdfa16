// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/jeranaias/sessionkeep/internal/storage"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newRegistry(t *testing.T) (*Registry, *storage.MemoryStore, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	store := storage.NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	return New(store, clocktesting.NewFakePassiveClock(epoch), zerolog.New(&buf)), store, &buf
}

type formValue struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

func TestRegistry_TwoFormsScenario(t *testing.T) {
	r, _, _ := newRegistry(t)
	require.NoError(t, r.Register("form1", Value(map[string]any{"name": "A"})))
	require.NoError(t, r.Register("form2", Value(map[string]any{"name": "B"})))

	report, err := r.SnapshotAll()
	require.NoError(t, err)
	assert.Equal(t, 2, report.Count())
	assert.Equal(t, []string{"form1", "form2"}, report.Saved)
	assert.Equal(t, epoch, report.CapturedAt)

	raw, ok, err := r.Restore("form1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"name":"A"}`, string(raw))

	// Restore does not delete.
	raw, ok, err = r.Restore("form1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"name":"A"}`, string(raw))
}

func TestRegistry_RoundTrip(t *testing.T) {
	values := map[string]any{
		"struct": formValue{Name: "Ada", Email: "ada@example.com"},
		"nested": map[string]any{"a": []any{1.5, "x", true, nil}, "b": map[string]any{"c": "d"}},
		"string": "plain text with \"quotes\" and ünïcode",
		"number": 42.25,
		"empty":  map[string]any{},
	}

	r, _, _ := newRegistry(t)
	for k, v := range values {
		require.NoError(t, r.Register(k, Value(v)))
	}
	_, err := r.SnapshotAll()
	require.NoError(t, err)

	for k, v := range values {
		want, err := json.Marshal(v)
		require.NoError(t, err)
		got, ok, err := r.Restore(k)
		require.NoError(t, err)
		require.True(t, ok, k)
		assert.JSONEq(t, string(want), string(got), k)
	}

	var f formValue
	ok, err := r.RestoreInto("struct", &f)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, formValue{Name: "Ada", Email: "ada@example.com"}, f)
}

func TestRegistry_PersistedLayout(t *testing.T) {
	r, store, _ := newRegistry(t)
	require.NoError(t, r.Register("form1", Value(formValue{Name: "A"})))
	_, err := r.SnapshotAll()
	require.NoError(t, err)

	data, ok, err := store.Get("sessionpersist_form_form1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"key":"form1","value":{"name":"A"},"capturedAt":"2025-03-01T09:00:00Z"}`, string(data))

	keys, err := r.Persisted()
	require.NoError(t, err)
	assert.Equal(t, []string{"form1"}, keys)
}

func TestRegistry_PartialFailure(t *testing.T) {
	r, _, buf := newRegistry(t)
	require.NoError(t, r.Register("good", Value(formValue{Name: "ok"})))
	require.NoError(t, r.Register("unserializable", Value(map[string]any{"ch": make(chan int)})))
	require.NoError(t, r.Register("failing", SourceFunc(func() (any, error) { return nil, errors.New("detached") })))
	require.NoError(t, r.Register("panicking", SourceFunc(func() (any, error) { panic("boom") })))
	require.NoError(t, r.Register("also-good", Value("fine")))

	report, err := r.SnapshotAll()
	require.Error(t, err)

	var partial *SnapshotPartialFailure
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, []string{"unserializable", "failing", "panicking"}, partial.Keys())
	assert.Equal(t, 2, partial.Saved)
	assert.Equal(t, []string{"good", "also-good"}, report.Saved)
	assert.Len(t, report.Skipped, 3)

	_, ok, err := r.Restore("good")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = r.Restore("unserializable")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Contains(t, buf.String(), "snapshot skipped key")
}

func TestRegistry_PersistFailureIsReported(t *testing.T) {
	r, store, _ := newRegistry(t)
	require.NoError(t, r.Register("form1", Value("x")))
	require.NoError(t, store.Close())

	report, err := r.SnapshotAll()
	var partial *SnapshotPartialFailure
	require.ErrorAs(t, err, &partial)
	assert.ErrorIs(t, err, storage.ErrClosed)
	assert.Equal(t, 0, report.Count())
}

func TestRegistry_ReRegisterKeepsSnapshotAndWarns(t *testing.T) {
	r, _, buf := newRegistry(t)
	require.NoError(t, r.Register("form1", Value(formValue{Name: "first"})))
	_, err := r.SnapshotAll()
	require.NoError(t, err)

	require.NoError(t, r.Register("form1", Value(formValue{Name: "second"})))
	assert.Contains(t, buf.String(), "RegistryKeyCollision")
	assert.Equal(t, []string{"form1"}, r.Keys())

	var f formValue
	ok, err := r.RestoreInto("form1", &f)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", f.Name, "previous snapshot preserved")

	_, err = r.SnapshotAll()
	require.NoError(t, err)
	_, err = r.RestoreInto("form1", &f)
	require.NoError(t, err)
	assert.Equal(t, "second", f.Name, "last registration wins")
}

func TestRegistry_ClearAndUnregister(t *testing.T) {
	r, _, _ := newRegistry(t)
	require.NoError(t, r.Register("form1", Value("a")))
	require.NoError(t, r.Register("form2", Value("b")))
	_, err := r.SnapshotAll()
	require.NoError(t, err)

	require.NoError(t, r.Clear("form1"))
	_, ok, err := r.Restore("form1")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, r.Clear("form1"), "clearing twice is fine")

	r.Unregister("form2")
	assert.Equal(t, []string{"form1"}, r.Keys())
	_, ok, err = r.Restore("form2")
	require.NoError(t, err)
	assert.True(t, ok, "unregister keeps the snapshot")

	report, err := r.SnapshotAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"form1"}, report.Saved)
}

func TestRegistry_RestoreWithSkipsInFlightKey(t *testing.T) {
	r, _, _ := newRegistry(t)
	current := formValue{Name: "saved"}
	require.NoError(t, r.Register("form1", SourceFunc(func() (any, error) { return current, nil })))
	require.NoError(t, r.Register("form2", Value("b")))
	_, err := r.SnapshotAll()
	require.NoError(t, err)

	var during error
	ok, err := r.RestoreWith("form1", func(raw json.RawMessage) error {
		current = formValue{} // half-applied
		_, during = r.SnapshotAll()
		return json.Unmarshal(raw, &current)
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "saved", current.Name)

	var partial *SnapshotPartialFailure
	require.ErrorAs(t, during, &partial)
	assert.Equal(t, []string{"form1"}, partial.Keys())
	assert.ErrorIs(t, during, ErrRestoreInFlight)

	var f formValue
	_, err = r.RestoreInto("form1", &f)
	require.NoError(t, err)
	assert.Equal(t, "saved", f.Name, "snapshot not overwritten by half-applied state")

	// Once apply returns the key snapshots again.
	_, err = r.SnapshotAll()
	require.NoError(t, err)
}

func TestRegistry_SnapshotKey(t *testing.T) {
	r, _, _ := newRegistry(t)
	current := formValue{Name: "draft"}
	require.NoError(t, r.Register("form1", SourceFunc(func() (any, error) { return current, nil })))
	require.NoError(t, r.Register("form2", Value("b")))

	require.NoError(t, r.SnapshotKey("form1"))
	keys, err := r.Persisted()
	require.NoError(t, err)
	assert.Equal(t, []string{"form1"}, keys, "only the named key is saved")

	current.Name = "edited"
	require.NoError(t, r.SnapshotKey("form1"))
	var f formValue
	_, err = r.RestoreInto("form1", &f)
	require.NoError(t, err)
	assert.Equal(t, "edited", f.Name)

	assert.ErrorIs(t, r.SnapshotKey("missing"), ErrNotRegistered)
	assert.ErrorIs(t, r.SnapshotKey(""), ErrEmptyKey)

	_, err = r.RestoreWith("form1", func(json.RawMessage) error {
		assert.ErrorIs(t, r.SnapshotKey("form1"), ErrRestoreInFlight)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, r.Register("bad", SourceFunc(func() (any, error) { return nil, errors.New("boom") })))
	err = r.SnapshotKey("bad")
	var kf KeyFailure
	require.ErrorAs(t, err, &kf)
	assert.Equal(t, "bad", kf.Key)
}

func TestRegistry_Validation(t *testing.T) {
	r, _, _ := newRegistry(t)
	assert.ErrorIs(t, r.Register("", Value(1)), ErrEmptyKey)
	assert.Error(t, r.Register("k", nil))
	_, _, err := r.Restore("")
	assert.ErrorIs(t, err, ErrEmptyKey)
	assert.ErrorIs(t, r.Clear(""), ErrEmptyKey)

	_, ok, err := r.Restore("never")
	require.NoError(t, err)
	assert.False(t, ok)

	report, err := r.SnapshotAll()
	require.NoError(t, err)
	assert.Zero(t, report.Count())
}

func TestRegistry_WorksOverSealedSQLite(t *testing.T) {
	store, err := storage.Open(storage.Config{
		Backend:   storage.BackendSQLite,
		Dir:       t.TempDir(),
		Namespace: "tab-test",
		Encrypt:   true,
	})
	require.NoError(t, err)
	defer store.Close()

	r := New(store, clocktesting.NewFakePassiveClock(epoch), zerolog.Nop())
	require.NoError(t, r.Register("form1", Value(formValue{Name: "A"})))
	_, err = r.SnapshotAll()
	require.NoError(t, err)

	var f formValue
	ok, err := r.RestoreInto("form1", &f)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "A", f.Name)
}
