// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package registry

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/utils/clock"

	"github.com/jeranaias/sessionkeep/internal/storage"
)

// EntryPrefix prefixes every persisted entry name.
const EntryPrefix = "sessionpersist_form_"

// EntryName returns the persisted entry name for key.
func EntryName(key string) string {
	return EntryPrefix + key
}

// =============================================================================
// SOURCES
// =============================================================================

// Source produces the current value of a registered surface.
// The value must be JSON serializable.
type Source interface {
	Capture() (any, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func() (any, error)

// Capture calls f.
func (f SourceFunc) Capture() (any, error) {
	return f()
}

// Value returns a Source that always captures v. Handy for tests and fixed state.
func Value(v any) Source {
	return SourceFunc(func() (any, error) { return v, nil })
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// Snapshot is one persisted capture.
type Snapshot struct {
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	CapturedAt time.Time       `json:"capturedAt"`
}

// Report summarizes a SnapshotAll pass.
type Report struct {
	Saved      []string
	Skipped    []KeyFailure
	CapturedAt time.Time
}

// Count returns the number of persisted keys.
func (r Report) Count() int {
	return len(r.Saved)
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry maps keys to sources and persists their snapshots in a Store.
type Registry struct {
	store storage.Store
	clock clock.PassiveClock
	log   zerolog.Logger

	mu       sync.Mutex
	sources  map[string]Source
	order    []string
	inFlight map[string]int
}

// New creates a registry over store.
func New(store storage.Store, clk clock.PassiveClock, log zerolog.Logger) *Registry {
	return &Registry{
		store:    store,
		clock:    clk,
		log:      log,
		sources:  make(map[string]Source),
		inFlight: make(map[string]int),
	}
}

// Register announces a surface. Registering an existing key replaces its source
// and keeps the previous snapshot.
func (r *Registry) Register(key string, src Source) error {
	if key == "" {
		return ErrEmptyKey
	}
	if src == nil {
		return fmt.Errorf("registry: nil source for key %q", key)
	}

	r.mu.Lock()
	_, exists := r.sources[key]
	r.sources[key] = src
	if !exists {
		r.order = append(r.order, key)
	}
	r.mu.Unlock()

	if exists {
		r.log.Warn().
			Str("event", "RegistryKeyCollision").
			Str("key", key).
			Msg("key registered twice; last registration wins")
	}
	return nil
}

// Unregister removes a surface. Its snapshot, if any, stays until Clear.
func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sources[key]; !ok {
		return
	}
	delete(r.sources, key)
	r.order = slices.DeleteFunc(r.order, func(k string) bool { return k == key })
}

// Keys returns the registered keys in registration order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}

// SnapshotAll captures and persists every registered key before returning.
// Keys that fail to capture, serialize or persist are skipped and reported in a
// *SnapshotPartialFailure; all others are persisted regardless.
func (r *Registry) SnapshotAll() (Report, error) {
	r.mu.Lock()
	keys := slices.Clone(r.order)
	sources := make(map[string]Source, len(keys))
	for _, k := range keys {
		sources[k] = r.sources[k]
	}
	busy := make(map[string]bool)
	for k, n := range r.inFlight {
		if n > 0 {
			busy[k] = true
		}
	}
	r.mu.Unlock()

	report := Report{CapturedAt: r.clock.Now()}
	for _, key := range keys {
		if busy[key] {
			report.Skipped = append(report.Skipped, KeyFailure{Key: key, Err: ErrRestoreInFlight})
			continue
		}
		if err := r.snapshotOne(key, sources[key], report.CapturedAt); err != nil {
			report.Skipped = append(report.Skipped, KeyFailure{Key: key, Err: err})
			continue
		}
		report.Saved = append(report.Saved, key)
	}

	r.log.Info().
		Int("saved", len(report.Saved)).
		Int("skipped", len(report.Skipped)).
		Msg("transient state snapshot")

	if len(report.Skipped) > 0 {
		for _, f := range report.Skipped {
			r.log.Warn().Str("key", f.Key).Err(f.Err).Msg("snapshot skipped key")
		}
		return report, &SnapshotPartialFailure{Saved: len(report.Saved), Failures: report.Skipped}
	}
	return report, nil
}

// SnapshotKey captures and persists one registered key. Surfaces that save on
// every change call it; the re-authentication boundary uses SnapshotAll.
func (r *Registry) SnapshotKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	r.mu.Lock()
	src, ok := r.sources[key]
	busy := r.inFlight[key] > 0
	r.mu.Unlock()

	switch {
	case !ok:
		return fmt.Errorf("%w: %q", ErrNotRegistered, key)
	case busy:
		return KeyFailure{Key: key, Err: ErrRestoreInFlight}
	}
	if err := r.snapshotOne(key, src, r.clock.Now()); err != nil {
		return KeyFailure{Key: key, Err: err}
	}
	r.log.Debug().Str("key", key).Msg("snapshot saved")
	return nil
}

func (r *Registry) snapshotOne(key string, src Source, at time.Time) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("capture panicked: %v", rec)
		}
	}()

	v, err := src.Capture()
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("serialize: %w", err)
	}
	data, err := json.Marshal(Snapshot{Key: key, Value: raw, CapturedAt: at})
	if err != nil {
		return fmt.Errorf("serialize: %w", err)
	}
	if err := r.store.Put(EntryName(key), data); err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	return nil
}

// Snapshot returns the last persisted capture for key.
func (r *Registry) Snapshot(key string) (Snapshot, bool, error) {
	if key == "" {
		return Snapshot{}, false, ErrEmptyKey
	}
	data, ok, err := r.store.Get(EntryName(key))
	if err != nil || !ok {
		return Snapshot{}, false, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("registry: decode snapshot %q: %w", key, err)
	}
	return snap, true, nil
}

// Restore returns the last captured value for key. The snapshot is kept.
func (r *Registry) Restore(key string) (json.RawMessage, bool, error) {
	snap, ok, err := r.Snapshot(key)
	if err != nil || !ok {
		return nil, false, err
	}
	return snap.Value, true, nil
}

// RestoreInto decodes the last captured value for key into v.
func (r *Registry) RestoreInto(key string, v any) (bool, error) {
	raw, ok, err := r.Restore(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("registry: decode value %q: %w", key, err)
	}
	return true, nil
}

// RestoreWith hands the last captured value for key to apply. While apply runs
// the key is marked in flight and SnapshotAll skips it, so a half-applied
// surface never overwrites its own snapshot.
func (r *Registry) RestoreWith(key string, apply func(json.RawMessage) error) (bool, error) {
	raw, ok, err := r.Restore(key)
	if err != nil || !ok {
		return false, err
	}

	r.mu.Lock()
	r.inFlight[key]++
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		if r.inFlight[key]--; r.inFlight[key] <= 0 {
			delete(r.inFlight, key)
		}
		r.mu.Unlock()
	}()

	if err := apply(raw); err != nil {
		return false, fmt.Errorf("registry: apply %q: %w", key, err)
	}
	return true, nil
}

// Clear removes the persisted snapshot for key. The registration stays.
func (r *Registry) Clear(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := r.store.Delete(EntryName(key)); err != nil {
		return fmt.Errorf("registry: clear %q: %w", key, err)
	}
	r.log.Debug().Str("key", key).Msg("snapshot cleared")
	return nil
}

// Persisted lists the keys that currently have a snapshot.
func (r *Registry) Persisted() ([]string, error) {
	names, err := r.store.List(EntryPrefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = strings.TrimPrefix(n, EntryPrefix)
	}
	return keys, nil
}
