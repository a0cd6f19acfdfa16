// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package registry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyKey is returned when registering or restoring with an empty key.
	ErrEmptyKey = errors.New("registry: key must not be empty")

	// ErrRestoreInFlight marks a key skipped by SnapshotAll because its surface
	// was still applying a restored value.
	ErrRestoreInFlight = errors.New("registry: restore in flight")

	// ErrNotRegistered is returned by SnapshotKey for an unknown key.
	ErrNotRegistered = errors.New("registry: key not registered")
)

// KeyFailure records one key SnapshotAll could not persist.
type KeyFailure struct {
	Key string
	Err error
}

func (f KeyFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Key, f.Err)
}

func (f KeyFailure) Unwrap() error {
	return f.Err
}

// SnapshotPartialFailure is returned by SnapshotAll when one or more keys were
// skipped. Every other key was persisted.
type SnapshotPartialFailure struct {
	Saved    int
	Failures []KeyFailure
}

func (e *SnapshotPartialFailure) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("registry: snapshot skipped %d key(s), saved %d: %s",
		len(e.Failures), e.Saved, strings.Join(parts, "; "))
}

// Unwrap exposes the per-key errors to errors.Is and errors.As.
func (e *SnapshotPartialFailure) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Keys returns the skipped keys in order.
func (e *SnapshotPartialFailure) Keys() []string {
	keys := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		keys[i] = f.Key
	}
	return keys
}
