// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package events

import (
	"maps"
	"time"
)

// Kind identifies an idle event.
type Kind int

const (
	// IdleWarning is emitted when the warning lead before timeout is reached.
	IdleWarning Kind = iota + 1
	// TimeoutExceeded is emitted when the idle timeout is reached.
	TimeoutExceeded
	// UserReturned is emitted when activity ends a warning or timed-out period.
	UserReturned
	// SessionExpired is emitted when the hard timeout passes with no decision.
	SessionExpired
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case IdleWarning:
		return "IDLE_WARNING"
	case TimeoutExceeded:
		return "TIMEOUT_EXCEEDED"
	case UserReturned:
		return "USER_RETURNED"
	case SessionExpired:
		return "SESSION_EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// Context keys used by the idle machine and the recovery coordinator.
const (
	CtxReturnReason             = "returnReason"
	CtxPreviousState            = "previousState"
	CtxRecoveredWithoutDecision = "recoveredWithoutDecision"
	CtxRemainingMs              = "remainingMs"
	CtxIdleTimeoutMs            = "idleTimeoutMs"
	CtxHardTimeoutMs            = "hardTimeoutMs"
	CtxFormsSaved               = "formsSaved"
	CtxFormCount                = "formCount"
)

// Event is a single idle event.
type Event struct {
	Kind Kind

	// Elapsed is the idle time at emission, measured from LastActiveAt.
	Elapsed time.Duration

	// LastActiveAt is the activity timestamp the computation used.
	LastActiveAt time.Time

	// At is when the event was emitted.
	At time.Time

	// Context is free-form metadata. Only the recovery coordinator acts on it.
	Context map[string]any
}

// Clone returns a copy whose Context can be modified independently.
func (e Event) Clone() Event {
	out := e
	out.Context = maps.Clone(e.Context)
	if out.Context == nil {
		out.Context = map[string]any{}
	}
	return out
}

// ContextString returns a string context value, or "" when absent.
func (e Event) ContextString(key string) string {
	s, _ := e.Context[key].(string)
	return s
}

// ContextInt returns an int context value, or 0 when absent.
func (e Event) ContextInt(key string) int {
	switch v := e.Context[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// ContextBool returns a bool context value, or false when absent.
func (e Event) ContextBool(key string) bool {
	b, _ := e.Context[key].(bool)
	return b
}
