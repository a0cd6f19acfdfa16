// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package recovery

import (
	"errors"
	"fmt"
)

var (
	// ErrDecisionDiscarded is returned when a decision arrives with nothing
	// pending, or while a workflow is already running.
	ErrDecisionDiscarded = errors.New("recovery: no decision pending")

	// ErrSessionExpired is joined into the failure of a login cut short by expiry.
	ErrSessionExpired = errors.New("recovery: session expired")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("recovery: coordinator closed")
)

// AuthFailure reports a failed interactive login or logout. Err wraps one of
// identity.ErrCancelled, identity.ErrProvider or identity.ErrNetwork.
type AuthFailure struct {
	Decision Decision
	Err      error
}

func (e *AuthFailure) Error() string {
	return fmt.Sprintf("recovery: %s failed: %v", e.Decision, e.Err)
}

func (e *AuthFailure) Unwrap() error {
	return e.Err
}
