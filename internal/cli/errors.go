// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/sessionkeep/internal/config"
	"github.com/jeranaias/sessionkeep/internal/identity"
	"github.com/jeranaias/sessionkeep/internal/idle"
	"github.com/jeranaias/sessionkeep/internal/storage"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates authentication failure or cancellation
	ExitAuthError = 4
	// ExitNetworkError indicates the identity provider was unreachable
	ExitNetworkError = 5
	// ExitStorageError indicates the snapshot store could not be opened
	ExitStorageError = 6
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // e.g. "config"
	Action  string // e.g. "set"
	Reason  string
	Err     error
	Code    int // exit code; 0 means derive from Err
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError creates a new command error.
func NewCommandError(command, action, reason string, err error) error {
	return &CommandError{Command: command, Action: action, Reason: reason, Err: err}
}

// usageError marks err as a usage problem.
func usageError(command, reason string) error {
	return &CommandError{Command: command, Action: "parse", Reason: reason, Code: ExitUsageError}
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code != 0 {
		return cmdErr.Code
	}

	var ttyErr *TTYRequiredError
	var validateErrs config.ValidateErrors
	var validateErr config.ValidationError
	switch {
	case errors.As(err, &ttyErr):
		return ExitUsageError
	case errors.As(err, &validateErrs), errors.As(err, &validateErr),
		errors.Is(err, idle.ErrConfiguration):
		return ExitConfigError
	case errors.Is(err, identity.ErrNetwork):
		return ExitNetworkError
	case errors.Is(err, identity.ErrCancelled), errors.Is(err, identity.ErrProvider):
		return ExitAuthError
	case errors.Is(err, storage.ErrUnknownBackend), errors.Is(err, storage.ErrCorrupt):
		return ExitStorageError
	}
	return ExitGeneralError
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError writes err to w, as a JSON response in JSON mode.
func DisplayError(w io.Writer, command string, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		_ = NewJSONErrorResponse(command, err).Write(w)
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), err.Error())
}
