// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrCancelled means the user (or the caller's context) abandoned the flow.
	ErrCancelled = errors.New("identity: cancelled")

	// ErrProvider means the identity provider rejected the request.
	ErrProvider = errors.New("identity: provider error")

	// ErrNetwork means the provider could not be reached.
	ErrNetwork = errors.New("identity: network error")
)

// Classify wraps err with the matching sentinel. Already classified errors and
// nil are returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, ErrProvider) || errors.Is(err, ErrNetwork) {
		return err
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %w", op, ErrCancelled, err)
	case isCancelCode(err.Error()):
		return fmt.Errorf("%s: %w: %w", op, ErrCancelled, err)
	case errors.As(err, &netErr):
		return fmt.Errorf("%s: %w: %w", op, ErrNetwork, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrProvider, err)
	}
}

// isCancelCode matches the OAuth2 error codes a user abort produces.
func isCancelCode(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "access_denied") ||
		strings.Contains(msg, "user_cancel") ||
		strings.Contains(msg, "authorization_declined")
}

// =============================================================================
// CLIENT
// =============================================================================

// Account identifies a signed-in user.
type Account struct {
	ID       string
	Username string
}

// IsZero reports whether a is the empty account.
func (a Account) IsZero() bool {
	return a.ID == ""
}

// String returns the username, or the ID when no username is known.
func (a Account) String() string {
	if a.Username != "" {
		return a.Username
	}
	return a.ID
}

// Client is an identity provider.
type Client interface {
	// LoginInteractive runs an interactive login. It may block for as long as
	// the user takes; cancel ctx to abandon it.
	LoginInteractive(ctx context.Context) (Account, error)

	// LogoutInteractive ends the provider session of the active account and
	// forgets local credentials. Best effort.
	LogoutInteractive(ctx context.Context) error

	// ListAccounts returns the accounts with cached credentials.
	ListAccounts(ctx context.Context) ([]Account, error)

	// SetActiveAccount selects the account used by later calls.
	SetActiveAccount(Account)

	// ActiveAccount returns the selected account.
	ActiveAccount() (Account, bool)
}

// activeAccount is embedded by adapters for the active-account bookkeeping.
type activeAccount struct {
	mu  sync.RWMutex
	acc Account
}

func (a *activeAccount) SetActiveAccount(acc Account) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acc = acc
}

func (a *activeAccount) ActiveAccount() (Account, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.acc, !a.acc.IsZero()
}
