// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package identity

import (
	"context"
	"sync"
)

// Static is an offline Client. Login succeeds immediately with a fixed account
// unless a failure is queued with FailNext.
type Static struct {
	activeAccount

	mu       sync.Mutex
	account  Account
	signedIn bool
	failNext []error
	logins   int
	logouts  int
}

// NewStatic creates a provider that signs in as acc. When signedIn is true the
// account is already cached, as after an earlier login.
func NewStatic(acc Account, signedIn bool) *Static {
	s := &Static{account: acc, signedIn: signedIn}
	if signedIn {
		s.SetActiveAccount(acc)
	}
	return s
}

// FailNext makes the next login fail with err (classified).
func (s *Static) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = append(s.failNext, err)
}

func (s *Static) LoginInteractive(ctx context.Context) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, Classify("static login", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.logins++
	if len(s.failNext) > 0 {
		err := s.failNext[0]
		s.failNext = s.failNext[1:]
		return Account{}, Classify("static login", err)
	}
	s.signedIn = true
	return s.account, nil
}

func (s *Static) LogoutInteractive(ctx context.Context) error {
	s.mu.Lock()
	s.logouts++
	s.signedIn = false
	s.mu.Unlock()
	s.SetActiveAccount(Account{})
	return nil
}

func (s *Static) ListAccounts(ctx context.Context) ([]Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.signedIn {
		return nil, nil
	}
	return []Account{s.account}, nil
}

// Calls returns how many logins and logouts were requested.
func (s *Static) Calls() (logins, logouts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins, s.logouts
}
