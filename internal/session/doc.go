// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session wires the activity monitor, idle machine, event bus,
// transient-state registry and recovery coordinator into one authenticated
// session (one tab).
//
// # Key Types
//
//   - Session: owns every component for one tab; no globals
//   - Deps: what a session needs from the host (identity client, clock, config)
//
// # Usage
//
//	s, err := session.Open(ctx, session.Deps{Identity: client, Idle: idle.DefaultConfig()})
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	monitoring, err := s.Begin(ctx)
//
// Begin starts idle monitoring only when the identity provider has a signed-in
// account; unauthenticated sessions are never monitored.
package session
