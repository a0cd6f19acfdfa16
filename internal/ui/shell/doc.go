// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package shell is the Bubble Tea program that hosts one session.
//
// It shows two demo forms registered with the session's transient-state
// registry, feeds keyboard, mouse and focus messages to the activity monitor,
// and renders the recovery prompt when the session times out. Session
// callbacks arrive on other goroutines and are turned into tea.Msg values by
// a bridge.
package shell
