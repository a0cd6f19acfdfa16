// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package events carries idle events between the idle machine and its consumers.
//
// # Key Types
//
//   - Event: a typed idle event (IDLE_WARNING, TIMEOUT_EXCEEDED, USER_RETURNED, SESSION_EXPIRED)
//   - Bus: publish/subscribe with per-subscriber kind filters
//
// Each subscriber receives events on its own goroutine in the order they were
// published. There is no ordering guarantee across subscribers.
package events
