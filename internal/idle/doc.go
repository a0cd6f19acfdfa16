// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package idle classifies idle time into ACTIVE, WARNING and TIMED_OUT and emits
// typed events when a boundary is crossed.
//
// # State Machine
//
//	ACTIVE    --elapsed >= timeout-lead-->  WARNING    (IDLE_WARNING)
//	WARNING   --elapsed >= timeout------->  TIMED_OUT  (TIMEOUT_EXCEEDED)
//	WARNING   --activity----------------->  ACTIVE     (USER_RETURNED)
//	TIMED_OUT --activity----------------->  ACTIVE     (USER_RETURNED, recoveredWithoutDecision)
//	TIMED_OUT --Reset()------------------>  ACTIVE     (silent)
//	TIMED_OUT --elapsed >= hard timeout-->  TIMED_OUT  (SESSION_EXPIRED, once)
//
// Classification runs on a fixed tick. It never fires before a threshold and may
// fire up to one tick interval after it.
//
// # Usage
//
//	m := idle.NewMachine(clock.RealClock{}, monitor, bus, log)
//	if err := m.Configure(idle.Config{IdleTimeout: 15 * time.Minute, WarningLead: 2 * time.Minute}); err != nil {
//	    return err
//	}
//	if err := m.Start(); err != nil {
//	    return err
//	}
//	defer m.Stop()
package idle
