// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package activity reduces user-presence signals to a single "last active" timestamp.
//
// Independent sources (pointer, keyboard, touch, scroll, visibility, focus, resume)
// fan in through Monitor.Record. Bursts inside the debounce window collapse to one
// update, and the timestamp never moves backward.
//
// # Usage
//
//	mon := activity.NewMonitor(clock.RealClock{}, log, activity.WithSources(activity.ResumeSource()))
//	mon.Start()
//	defer mon.Stop()
//
//	mon.Record(activity.Keyboard)
//	last := mon.LastActive()
package activity
