// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package activity

import "context"

// Feed is a Source that other goroutines push channels into.
// Emit never blocks; when the buffer is full the signal is dropped, which is
// harmless because a burst would be debounced anyway.
type Feed struct {
	ch chan Channel
}

// NewFeed creates a feed with the given buffer size.
func NewFeed(buffer int) *Feed {
	if buffer < 1 {
		buffer = 1
	}
	return &Feed{ch: make(chan Channel, buffer)}
}

// Emit queues a signal.
func (f *Feed) Emit(ch Channel) {
	select {
	case f.ch <- ch:
	default:
	}
}

// Run forwards queued signals until ctx is cancelled.
func (f *Feed) Run(ctx context.Context, emit func(Channel)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ch := <-f.ch:
			emit(ch)
		}
	}
}
