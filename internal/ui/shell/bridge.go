// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package shell

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/sessionkeep/internal/events"
	"github.com/jeranaias/sessionkeep/internal/recovery"
	"github.com/jeranaias/sessionkeep/internal/session"
)

// idleEventMsg carries an idle event from the session bus.
type idleEventMsg struct {
	Event events.Event
}

// promptMsg carries a coordinator view change.
type promptMsg struct {
	View   recovery.View
	Status recovery.Status
}

// bridge turns session callbacks into messages for the Bubble Tea loop.
type bridge struct {
	ch   chan tea.Msg
	done chan struct{}
	once sync.Once
	sub  *events.Subscription
}

func newBridge(s *session.Session) *bridge {
	b := &bridge{
		ch:   make(chan tea.Msg, 16),
		done: make(chan struct{}),
	}
	b.sub = s.Subscribe(
		events.Kinds(events.IdleWarning, events.UserReturned, events.SessionExpired),
		func(e events.Event) { b.send(idleEventMsg{Event: e}) })
	coord := s.Coordinator()
	coord.OnPromptChange(func(v recovery.View) {
		b.send(promptMsg{View: v, Status: coord.Status()})
	})
	return b
}

func (b *bridge) send(msg tea.Msg) {
	select {
	case b.ch <- msg:
	case <-b.done:
	}
}

// listen waits for the next message. It returns nil once the bridge closes.
func (b *bridge) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.ch:
			return msg
		case <-b.done:
			return nil
		}
	}
}

func (b *bridge) Close() {
	b.once.Do(func() {
		close(b.done)
		b.sub.Close()
	})
}
