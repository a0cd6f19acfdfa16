// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package shell

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/sessionkeep/internal/activity"
	"github.com/jeranaias/sessionkeep/internal/events"
	"github.com/jeranaias/sessionkeep/internal/identity"
	"github.com/jeranaias/sessionkeep/internal/idle"
	"github.com/jeranaias/sessionkeep/internal/recovery"
	"github.com/jeranaias/sessionkeep/internal/ui/components"
	"github.com/jeranaias/sessionkeep/internal/ui/styles"
)

// =============================================================================
// MESSAGES
// =============================================================================

// decisionResultMsg reports the outcome of SubmitDecision.
type decisionResultMsg struct {
	Decision recovery.Decision
	Err      error
}

// DeviceCodeMsg carries the code of a device sign-in started by the identity
// provider while the shell owns the terminal.
type DeviceCodeMsg struct {
	UserCode        string
	VerificationURI string
}

// autoSaveMsg asks for a form to be saved if it has not changed since
// Revision.
type autoSaveMsg struct {
	Key      string
	Revision uint64
}

type spinMsg struct{}

type countdownMsg struct{}

// =============================================================================
// UPDATE
// =============================================================================

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.theme.SetSize(msg.Width, msg.Height)
		m.header.SetWidth(msg.Width)
		m.status.SetWidth(msg.Width)
		m.overlay.SetSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Check) {
			m.record(activity.Manual)
		} else {
			m.record(activity.Keyboard)
		}
		var quit bool
		m, cmd, quit = m.handleKey(msg)
		if quit {
			m.bridge.Close()
			return m, tea.Quit
		}

	case tea.MouseMsg:
		if tea.MouseEvent(msg).IsWheel() {
			m.record(activity.Scroll)
		} else {
			m.record(activity.Pointer)
		}

	case tea.FocusMsg:
		m.record(activity.Focus)

	case idleEventMsg:
		m = m.handleIdleEvent(msg.Event)
		cmd = m.bridge.listen()
		if msg.Event.Kind == events.IdleWarning {
			cmd = tea.Batch(cmd, countdownTick())
		}

	case promptMsg:
		m = m.handlePrompt(msg)
		cmd = m.bridge.listen()

	case components.DecisionMsg:
		if m.submitting {
			break
		}
		m.submitting = true
		label := "Signing in..."
		if msg.Decision == recovery.SignOut {
			label = "Signing out..."
		}
		m.overlay.SetBusy(label)
		cmd = tea.Batch(m.submit(msg.Decision), spinTick())

	case decisionResultMsg:
		m = m.handleDecisionResult(msg)

	case autoSaveMsg:
		m.autoSaveForm(msg)

	case DeviceCodeMsg:
		text := fmt.Sprintf("Enter code %s at %s", msg.UserCode, msg.VerificationURI)
		if m.overlay.Busy() {
			m.overlay.SetBusy(text)
		}
		m.status.SetMessage(text, true)

	case components.SessionExtendedMsg:
		m.status.SetMessage("Welcome back", true)

	case spinMsg:
		if m.overlay.Busy() {
			m.overlay.Spin()
			cmd = spinTick()
		}

	case countdownMsg:
		if m.overlay.Mode() == components.OverlayWarning {
			m.overlay.UpdateTime(m.warningDeadline.Sub(m.clock.Now()))
			cmd = countdownTick()
		}
	}

	m.refreshStatus()
	return m, cmd
}

func (m Model) record(ch activity.Channel) {
	m.sess.Monitor().Record(ch)
}

// handleKey routes a key press. It reports whether the program should quit.
func (m Model) handleKey(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	if key.Matches(msg, m.keys.Quit) {
		return m, nil, true
	}

	switch m.overlay.Mode() {
	case components.OverlaySignedOut:
		return m, nil, true
	case components.OverlayWarning, components.OverlayPrompt:
		var cmd tea.Cmd
		m.overlay, cmd = m.overlay.Update(msg)
		return m, cmd, false
	}

	f := m.focusedForm()
	switch {
	case key.Matches(msg, m.keys.Check):
		m.sess.Machine().Check()
		m.status.SetMessage("Checked in", true)
		return m, nil, false

	case key.Matches(msg, m.keys.Submit):
		m.submitForm(f)
		return m, nil, false

	case key.Matches(msg, m.keys.Enter):
		if f != nil && f.OnLastField() {
			m.submitForm(f)
			return m, nil, false
		}
		cmd := m.next()
		return m, cmd, false

	case key.Matches(msg, m.keys.Next):
		cmd := m.next()
		return m, cmd, false

	case key.Matches(msg, m.keys.Prev):
		cmd := m.prev()
		return m, cmd, false
	}

	if f == nil {
		return m, nil, false
	}
	before := f.Revision()
	cmd := f.Update(msg)
	if f.Revision() != before {
		cmd = tea.Batch(cmd, m.scheduleSave(f))
	}
	return m, cmd, false
}

// scheduleSave saves f once it has been left alone for the auto-save delay.
func (m Model) scheduleSave(f *components.Form) tea.Cmd {
	if m.autoSave <= 0 {
		return nil
	}
	msg := autoSaveMsg{Key: f.Key, Revision: f.Revision()}
	return tea.Tick(m.autoSave, func(time.Time) tea.Msg { return msg })
}

func (m Model) autoSaveForm(msg autoSaveMsg) {
	var f *components.Form
	for _, candidate := range m.forms {
		if candidate.Key == msg.Key {
			f = candidate
		}
	}
	if f == nil || f.Revision() != msg.Revision {
		return // edited again or reset since
	}
	if m.sess.Coordinator().Status() == recovery.SignedOut {
		return
	}
	if err := m.sess.Registry().SnapshotKey(f.Key); err != nil {
		m.status.SetMessage(fmt.Sprintf("Could not save %s: %v", f.Title, err), false)
		return
	}
	m.refreshSaved()
}

// next moves focus forward, wrapping from the last form to the first.
func (m *Model) next() tea.Cmd {
	f := m.focusedForm()
	if f == nil {
		m.focus = 0
		return m.forms[0].Focus(0)
	}
	if ok, cmd := f.Next(); ok {
		return cmd
	}
	m.focus = (m.focus + 1) % len(m.forms)
	return m.forms[m.focus].Focus(0)
}

// prev moves focus backward, wrapping from the first form to the last.
func (m *Model) prev() tea.Cmd {
	f := m.focusedForm()
	if f == nil {
		m.focus = 0
		return m.forms[0].Focus(0)
	}
	if ok, cmd := f.Prev(); ok {
		return cmd
	}
	m.focus = (m.focus - 1 + len(m.forms)) % len(m.forms)
	return m.forms[m.focus].FocusLast()
}

// submitForm clears a valid form and its snapshot. An invalid form is kept
// and shows its field errors.
func (m Model) submitForm(f *components.Form) {
	if f == nil {
		return
	}
	if f.Empty() {
		m.status.SetMessage(f.Title+" is empty", false)
		return
	}
	if errs := f.Validate(); len(errs) > 0 {
		f.MarkTouched()
		m.status.SetMessage(fmt.Sprintf("%s: %v", f.Title, errs[0]), false)
		return
	}
	if err := m.sess.Registry().Clear(f.Key); err != nil {
		m.status.SetMessage(fmt.Sprintf("Could not clear %s: %v", f.Title, err), false)
		return
	}
	f.Reset()
	m.refreshSaved()
	m.status.SetMessage(f.Title+" submitted", true)
}

func (m Model) handleIdleEvent(e events.Event) Model {
	switch e.Kind {
	case events.IdleWarning:
		if m.sess.Machine().State() != idle.Warning {
			break
		}
		remaining := time.Duration(e.ContextInt(events.CtxRemainingMs)) * time.Millisecond
		m.warningDeadline = m.clock.Now().Add(remaining)
		m.overlay.ShowWarning(remaining, m.sess.Machine().Config().WarningLead)

	case events.UserReturned:
		if m.overlay.Mode() == components.OverlayWarning {
			m.overlay.Hide()
		}
		if reason := e.ContextString(events.CtxReturnReason); reason != "" {
			m.status.SetMessage("Activity detected: "+components.FormatReturnReason(reason), true)
		}

	case events.SessionExpired:
		m.status.SetMessage("Session expired", false)
	}
	return m
}

func (m Model) handlePrompt(msg promptMsg) Model {
	switch msg.Status {
	case recovery.SignedOut:
		m.overlay.ShowSignedOut(m.sess.Machine().Status().Expired)
		for _, f := range m.forms {
			f.Blur()
			f.Reset()
		}
		m.refreshSaved()
		return m
	case recovery.Reauthenticating, recovery.SigningOut:
		// The prompt stays up with its spinner until the outcome is known.
		return m
	}
	m.overlay.ShowPrompt(msg.View)
	return m
}

func (m Model) handleDecisionResult(msg decisionResultMsg) Model {
	m.submitting = false
	m.overlay.SetBusy("")
	m.refreshSaved()

	switch {
	case msg.Err == nil && msg.Decision == recovery.Reauthenticate:
		n := m.restoreForms()
		m.status.SetMessage(fmt.Sprintf("Signed in again, %d form(s) restored", n), true)
	case msg.Err == nil:
	case errors.Is(msg.Err, recovery.ErrDecisionDiscarded):
	default:
		m.overlay.SetError(describeFailure(msg.Err))
	}
	return m
}

// submit runs the decision off the UI goroutine.
func (m Model) submit(d recovery.Decision) tea.Cmd {
	coord := m.sess.Coordinator()
	ctx := m.ctx
	return func() tea.Msg {
		return decisionResultMsg{Decision: d, Err: coord.SubmitDecision(ctx, d)}
	}
}

// describeFailure renders an identity failure for the prompt.
func describeFailure(err error) string {
	switch {
	case errors.Is(err, recovery.ErrSessionExpired):
		return "Session expired while signing in"
	case errors.Is(err, identity.ErrCancelled):
		return "Sign-in was cancelled. Try again or sign out."
	case errors.Is(err, identity.ErrNetwork):
		return "Network error. Check your connection and try again."
	case errors.Is(err, identity.ErrProvider):
		return "The identity provider rejected the request."
	}
	return err.Error()
}

func spinTick() tea.Cmd {
	return tea.Tick(styles.LineSpinner.Duration(), func(time.Time) tea.Msg { return spinMsg{} })
}

func countdownTick() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return countdownMsg{} })
}
