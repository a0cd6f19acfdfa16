// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/sessionkeep/internal/events"
	"github.com/jeranaias/sessionkeep/internal/recovery"
	"github.com/jeranaias/sessionkeep/internal/ui/styles"
)

// =============================================================================
// SESSION TIMEOUT OVERLAY
// =============================================================================

// OverlayMode is what the overlay is currently showing.
type OverlayMode int

const (
	OverlayHidden OverlayMode = iota
	// OverlayWarning counts down to the idle timeout. Any key dismisses it.
	OverlayWarning
	// OverlayPrompt asks the user to re-authenticate or sign out.
	OverlayPrompt
	// OverlaySignedOut is terminal.
	OverlaySignedOut
)

// SessionTimeoutOverlay renders the idle warning, the recovery decision
// prompt and the signed-out notice.
type SessionTimeoutOverlay struct {
	mode OverlayMode

	// Warning
	timeRemaining time.Duration
	warningLead   time.Duration

	// Prompt
	event  events.Event
	busy   string
	frame  int
	errMsg string

	// Signed out
	forced bool

	// Dimensions
	width  int
	height int
}

// NewSessionTimeoutOverlay creates a hidden overlay.
func NewSessionTimeoutOverlay() SessionTimeoutOverlay {
	return SessionTimeoutOverlay{}
}

// =============================================================================
// STATE MANAGEMENT
// =============================================================================

// SetSize sets the overlay dimensions.
func (o *SessionTimeoutOverlay) SetSize(width, height int) {
	o.width = width
	o.height = height
}

// ShowWarning displays the countdown. lead is the full warning period and
// scales the progress bar.
func (o *SessionTimeoutOverlay) ShowWarning(remaining, lead time.Duration) {
	if o.mode == OverlayPrompt || o.mode == OverlaySignedOut {
		return
	}
	o.mode = OverlayWarning
	o.timeRemaining = remaining
	o.warningLead = lead
}

// UpdateTime updates the countdown timer.
func (o *SessionTimeoutOverlay) UpdateTime(remaining time.Duration) {
	o.timeRemaining = max(remaining, 0)
}

// ShowPrompt applies a coordinator view. An invisible view hides the prompt.
func (o *SessionTimeoutOverlay) ShowPrompt(v recovery.View) {
	if o.mode == OverlaySignedOut {
		return
	}
	if !v.Visible || v.Event == nil {
		if o.mode == OverlayPrompt {
			o.Hide()
		}
		return
	}
	o.mode = OverlayPrompt
	o.event = *v.Event
}

// SetBusy shows label with a spinner in place of the key hints. An empty
// label clears it.
func (o *SessionTimeoutOverlay) SetBusy(label string) {
	o.busy = label
	o.frame = 0
	if label != "" {
		o.errMsg = ""
	}
}

// Spin advances the busy spinner.
func (o *SessionTimeoutOverlay) Spin() {
	o.frame++
}

// SetError shows the outcome of a failed attempt under the prompt.
func (o *SessionTimeoutOverlay) SetError(msg string) {
	o.errMsg = msg
}

// ShowSignedOut switches to the terminal notice. forced reports whether the
// hard timeout ended the session.
func (o *SessionTimeoutOverlay) ShowSignedOut(forced bool) {
	o.mode = OverlaySignedOut
	o.forced = forced
	o.busy = ""
}

// Hide hides the overlay.
func (o *SessionTimeoutOverlay) Hide() {
	o.mode = OverlayHidden
	o.busy = ""
	o.errMsg = ""
	o.event = events.Event{}
}

// Mode returns what the overlay is showing.
func (o *SessionTimeoutOverlay) Mode() OverlayMode {
	return o.mode
}

// IsVisible returns whether the overlay is currently visible.
func (o *SessionTimeoutOverlay) IsVisible() bool {
	return o.mode != OverlayHidden
}

// Busy reports whether a decision is being carried out.
func (o *SessionTimeoutOverlay) Busy() bool {
	return o.busy != ""
}

// TimeRemaining returns the current time remaining.
func (o *SessionTimeoutOverlay) TimeRemaining() time.Duration {
	return o.timeRemaining
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// DecisionMsg carries the user's choice from the prompt.
type DecisionMsg struct {
	Decision recovery.Decision
}

// SessionExtendedMsg signals the user dismissed the idle warning.
type SessionExtendedMsg struct{}

// Update handles messages for the overlay.
func (o SessionTimeoutOverlay) Update(msg tea.Msg) (SessionTimeoutOverlay, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		o.width = msg.Width
		o.height = msg.Height

	case tea.KeyMsg:
		switch o.mode {
		case OverlayWarning:
			o.Hide()
			return o, func() tea.Msg { return SessionExtendedMsg{} }
		case OverlayPrompt:
			if o.busy != "" {
				return o, nil
			}
			d, err := recovery.ParseDecision(msg.String())
			if err != nil {
				if msg.Type == tea.KeyEnter {
					d = recovery.Reauthenticate
				} else {
					return o, nil
				}
			}
			return o, func() tea.Msg { return DecisionMsg{Decision: d} }
		}
	}
	return o, nil
}

// View renders the overlay.
func (o SessionTimeoutOverlay) View() string {
	switch o.mode {
	case OverlayWarning:
		return o.viewWarning()
	case OverlayPrompt:
		return o.viewPrompt()
	case OverlaySignedOut:
		return o.viewSignedOut()
	}
	return ""
}

// =============================================================================
// RENDER METHODS
// =============================================================================

func (o SessionTimeoutOverlay) bounds() (width, height, maxWidth int) {
	width = o.width
	if width == 0 {
		width = 60
	}
	height = o.height
	if height == 0 {
		height = 24
	}
	maxWidth = min(max(width-8, 40), 60)
	return width, height, maxWidth
}

func (o SessionTimeoutOverlay) place(width, height int, box string) string {
	return lipgloss.Place(
		width, height,
		lipgloss.Center, lipgloss.Center,
		box,
		lipgloss.WithWhitespaceBackground(styles.SurfaceDim),
	)
}

func box(border lipgloss.TerminalColor, maxWidth int, parts ...string) string {
	return lipgloss.NewStyle().
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(border).
		Padding(1, 3).
		Width(maxWidth).
		Align(lipgloss.Center).
		Render(lipgloss.JoinVertical(lipgloss.Center, parts...))
}

// viewWarning renders the countdown before timeout.
func (o SessionTimeoutOverlay) viewWarning() string {
	width, height, maxWidth := o.bounds()

	titleStyle := lipgloss.NewStyle().Foreground(styles.Amber).Bold(true)
	msgStyle := lipgloss.NewStyle().
		Foreground(styles.TextPrimary).
		Width(maxWidth - 6).
		Align(lipgloss.Center)
	hintStyle := lipgloss.NewStyle().Foreground(styles.TextSecondary).Italic(true)

	percent := 0.0
	if o.warningLead > 0 {
		percent = float64(o.timeRemaining) / float64(o.warningLead) * 100
	}

	return o.place(width, height, box(styles.Amber, maxWidth,
		titleStyle.Render(styles.StatusIndicators.Warning+" Session Timeout Warning"),
		"",
		msgStyle.Render("Session will time out in "+titleStyle.Render(formatTimeRemaining(o.timeRemaining))),
		lipgloss.NewStyle().Foreground(styles.Amber).Render(styles.RenderProgressBar(maxWidth-10, percent)),
		"",
		hintStyle.Render("Press any key to continue working"),
	))
}

// viewPrompt renders the re-authenticate or sign out decision.
func (o SessionTimeoutOverlay) viewPrompt() string {
	width, height, maxWidth := o.bounds()
	e := o.event

	titleStyle := lipgloss.NewStyle().Foreground(styles.Amber).Bold(true)
	msgStyle := lipgloss.NewStyle().
		Foreground(styles.TextPrimary).
		Width(maxWidth - 6).
		Align(lipgloss.Center)
	labelStyle := lipgloss.NewStyle().Foreground(styles.TextSecondary)
	valueStyle := lipgloss.NewStyle().Foreground(styles.TextPrimary)
	hintStyle := lipgloss.NewStyle().Foreground(styles.TextMuted).Italic(true).
		Width(maxWidth - 6).
		Align(lipgloss.Center)
	keyStyle := lipgloss.NewStyle().Foreground(styles.Cyan).Bold(true)

	parts := []string{
		titleStyle.Render(styles.StatusIndicators.Warning + " Session Timeout"),
		"",
		msgStyle.Render("Your session has been idle for"),
		titleStyle.Render(FormatDuration(e.Elapsed) + "."),
		"",
	}

	info := func(label, value string) string {
		return labelStyle.Render(label+": ") + valueStyle.Render(value)
	}
	if !e.LastActiveAt.IsZero() {
		parts = append(parts, info("Last active", e.LastActiveAt.Format("Jan 2, 2006, 3:04:05 PM")))
	}
	if e.ContextBool(events.CtxFormsSaved) {
		parts = append(parts, info("Forms saved", fmt.Sprintf("%d form(s)", e.ContextInt(events.CtxFormCount))))
	}
	if reason := e.ContextString(events.CtxReturnReason); reason != "" {
		parts = append(parts, info("Detected via", FormatReturnReason(reason)))
	}

	parts = append(parts, "")
	if n := e.ContextInt(events.CtxFormCount); n > 0 {
		parts = append(parts, hintStyle.Render(
			"Your form data is saved automatically and will be restored after re-authentication."))
		parts = append(parts, "")
	}

	switch {
	case o.busy != "":
		parts = append(parts, lipgloss.NewStyle().Foreground(styles.Cyan).
			Render(styles.LineSpinner.Frame(o.frame)+" "+o.busy))
	default:
		parts = append(parts,
			keyStyle.Render("[R]")+valueStyle.Render(" Stay signed in   ")+
				keyStyle.Render("[S]")+valueStyle.Render(" Sign out"))
	}
	if o.errMsg != "" {
		parts = append(parts, "", styles.RenderError(o.errMsg))
	}

	return o.place(width, height, box(styles.Amber, maxWidth, parts...))
}

// viewSignedOut renders the terminal notice.
func (o SessionTimeoutOverlay) viewSignedOut() string {
	width, height, maxWidth := o.bounds()

	titleStyle := lipgloss.NewStyle().Foreground(styles.Rose).Bold(true)
	msgStyle := lipgloss.NewStyle().
		Foreground(styles.TextPrimary).
		Width(maxWidth - 6).
		Align(lipgloss.Center)
	exitStyle := lipgloss.NewStyle().Foreground(styles.TextSecondary)

	title := styles.StatusIndicators.Error + " Signed Out"
	msg := "You have been signed out. Unsaved form data was discarded."
	if o.forced {
		title = styles.StatusIndicators.Error + " Session Expired"
		msg = "Your session has timed out due to inactivity."
	}

	return o.place(width, height, box(styles.Rose, maxWidth,
		titleStyle.Render(title),
		"",
		msgStyle.Render(msg),
		"",
		exitStyle.Render("Press any key to exit."),
	))
}
