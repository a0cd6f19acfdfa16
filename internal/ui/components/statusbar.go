// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/sessionkeep/internal/idle"
	"github.com/jeranaias/sessionkeep/internal/recovery"
	"github.com/jeranaias/sessionkeep/internal/ui/styles"
	"github.com/jeranaias/sessionkeep/internal/util"
)

// =============================================================================
// STATUS BAR COMPONENT
// =============================================================================

// StatusBar is the bottom line: account, idle state and the last message.
type StatusBar struct {
	Account   string
	Idle      idle.State
	Monitored bool
	Recovery  recovery.Status
	Saved     int
	Message   string
	MessageOK bool
	Width     int
	theme     *styles.Theme
}

// NewStatusBar creates a status bar.
func NewStatusBar(theme *styles.Theme) *StatusBar {
	return &StatusBar{
		Width: 80,
		theme: theme,
	}
}

// SetWidth updates the status bar width.
func (s *StatusBar) SetWidth(width int) {
	s.Width = width
}

// SetMessage sets the message shown on the right.
func (s *StatusBar) SetMessage(msg string, ok bool) {
	s.Message = msg
	s.MessageOK = ok
}

// stateLabel renders the combined idle and recovery state with a shape
// indicator.
func (s *StatusBar) stateLabel() string {
	t := s.theme
	switch {
	case s.Recovery == recovery.SignedOut:
		return t.StatusError.Render(styles.StatusIndicators.Error + " SIGNED OUT")
	case s.Recovery == recovery.Reauthenticating:
		return t.StatusWarn.Render(styles.StatusIndicators.Pending + " SIGNING IN")
	case s.Recovery == recovery.SigningOut:
		return t.StatusWarn.Render(styles.StatusIndicators.Pending + " SIGNING OUT")
	case !s.Monitored:
		return t.StatusWarn.Render(styles.StatusIndicators.Pending + " NOT MONITORED")
	case s.Idle == idle.Warning:
		return t.StatusWarn.Render(styles.StatusIndicators.Warning + " " + s.Idle.String())
	case s.Idle == idle.TimedOut:
		return t.StatusError.Render(styles.StatusIndicators.Warning + " " + s.Idle.String())
	}
	return t.StatusOK.Render(styles.StatusIndicators.Active + " " + s.Idle.String())
}

// View renders the status bar.
func (s *StatusBar) View() string {
	t := s.theme
	sep := lipgloss.NewStyle().Foreground(styles.TextMuted).Render(" | ")

	left := []string{s.stateLabel()}
	if s.Account != "" {
		left = append(left, util.TruncateWidth(s.Account, 32))
	}
	if s.Saved > 0 {
		left = append(left, fmt.Sprintf("%d saved", s.Saved))
	}
	leftStr := strings.Join(left, sep)

	right := ""
	if s.Message != "" {
		room := s.Width - lipgloss.Width(leftStr) - t.StatusBar.GetHorizontalFrameSize() - 2
		right = util.TruncateWidth(s.Message, room)
		if s.MessageOK {
			right = t.StatusOK.Render(right)
		} else {
			right = t.StatusWarn.Render(right)
		}
	}

	gap := s.Width - lipgloss.Width(leftStr) - lipgloss.Width(right) - t.StatusBar.GetHorizontalFrameSize()
	return t.StatusBar.Render(leftStr + strings.Repeat(" ", max(gap, 1)) + right)
}
