// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/sessionkeep/internal/ui/styles"
	"github.com/jeranaias/sessionkeep/internal/util"
)

// =============================================================================
// HEADER COMPONENT
// =============================================================================

// Header is the title bar.
type Header struct {
	Title    string
	Subtitle string
	Width    int
	theme    *styles.Theme
}

// NewHeader creates a header with the default title.
func NewHeader(theme *styles.Theme) *Header {
	return &Header{
		Title: "sessionkeep",
		Width: 80,
		theme: theme,
	}
}

// SetWidth updates the header width.
func (h *Header) SetWidth(width int) {
	h.Width = width
}

// View renders the header.
func (h *Header) View() string {
	t := h.theme
	content := t.HeaderTitle.Render(h.Title)
	if h.Subtitle != "" {
		room := h.Width - lipgloss.Width(content) - t.Header.GetHorizontalFrameSize() - 3
		content += "   " + t.HeaderSubtitle.Render(util.TruncateWidth(h.Subtitle, room))
	}
	return t.Header.Width(max(h.Width-t.Header.GetHorizontalBorderSize(), 0)).Render(content)
}
