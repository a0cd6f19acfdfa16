// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package shell

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/sessionkeep/internal/ui/styles"
)

// View renders the shell. A visible overlay replaces the forms.
func (m Model) View() string {
	if m.overlay.IsVisible() {
		return m.overlay.View()
	}

	width := m.width
	if width == 0 {
		width = 80
	}

	var body string
	if m.theme.GetLayoutMode() == styles.LayoutWide {
		half := width / 2
		body = lipgloss.JoinHorizontal(lipgloss.Top,
			m.forms[0].View(half),
			m.forms[1].View(width-half))
	} else {
		views := make([]string, 0, len(m.forms))
		for _, f := range m.forms {
			views = append(views, f.View(width))
		}
		body = lipgloss.JoinVertical(lipgloss.Left, views...)
	}

	hint := m.theme.Hint.Render(m.keys.ShortHelp())

	return lipgloss.JoinVertical(lipgloss.Left,
		m.header.View(),
		body,
		hint,
		m.status.View(),
	)
}
