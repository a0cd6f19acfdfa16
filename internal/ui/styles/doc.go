// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the sessionkeep terminal shell.

All colors use Lip Gloss AdaptiveColor for automatic light/dark terminal
detection. Terminal capabilities are probed once through termenv when a
Theme is built.

# Color System (colors.go)

  - Purple - Focused form fields and the header title
  - Cyan - Brand color and key hints
  - Emerald - Authenticated and saved states
  - Amber - Idle warning and decision prompt
  - Rose - Expired sessions and failures

Every status colour is paired with an ASCII indicator from StatusIndicators so
that state is readable without colour.

# Theme (theme.go)

	theme := styles.NewTheme()
	theme.SetSize(msg.Width, msg.Height)
	header := theme.Header.Render("sessionkeep")

# Progress (progress.go)

RenderProgressBar draws the countdown bar shown while the idle warning is up:

	bar := styles.RenderProgressBar(30, 75)
*/
package styles
