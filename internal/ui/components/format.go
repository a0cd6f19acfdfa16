// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jeranaias/sessionkeep/internal/activity"
)

// returnReasons maps how activity was detected to display text. The
// underscore names are the ones browser-hosted tabs report.
var returnReasons = map[string]string{
	"tab_visible":               "Tab became visible",
	"window_focused":            "Window gained focus",
	"page_resumed":              "Page resumed from sleep",
	"manual_check":              "Manual check",
	string(activity.Visibility): "Tab became visible",
	string(activity.Focus):      "Window gained focus",
	string(activity.Resume):     "Page resumed from sleep",
	string(activity.Manual):     "Manual check",
	string(activity.Keyboard):   "Keyboard input",
	string(activity.Pointer):    "Mouse movement",
	string(activity.Scroll):     "Scrolling",
	string(activity.Touch):      "Touch input",
}

var titleCaser = cases.Title(language.English)

// FormatReturnReason turns a return reason into display text. Unknown reasons
// are title-cased.
func FormatReturnReason(reason string) string {
	if text, ok := returnReasons[reason]; ok {
		return text
	}
	reason = strings.TrimSpace(strings.NewReplacer("_", " ", "-", " ").Replace(reason))
	return titleCaser.String(reason)
}

// FormatDuration renders d as "M minute(s) and S second(s)", truncating
// partial seconds.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d / time.Minute)
	seconds := int((d % time.Minute) / time.Second)
	return fmt.Sprintf("%d %s and %d %s",
		minutes, plural(minutes, "minute"),
		seconds, plural(seconds, "second"))
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// formatTimeRemaining formats a duration as M:SS for display.
func formatTimeRemaining(d time.Duration) string {
	if d < 0 {
		return "0:00"
	}
	totalSecs := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", totalSecs/60, totalSecs%60)
}
