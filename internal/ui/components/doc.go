// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides the visual pieces of the sessionkeep terminal
// shell: the header, the demo forms, the status bar and the session timeout
// overlay that renders the recovery prompt.
package components
