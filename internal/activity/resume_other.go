// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !unix

package activity

import "context"

// ResumeSource has no signal to watch on this platform.
func ResumeSource() Source {
	return SourceFunc(func(ctx context.Context, _ func(Channel)) {
		<-ctx.Done()
	})
}
