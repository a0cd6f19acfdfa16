// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build unix

package activity

import (
	"context"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// ResumeSource reports Resume when the process is continued after a stop (SIGCONT).
func ResumeSource() Source {
	return SourceFunc(func(ctx context.Context, emit func(Channel)) {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, unix.SIGCONT)
		defer signal.Stop(sigs)

		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				emit(Resume)
			}
		}
	})
}
