// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if g.jsonOutput {
				return NewJSONResponse("version", map[string]string{
					"version":    Version,
					"git_commit": GitCommit,
					"build_date": BuildDate,
					"go_version": runtime.Version(),
					"platform":   runtime.GOOS + "/" + runtime.GOARCH,
				}).Write(cmd.OutOrStdout())
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sessionkeep %s\n", Version)
			fmt.Fprintln(out, RenderField("Commit", GitCommit))
			fmt.Fprintln(out, RenderField("Built", BuildDate))
			fmt.Fprintln(out, RenderField("Go", runtime.Version()))
			fmt.Fprintln(out, RenderField("Platform", runtime.GOOS+"/"+runtime.GOARCH))
			return nil
		},
	}
}
