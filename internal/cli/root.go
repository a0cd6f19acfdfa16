// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/sessionkeep/internal/config"
)

// Version information, set from main at build time.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globals holds the persistent flags.
type globals struct {
	configPath string
	jsonOutput bool
}

// Execute runs the command tree with the process arguments and returns the
// exit code.
func Execute() int {
	return execute(os.Args[1:], os.Stdout, os.Stderr)
}

func execute(args []string, stdout, stderr io.Writer) int {
	g := &globals{}
	root := NewRootCmd(g)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	cmd, err := root.ExecuteC()
	if err == nil {
		return ExitSuccess
	}
	if cmd == nil {
		cmd = root
	}
	name := strings.TrimPrefix(cmd.CommandPath(), root.Name()+" ")
	if g.jsonOutput {
		DisplayError(stdout, name, err, true)
	} else {
		DisplayError(stderr, name, err, false)
	}
	return ExitCode(err)
}

// NewRootCmd builds the command tree. g receives the persistent flags.
func NewRootCmd(g *globals) *cobra.Command {
	root := &cobra.Command{
		Use:           "sessionkeep",
		Short:         "Idle detection and session recovery for authenticated terminal sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default ~/.sessionkeep/config.toml)")
	root.PersistentFlags().BoolVar(&g.jsonOutput, "json", false, "machine-readable output")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(cmd.Name(), err.Error())
	})

	root.AddCommand(newRunCmd(g))
	root.AddCommand(newConfigCmd(g))
	root.AddCommand(newAccountsCmd(g))
	root.AddCommand(newVersionCmd(g))
	return root
}

// loadConfig reads the configuration and returns it with the path it came
// from. Without --config a missing default file yields the defaults.
func (g *globals) loadConfig() (*config.Config, string, error) {
	if g.configPath != "" {
		cfg, err := config.LoadFromPath(g.configPath)
		return cfg, g.configPath, err
	}
	path, err := config.ConfigPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load()
	return cfg, path, err
}

// resolvePath returns the config path without loading it.
func (g *globals) resolvePath() (string, error) {
	if g.configPath != "" {
		return g.configPath, nil
	}
	return config.ConfigPath()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
