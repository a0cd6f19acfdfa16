// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/sessionkeep/internal/config"
)

// =============================================================================
// CONFIG COMMAND
// =============================================================================

func newConfigCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change the configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := g.loadConfig()
			if err != nil {
				return err
			}
			if g.jsonOutput {
				return NewJSONResponse("config show", map[string]any{
					"path":   path,
					"exists": fileExists(path),
					"values": configValues(cfg),
				}).Write(cmd.OutOrStdout())
			}
			printConfig(cmd.OutOrStdout(), cfg, path)
			return nil
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := g.resolvePath()
			if err != nil {
				return err
			}
			if fileExists(path) && !force {
				return &CommandError{
					Command: "config", Action: "init",
					Reason: path + " already exists (use --force to overwrite)",
					Code:   ExitConfigError,
				}
			}
			if err := config.SaveTOML(config.Default(), path); err != nil {
				return NewCommandError("config", "init", "write", err)
			}
			if g.jsonOutput {
				return NewJSONResponse("config init", map[string]any{"path": path}).Write(cmd.OutOrStdout())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", SuccessStyle.Render("[OK]"), path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := g.resolvePath()
			if err != nil {
				return err
			}
			if g.jsonOutput {
				return NewJSONResponse("config path", map[string]any{
					"path":   path,
					"exists": fileExists(path),
				}).Write(cmd.OutOrStdout())
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print one value (e.g. idle.timeout)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.loadConfig()
			if err != nil {
				return err
			}
			v, err := cfg.Get(args[0])
			if err != nil {
				return &CommandError{Command: "config", Action: "get", Reason: "lookup", Err: err, Code: ExitUsageError}
			}
			if g.jsonOutput {
				return NewJSONResponse("config get", map[string]any{
					"key":   args[0],
					"value": formatValue(v),
				}).Write(cmd.OutOrStdout())
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatValue(v))
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change one value and save the file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := g.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return &CommandError{Command: "config", Action: "set", Reason: args[0], Err: err, Code: ExitUsageError}
			}
			if err := cfg.Validate(); err != nil {
				return NewCommandError("config", "set", "invalid result", err)
			}
			if err := config.SaveTOML(cfg, path); err != nil {
				return NewCommandError("config", "set", "write", err)
			}
			v, _ := cfg.Get(args[0])
			if g.jsonOutput {
				return NewJSONResponse("config set", map[string]any{
					"key":   args[0],
					"value": formatValue(v),
					"path":  path,
				}).Write(cmd.OutOrStdout())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s\n", SuccessStyle.Render("[OK]"), args[0], formatValue(v))
			return nil
		},
	}

	keys := &cobra.Command{
		Use:   "keys",
		Short: "List every configuration key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if g.jsonOutput {
				return NewJSONResponse("config keys", config.Keys()).Write(cmd.OutOrStdout())
			}
			for _, k := range config.Keys() {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}

	cmd.AddCommand(show, initCmd, path, get, set, keys)
	return cmd
}

// =============================================================================
// RENDERING
// =============================================================================

// configValues flattens cfg into dot-notation keys.
func configValues(cfg *config.Config) map[string]string {
	values := make(map[string]string)
	for _, k := range config.Keys() {
		v, err := cfg.Get(k)
		if err != nil {
			continue
		}
		values[k] = formatValue(v)
	}
	return values
}

func formatValue(v any) string {
	switch v := v.(type) {
	case time.Duration:
		return v.String()
	case []string:
		return strings.Join(v, ",")
	}
	return fmt.Sprint(v)
}

func printConfig(w io.Writer, cfg *config.Config, path string) {
	fmt.Fprintln(w, TitleStyle.Render("sessionkeep Configuration"))
	fmt.Fprintln(w, RenderSeparator())

	source := path
	if !fileExists(path) {
		source += " (not created, showing defaults)"
	}
	fmt.Fprintln(w, RenderField("file", source))

	section := ""
	for _, k := range config.Keys() {
		head, name, ok := strings.Cut(k, ".")
		if !ok {
			head, name = "", k
		}
		if head != section {
			section = head
			fmt.Fprintln(w)
			fmt.Fprintln(w, SectionStyle.Render("["+section+"]"))
		}
		v, err := cfg.Get(k)
		if err != nil {
			continue
		}
		value := formatValue(v)
		if value == "" {
			value = DimStyle.Render("(unset)")
		}
		fmt.Fprintln(w, RenderField(name, value))
	}
}
