// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jeranaias/sessionkeep/internal/activity"
	"github.com/jeranaias/sessionkeep/internal/config"
	"github.com/jeranaias/sessionkeep/internal/identity"
	"github.com/jeranaias/sessionkeep/internal/logging"
	"github.com/jeranaias/sessionkeep/internal/session"
	"github.com/jeranaias/sessionkeep/internal/ui/shell"
	"github.com/jeranaias/sessionkeep/internal/ui/styles"
)

type runOptions struct {
	login bool
	watch bool
}

func newRunCmd(g *globals) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the terminal shell",
		Long: "Start the terminal shell with idle detection. Two demo forms keep their\n" +
			"contents across a timeout and re-authentication.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := RequiresTTY("run the terminal shell"); err != nil {
				return err
			}
			cfg, path, err := g.loadConfig()
			if err != nil {
				return err
			}
			return runShell(cmd.Context(), cfg, path, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.login, "login", true, "sign in first when no account is cached")
	cmd.Flags().BoolVar(&opts.watch, "watch", true, "apply idle settings when the config file changes")
	return cmd
}

// shellLogConfig sends logs to a file only; the shell owns the terminal.
func shellLogConfig(cfg *config.Config) (logging.Config, error) {
	lc := cfg.Logger()
	lc.Quiet = true
	if lc.File == "" {
		dir, err := config.ConfigDir()
		if err != nil {
			return lc, err
		}
		lc.File = filepath.Join(dir, "sessionkeep.log")
	}
	return lc, nil
}

// sessionDeps maps the configuration onto session dependencies.
func sessionDeps(cfg *config.Config, client identity.Client, log zerolog.Logger) session.Deps {
	debounce := cfg.Idle.Debounce
	if debounce == 0 {
		debounce = -1 // zero in the file means no debounce
	}
	return session.Deps{
		Identity: client,
		Idle:     cfg.Idle.Machine(),
		Storage:  cfg.Storage.Store(),
		Debounce: debounce,
		Sources:  []activity.Source{activity.ResumeSource()},
		Logger:   log,
	}
}

func runShell(ctx context.Context, cfg *config.Config, path string, opts runOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lc, err := shellLogConfig(cfg)
	if err != nil {
		return err
	}
	log, closer, err := logging.New(lc)
	if err != nil {
		return err
	}
	defer closer.Close()

	codes := newCodeRouter(os.Stdout)
	client, err := newIdentityClient(cfg.Identity, codes, log)
	if err != nil {
		return err
	}

	sess, err := session.Open(ctx, sessionDeps(cfg, client, log))
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn().Err(err).Msg("close session")
		}
	}()

	started, err := beginSession(ctx, sess, client, opts.login)
	if err != nil {
		return err
	}
	if !started {
		return &CommandError{
			Command: "run", Action: "start",
			Reason: "no signed-in account (run with --login)",
			Code:   ExitAuthError,
		}
	}

	if opts.watch && fileExists(path) {
		w, err := config.NewWatcher(path, 0, func(next *config.Config) {
			if err := sess.Reconfigure(next.Idle.Machine()); err != nil {
				log.Warn().Err(err).Msg("config reload rejected")
			}
		}, log.With().Str("component", "config").Logger())
		if err != nil {
			log.Warn().Err(err).Msg("config watcher disabled")
		} else {
			defer w.Close()
		}
	}

	theme := styles.NewTheme()
	theme.SetSize(GetTerminalSize())
	m, err := shell.New(shell.Config{
		Session:  sess,
		Theme:    theme,
		Context:  ctx,
		AutoSave: cfg.Storage.AutoSave,
	})
	if err != nil {
		return err
	}
	defer m.Close()

	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithReportFocus(),
		tea.WithContext(ctx),
	)
	codes.Attach(p)
	defer codes.Attach(nil)

	start := time.Now()
	_, err = p.Run()
	log.Info().Dur("duration", time.Since(start)).Msg("shell exited")
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("terminal shell: %w", err)
	}
	return nil
}

// beginSession starts monitoring, signing in first when allowed and needed.
func beginSession(ctx context.Context, sess *session.Session, client identity.Client, login bool) (bool, error) {
	started, err := sess.Begin(ctx)
	if err != nil || started || !login {
		return started, err
	}
	acc, err := client.LoginInteractive(ctx)
	if err != nil {
		return false, NewCommandError("run", "login", "sign-in failed", err)
	}
	client.SetActiveAccount(acc)
	return sess.Begin(ctx)
}
