// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Format selects the log encoding.
type Format string

const (
	// FormatAuto picks console output on a terminal and JSON otherwise.
	FormatAuto Format = "auto"
	// FormatConsole forces human-readable output.
	FormatConsole Format = "console"
	// FormatJSON forces one JSON object per line.
	FormatJSON Format = "json"
)

// Config controls logger construction.
type Config struct {
	// Level is a zerolog level name: trace, debug, info, warn, error.
	Level string

	// Format is auto, console or json.
	Format Format

	// File, when set, receives JSON logs in addition to stderr.
	File string

	// Diagnostics forces debug level regardless of Level.
	Diagnostics bool

	// Quiet drops the stderr output. Used while a UI owns the terminal.
	Quiet bool
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

// New builds a logger from cfg. The returned closer releases the log file, if any.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}
	if cfg.Diagnostics && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}

	var stderr io.Writer = os.Stderr
	switch {
	case cfg.Quiet:
		stderr = io.Discard
	case cfg.Format == FormatJSON:
	case cfg.Format == FormatConsole:
		stderr = consoleWriter(os.Stderr)
	default:
		if term.IsTerminal(int(os.Stderr.Fd())) {
			stderr = consoleWriter(os.Stderr)
		}
	}

	var closer io.Closer = nopCloser{}
	out := stderr
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0700); err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("failed to open log file: %w", err)
		}
		closer = f
		out = zerolog.MultiLevelWriter(stderr, f)
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return logger, closer, nil
}

// NewWriter builds a JSON logger on w. Used when a UI owns the terminal.
func NewWriter(w io.Writer, diagnostics bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if diagnostics {
		level = zerolog.DebugLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
