// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package idle

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultIdleTimeout matches the usual 15 minute inactivity limit.
	DefaultIdleTimeout = 15 * time.Minute

	// DefaultWarningLead is how long before the timeout the user is warned.
	DefaultWarningLead = 2 * time.Minute

	// DefaultTickInterval bounds how late a classification can fire.
	DefaultTickInterval = 200 * time.Millisecond
)

// Config is the idle configuration. It is immutable while the machine runs.
type Config struct {
	// IdleTimeout is the idle duration after which TIMEOUT_EXCEEDED fires.
	IdleTimeout time.Duration

	// WarningLead is how long before IdleTimeout IDLE_WARNING fires.
	WarningLead time.Duration

	// HardTimeout, when non-zero, is the idle duration after which a still
	// unresolved timeout becomes SESSION_EXPIRED. Must exceed IdleTimeout.
	HardTimeout time.Duration

	// TickInterval is the polling period (default DefaultTickInterval).
	TickInterval time.Duration

	// EnableDiagnostics logs every transition at debug level.
	EnableDiagnostics bool
}

// DefaultConfig returns the default idle configuration.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:  DefaultIdleTimeout,
		WarningLead:  DefaultWarningLead,
		TickInterval: DefaultTickInterval,
	}
}

// WarningAt is the idle duration at which the warning fires.
func (c Config) WarningAt() time.Duration {
	return c.IdleTimeout - c.WarningLead
}

func (c Config) tick() time.Duration {
	if c.TickInterval <= 0 {
		return DefaultTickInterval
	}
	return c.TickInterval
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	switch {
	case c.IdleTimeout <= 0:
		return configErr("configure", fmt.Sprintf("idle timeout must be positive, got %v", c.IdleTimeout))
	case c.WarningLead < 0:
		return configErr("configure", fmt.Sprintf("warning lead must not be negative, got %v", c.WarningLead))
	case c.WarningLead > c.IdleTimeout:
		return configErr("configure", fmt.Sprintf("warning lead %v exceeds idle timeout %v", c.WarningLead, c.IdleTimeout))
	case c.HardTimeout != 0 && c.HardTimeout <= c.IdleTimeout:
		return configErr("configure", fmt.Sprintf("hard timeout %v must exceed idle timeout %v", c.HardTimeout, c.IdleTimeout))
	case c.TickInterval < 0:
		return configErr("configure", fmt.Sprintf("tick interval must not be negative, got %v", c.TickInterval))
	}
	return nil
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrConfiguration matches every *ConfigurationError via errors.Is.
var ErrConfiguration = errors.New("idle configuration error")

// ConfigurationError reports a misordered configure/start call or an invalid
// configuration. It is fatal to the operation, not to the process.
type ConfigurationError struct {
	Op     string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("idle %s: %s", e.Op, e.Reason)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func configErr(op, reason string) error {
	return &ConfigurationError{Op: op, Reason: reason}
}
