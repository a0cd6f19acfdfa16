// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for sessionkeep.
//
// Configuration is TOML, with sensible defaults, environment variable
// overrides and validation.
//
// # Key Types
//
//   - Config: complete configuration
//   - IdleConfig: idle timeout, warning lead, hard timeout, tick
//   - StorageConfig: snapshot backend and encryption
//   - IdentityConfig: identity provider selection and settings
//   - LoggingConfig: level, format and file
//   - Watcher: reloads the file when it changes
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (SESSIONKEEP_*)
//   - ~/.sessionkeep/config.toml
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	machine.Configure(cfg.Idle.Machine())
package config
