// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the sessionkeep command tree.
//
// Commands:
//
//	sessionkeep run              Start the terminal shell
//	sessionkeep config show      Print the effective configuration
//	sessionkeep config init      Write the default configuration file
//	sessionkeep config path      Print the configuration file path
//	sessionkeep config get KEY   Print one value (dot notation)
//	sessionkeep config set KEY V Change one value and save
//	sessionkeep accounts         List accounts with cached credentials
//	sessionkeep version          Print version information
//
// Every command accepts --json for machine-readable output and --config to
// read a file other than ~/.sessionkeep/config.toml.
package cli
