// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the structured logger shared by every sessionkeep component.
//
// Output is human-readable when stderr is a terminal and JSON otherwise. Session
// lifecycle events are written with a stable "event" field (SESSION_WARNING,
// SESSION_TIMEOUT, ...) so they can be grepped like an audit trail.
//
// # Usage
//
//	log, closer, err := logging.New(logging.Config{Level: "info"})
//	if err != nil {
//	    return err
//	}
//	defer closer.Close()
//	log.Info().Msg("ready")
package logging
