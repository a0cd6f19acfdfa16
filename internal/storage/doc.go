// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides tab-scoped persistence for transient session state.
//
// Every backend lives inside a namespace derived from the tab (process session)
// identifier and is removed on Close, so persisted entries never outlive the tab
// and never leak into another one.
//
// # Backends
//
//   - memory: in-process map (default)
//   - file: one file per entry under a per-tab temp directory, written atomically
//   - sqlite: a per-tab SQLite database (modernc.org/sqlite, pure Go)
//
// Any backend can be wrapped with Seal to encrypt entries with a key that only
// exists in memory for the lifetime of the process.
//
// # Usage
//
//	store, err := storage.Open(storage.Config{Backend: storage.BackendSQLite, Namespace: tabID, Encrypt: true})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
package storage
