// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package registry holds the transient state of input surfaces (forms) across an
// authentication boundary.
//
// Surfaces register a Source under a stable key. SnapshotAll captures every
// registered source synchronously and persists one entry per key; a surface
// calls Restore during its own initialization to get its last snapshot back.
// Restore never deletes; Clear does.
//
// Persisted entries are named "sessionpersist_form_{key}" and are JSON objects
// of the form {"key": ..., "value": ..., "capturedAt": ...}.
package registry
