// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("storage: store is closed")

	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("storage: unknown backend")

	// ErrCorrupt is returned when a sealed entry cannot be opened.
	ErrCorrupt = errors.New("storage: entry is corrupt or was sealed by another process")
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store persists named byte entries for the lifetime of one tab.
type Store interface {
	// Get returns the entry, or ok=false when absent.
	Get(name string) (data []byte, ok bool, err error)

	// Put creates or replaces the entry.
	Put(name string, data []byte) error

	// Delete removes the entry. Deleting a missing entry is not an error.
	Delete(name string) error

	// List returns every entry name with the given prefix.
	List(prefix string) ([]string, error)

	// Close releases the store and removes everything it persisted.
	Close() error
}

// =============================================================================
// BACKEND SELECTION
// =============================================================================

// Backend names a Store implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
)

// Config selects and configures a backend.
type Config struct {
	Backend Backend

	// Dir is the parent directory for on-disk backends (default: os.TempDir()/sessionkeep).
	Dir string

	// Namespace isolates one tab from another. Required for on-disk backends.
	Namespace string

	// Encrypt wraps the backend with Seal.
	Encrypt bool
}

// Open builds the configured store.
func Open(cfg Config) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case "", BackendMemory:
		store = NewMemoryStore()
	case BackendFile:
		store, err = NewFileStore(tabDir(cfg))
	case BackendSQLite:
		store, err = NewSQLiteStore(tabDir(cfg))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Encrypt {
		sealed, err := Seal(store)
		if err != nil {
			store.Close()
			return nil, err
		}
		return sealed, nil
	}
	return store, nil
}

func tabDir(cfg Config) string {
	base := cfg.Dir
	if base == "" {
		base = filepath.Join(os.TempDir(), "sessionkeep")
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "default"
	}
	return filepath.Join(base, sanitize(ns))
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, s)
}
