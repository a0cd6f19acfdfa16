// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"file": func(t *testing.T) Store {
			s, err := NewFileStore(filepath.Join(t.TempDir(), "tab-a"))
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "tab-a"))
			require.NoError(t, err)
			return s
		},
		"sealed": func(t *testing.T) Store {
			s, err := Seal(NewMemoryStore())
			require.NoError(t, err)
			return s
		},
	}
}

func TestStore_Contract(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			_, ok, err := s.Get("missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Put("sessionpersist_form_form1", []byte(`{"a":1}`)))
			require.NoError(t, s.Put("sessionpersist_form_form2", []byte(`{"b":2}`)))
			require.NoError(t, s.Put("other", []byte("x")))

			data, ok, err := s.Get("sessionpersist_form_form1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, `{"a":1}`, string(data))

			// Overwrite replaces.
			require.NoError(t, s.Put("sessionpersist_form_form1", []byte(`{"a":2}`)))
			data, _, err = s.Get("sessionpersist_form_form1")
			require.NoError(t, err)
			assert.Equal(t, `{"a":2}`, string(data))

			names, err := s.List("sessionpersist_form_")
			require.NoError(t, err)
			assert.Equal(t, []string{"sessionpersist_form_form1", "sessionpersist_form_form2"}, names)

			require.NoError(t, s.Delete("sessionpersist_form_form1"))
			require.NoError(t, s.Delete("sessionpersist_form_form1"), "deleting twice is not an error")
			_, ok, err = s.Get("sessionpersist_form_form1")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Close())
			_, _, err = s.Get("other")
			assert.ErrorIs(t, err, ErrClosed)
			assert.ErrorIs(t, s.Put("other", nil), ErrClosed)
		})
	}
}

func TestFileStore_CloseRemovesTabDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tab-b")
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put("k/with/slashes", []byte("v")))

	data, ok, err := s.Get("k/with/slashes")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", string(data))

	require.NoError(t, s.Close())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, s.Close(), "second close is a no-op")
}

func TestSQLiteStore_CloseRemovesDatabase(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tab-c")
	s, err := NewSQLiteStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put("k", []byte("v")))

	require.NoError(t, s.Close())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestSealed_EntriesAreEncrypted(t *testing.T) {
	inner := NewMemoryStore()
	s, err := Seal(inner)
	require.NoError(t, err)

	secret := []byte(`{"password":"hunter2"}`)
	require.NoError(t, s.Put("form", secret))

	raw, ok, err := inner.Get("form")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, bytes.Contains(raw, []byte("hunter2")))

	plain, ok, err := s.Get("form")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, secret, plain)
}

func TestSealed_RejectsMovedOrForeignEntries(t *testing.T) {
	inner := NewMemoryStore()
	s, err := Seal(inner)
	require.NoError(t, err)
	require.NoError(t, s.Put("a", []byte("value")))

	raw, _, err := inner.Get("a")
	require.NoError(t, err)
	require.NoError(t, inner.Put("b", raw))

	_, _, err = s.Get("b")
	assert.ErrorIs(t, err, ErrCorrupt)

	// A store sealed with a different key cannot read it either.
	other, err := Seal(inner)
	require.NoError(t, err)
	_, _, err = other.Get("a")
	assert.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, inner.Put("short", []byte("x")))
	_, _, err = s.Get("short")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)
	s.Close()

	s, err = Open(Config{Backend: BackendFile, Dir: dir, Namespace: "tab-1/../x"})
	require.NoError(t, err)
	fs, ok := s.(*FileStore)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "tab-1_.._x"), fs.Dir())
	s.Close()

	s, err = Open(Config{Backend: BackendSQLite, Dir: dir, Namespace: "tab-2", Encrypt: true})
	require.NoError(t, err)
	assert.IsType(t, &Sealed{}, s)
	s.Close()

	_, err = Open(Config{Backend: "redis"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}
