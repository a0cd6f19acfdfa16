// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Sealed encrypts entries of an inner Store with XChaCha20-Poly1305.
//
// The key is generated per process and never persisted, so sealed entries are
// unreadable once the process is gone. The entry name is bound as associated
// data, so an entry copied under another name fails to open.
type Sealed struct {
	inner Store
	aead  cipher.AEAD
}

// Seal wraps inner with a fresh random key.
func Seal(inner Store) (*Sealed, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("storage: generate key: %w", err)
	}
	return SealWithKey(inner, key)
}

// SealWithKey wraps inner with the given 32-byte key.
func SealWithKey(inner Store, key []byte) (*Sealed, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("storage: init cipher: %w", err)
	}
	return &Sealed{inner: inner, aead: aead}, nil
}

func (s *Sealed) Get(name string) ([]byte, bool, error) {
	sealed, ok, err := s.inner.Get(name)
	if err != nil || !ok {
		return nil, ok, err
	}
	ns := s.aead.NonceSize()
	if len(sealed) < ns+s.aead.Overhead() {
		return nil, false, fmt.Errorf("%w: %q", ErrCorrupt, name)
	}
	plain, err := s.aead.Open(nil, sealed[:ns], sealed[ns:], []byte(name))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %q", ErrCorrupt, name)
	}
	return plain, true, nil
}

func (s *Sealed) Put(name string, data []byte) error {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(data)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("storage: generate nonce: %w", err)
	}
	return s.inner.Put(name, s.aead.Seal(nonce, nonce, data, []byte(name)))
}

func (s *Sealed) Delete(name string) error {
	return s.inner.Delete(name)
}

func (s *Sealed) List(prefix string) ([]string, error) {
	return s.inner.List(prefix)
}

func (s *Sealed) Close() error {
	return s.inner.Close()
}
