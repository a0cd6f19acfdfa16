// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func idToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

func deviceServer(t *testing.T, tokenStatus int, tokenBody map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/devicecode", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"device_code":      "dev-123",
			"user_code":        "ABCD-EFGH",
			"verification_uri": "https://login.example/device",
			"expires_in":       600,
			"interval":         1,
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(tokenStatus)
		json.NewEncoder(w).Encode(tokenBody)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDevice_Login(t *testing.T) {
	tok := idToken(t, jwt.MapClaims{"sub": "sub-1", "oid": "oid-1", "preferred_username": "ada@example.com"})
	srv := deviceServer(t, http.StatusOK, map[string]any{
		"access_token": "at",
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     tok,
	})

	var shownCode, shownURI string
	d, err := NewDevice(DeviceConfig{
		ClientID:      "client",
		DeviceAuthURL: srv.URL + "/devicecode",
		TokenURL:      srv.URL + "/token",
	}, func(code, uri string) { shownCode, shownURI = code, uri }, zerolog.Nop())
	require.NoError(t, err)

	acc, err := d.LoginInteractive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Account{ID: "oid-1", Username: "ada@example.com"}, acc)
	assert.Equal(t, "ABCD-EFGH", shownCode)
	assert.Equal(t, "https://login.example/device", shownURI)

	accounts, err := d.ListAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Account{acc}, accounts)

	require.NoError(t, d.LogoutInteractive(context.Background()))
	accounts, err = d.ListAccounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestDevice_LoginDenied(t *testing.T) {
	srv := deviceServer(t, http.StatusBadRequest, map[string]any{
		"error":             "access_denied",
		"error_description": "The user declined",
	})
	d, err := NewDevice(DeviceConfig{
		ClientID:      "client",
		DeviceAuthURL: srv.URL + "/devicecode",
		TokenURL:      srv.URL + "/token",
	}, nil, zerolog.Nop())
	require.NoError(t, err)

	_, err = d.LoginInteractive(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestNewDevice_Validation(t *testing.T) {
	_, err := NewDevice(DeviceConfig{ClientID: "x"}, nil, zerolog.Nop())
	assert.Error(t, err)
}
