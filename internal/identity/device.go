// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// DeviceConfig configures the device authorization grant adapter.
type DeviceConfig struct {
	ClientID      string
	DeviceAuthURL string
	TokenURL      string
	Scopes        []string
}

// DevicePrompt shows the user code and verification URL to the user.
type DevicePrompt func(userCode, verificationURI string)

// Device is a Client that signs in with the OAuth2 device authorization grant.
// The account identity comes from the ID token claims.
type Device struct {
	activeAccount

	oauth  *oauth2.Config
	prompt DevicePrompt
	log    zerolog.Logger

	mu       sync.Mutex
	accounts map[string]cachedToken
}

type cachedToken struct {
	account Account
	token   *oauth2.Token
}

// NewDevice creates the adapter. prompt is called once per login with the code to enter.
func NewDevice(cfg DeviceConfig, prompt DevicePrompt, log zerolog.Logger) (*Device, error) {
	if cfg.ClientID == "" || cfg.DeviceAuthURL == "" || cfg.TokenURL == "" {
		return nil, errors.New("identity: device flow needs client_id, device_auth_url and token_url")
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "profile"}
	}
	if prompt == nil {
		prompt = func(string, string) {}
	}
	return &Device{
		oauth: &oauth2.Config{
			ClientID: cfg.ClientID,
			Scopes:   cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				DeviceAuthURL: cfg.DeviceAuthURL,
				TokenURL:      cfg.TokenURL,
			},
		},
		prompt:   prompt,
		log:      log,
		accounts: make(map[string]cachedToken),
	}, nil
}

// LoginInteractive requests a device code, shows it and polls until the user
// finishes (or ctx is cancelled).
func (d *Device) LoginInteractive(ctx context.Context) (Account, error) {
	auth, err := d.oauth.DeviceAuth(ctx)
	if err != nil {
		return Account{}, Classify("device authorization", err)
	}

	uri := auth.VerificationURIComplete
	if uri == "" {
		uri = auth.VerificationURI
	}
	d.prompt(auth.UserCode, uri)

	token, err := d.oauth.DeviceAccessToken(ctx, auth)
	if err != nil {
		return Account{}, Classify("device token", err)
	}

	acc, err := accountFromToken(token)
	if err != nil {
		return Account{}, err
	}

	d.mu.Lock()
	d.accounts[acc.ID] = cachedToken{account: acc, token: token}
	d.mu.Unlock()

	d.log.Info().Str("account", acc.String()).Msg("device login completed")
	return acc, nil
}

// LogoutInteractive forgets the cached tokens. The device grant has no
// browser session to end.
func (d *Device) LogoutInteractive(ctx context.Context) error {
	d.mu.Lock()
	clear(d.accounts)
	d.mu.Unlock()
	d.SetActiveAccount(Account{})
	return nil
}

// ListAccounts returns the accounts signed in during this process.
func (d *Device) ListAccounts(ctx context.Context) ([]Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Account, 0, len(d.accounts))
	for _, c := range d.accounts {
		out = append(out, c.account)
	}
	return out, nil
}

// accountFromToken reads the account from the id_token claims. The token came
// straight from the token endpoint over TLS, so the signature is not checked here.
func accountFromToken(token *oauth2.Token) (Account, error) {
	raw, _ := token.Extra("id_token").(string)
	if raw == "" {
		return Account{}, fmt.Errorf("identity: %w: token response has no id_token", ErrProvider)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return Account{}, fmt.Errorf("identity: %w: parse id_token: %w", ErrProvider, err)
	}

	sub, _ := claims.GetSubject()
	if oid, ok := claims["oid"].(string); ok && oid != "" {
		sub = oid
	}
	if sub == "" {
		return Account{}, fmt.Errorf("identity: %w: id_token has no subject", ErrProvider)
	}

	acc := Account{ID: sub}
	for _, claim := range []string{"preferred_username", "email", "name"} {
		if v, ok := claims[claim].(string); ok && v != "" {
			acc.Username = v
			break
		}
	}
	return acc, nil
}
