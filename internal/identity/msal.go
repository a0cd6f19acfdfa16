// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package identity

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/AzureAD/microsoft-authentication-library-for-go/apps/public"
	"github.com/pkg/browser"
	"github.com/rs/zerolog"
)

// DefaultAuthority is the multi-tenant Microsoft identity platform authority.
const DefaultAuthority = "https://login.microsoftonline.com/common"

// MSALConfig configures the MSAL adapter.
type MSALConfig struct {
	ClientID              string
	Authority             string
	Scopes                []string
	RedirectURI           string
	PostLogoutRedirectURI string
}

// publicClient is the subset of public.Client the adapter uses.
type publicClient interface {
	AcquireTokenInteractive(ctx context.Context, scopes []string, opts ...public.AcquireInteractiveOption) (public.AuthResult, error)
	Accounts(ctx context.Context) ([]public.Account, error)
	RemoveAccount(ctx context.Context, account public.Account) error
}

// MSAL is a Client backed by a Microsoft identity platform public client.
// Its token cache is in memory, so credentials live only as long as the process.
type MSAL struct {
	activeAccount

	cfg     MSALConfig
	client  publicClient
	openURL func(string) error
	log     zerolog.Logger
}

// NewMSAL creates the adapter.
func NewMSAL(cfg MSALConfig, log zerolog.Logger) (*MSAL, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("identity: msal client_id is required")
	}
	if cfg.Authority == "" {
		cfg.Authority = DefaultAuthority
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"User.Read"}
	}

	client, err := public.New(cfg.ClientID, public.WithAuthority(cfg.Authority))
	if err != nil {
		return nil, fmt.Errorf("identity: create msal client: %w", err)
	}
	return newMSAL(cfg, client, browser.OpenURL, log), nil
}

func newMSAL(cfg MSALConfig, client publicClient, openURL func(string) error, log zerolog.Logger) *MSAL {
	if cfg.Authority == "" {
		cfg.Authority = DefaultAuthority
	}
	return &MSAL{cfg: cfg, client: client, openURL: openURL, log: log}
}

// LoginInteractive opens the system browser for sign-in.
func (m *MSAL) LoginInteractive(ctx context.Context) (Account, error) {
	var opts []public.AcquireInteractiveOption
	if m.cfg.RedirectURI != "" {
		opts = append(opts, public.WithRedirectURI(m.cfg.RedirectURI))
	}
	if acc, ok := m.ActiveAccount(); ok && acc.Username != "" {
		opts = append(opts, public.WithLoginHint(acc.Username))
	}

	result, err := m.client.AcquireTokenInteractive(ctx, m.cfg.Scopes, opts...)
	if err != nil {
		return Account{}, Classify("msal login", err)
	}
	acc := fromMSAL(result.Account)
	m.log.Info().Str("account", acc.String()).Msg("interactive login completed")
	return acc, nil
}

// LogoutInteractive opens the end-session page for the active account and
// removes every cached account. Cached accounts are removed even when the
// browser cannot be opened.
func (m *MSAL) LogoutInteractive(ctx context.Context) error {
	var errs []error

	acc, _ := m.ActiveAccount()
	if err := m.openURL(m.logoutURL(acc)); err != nil {
		errs = append(errs, Classify("msal logout", err))
	}

	accounts, err := m.client.Accounts(ctx)
	if err != nil {
		errs = append(errs, Classify("msal accounts", err))
	}
	for _, a := range accounts {
		if err := m.client.RemoveAccount(ctx, a); err != nil {
			errs = append(errs, Classify("msal remove account", err))
		}
	}

	m.SetActiveAccount(Account{})
	return errors.Join(errs...)
}

// ListAccounts returns the accounts in the token cache.
func (m *MSAL) ListAccounts(ctx context.Context) ([]Account, error) {
	accounts, err := m.client.Accounts(ctx)
	if err != nil {
		return nil, Classify("msal accounts", err)
	}
	out := make([]Account, len(accounts))
	for i, a := range accounts {
		out[i] = fromMSAL(a)
	}
	return out, nil
}

func (m *MSAL) logoutURL(acc Account) string {
	q := url.Values{}
	if m.cfg.PostLogoutRedirectURI != "" {
		q.Set("post_logout_redirect_uri", m.cfg.PostLogoutRedirectURI)
	}
	if acc.Username != "" {
		q.Set("logout_hint", acc.Username)
	}
	u := strings.TrimSuffix(m.cfg.Authority, "/") + "/oauth2/v2.0/logout"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func fromMSAL(a public.Account) Account {
	return Account{ID: a.HomeAccountID, Username: a.PreferredUsername}
}
