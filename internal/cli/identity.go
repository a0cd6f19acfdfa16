// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/jeranaias/sessionkeep/internal/config"
	"github.com/jeranaias/sessionkeep/internal/identity"
	"github.com/jeranaias/sessionkeep/internal/ui/shell"
)

// newIdentityClient builds the configured provider. Device codes go to codes.
func newIdentityClient(cfg config.IdentityConfig, codes *codeRouter, log zerolog.Logger) (identity.Client, error) {
	log = log.With().Str("component", "identity").Logger()

	switch strings.ToLower(cfg.Provider) {
	case "msal":
		client, err := identity.NewMSAL(identity.MSALConfig{
			ClientID:              cfg.ClientID,
			Authority:             cfg.Authority,
			Scopes:                cfg.Scopes,
			RedirectURI:           cfg.RedirectURI,
			PostLogoutRedirectURI: cfg.PostLogoutRedirectURI,
		}, log)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "device":
		client, err := identity.NewDevice(identity.DeviceConfig{
			ClientID:      cfg.ClientID,
			DeviceAuthURL: cfg.DeviceAuthURL,
			TokenURL:      cfg.TokenURL,
			Scopes:        cfg.Scopes,
		}, codes.Show, log)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "static":
		acc := identity.Account{ID: cfg.StaticUser, Username: cfg.StaticUser}
		return identity.NewStatic(acc, cfg.StaticSignedIn), nil
	}
	return nil, &CommandError{
		Command: "identity", Action: "init",
		Reason: fmt.Sprintf("unknown provider %q", cfg.Provider),
		Code:   ExitConfigError,
	}
}

// =============================================================================
// DEVICE CODE ROUTING
// =============================================================================

// codeRouter delivers device sign-in codes to the running program, or to out
// before the program starts and after it exits.
type codeRouter struct {
	mu      sync.Mutex
	out     io.Writer
	program *tea.Program
}

func newCodeRouter(out io.Writer) *codeRouter {
	return &codeRouter{out: out}
}

// Attach routes later codes to p. A nil p routes them back to out.
func (r *codeRouter) Attach(p *tea.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.program = p
}

// Show implements identity.DevicePrompt.
func (r *codeRouter) Show(userCode, verificationURI string) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()

	if p != nil {
		p.Send(shell.DeviceCodeMsg{UserCode: userCode, VerificationURI: verificationURI})
		return
	}
	fmt.Fprintf(r.out, "To sign in, open %s and enter the code %s\n",
		verificationURI, TitleStyle.Render(userCode))
}
