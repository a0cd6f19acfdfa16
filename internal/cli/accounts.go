// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/sessionkeep/internal/identity"
	"github.com/jeranaias/sessionkeep/internal/logging"
)

type accountInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func newAccountsCmd(g *globals) *cobra.Command {
	var login bool
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List accounts with cached credentials",
		Long: "List the accounts the configured identity provider holds credentials for.\n" +
			"Providers with an in-memory token cache only know accounts signed in by this\n" +
			"process, so --login signs in first.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := g.loadConfig()
			if err != nil {
				return err
			}
			log, closer, err := logging.New(cfg.Logger())
			if err != nil {
				return err
			}
			defer closer.Close()

			client, err := newIdentityClient(cfg.Identity, newCodeRouter(cmd.ErrOrStderr()), log)
			if err != nil {
				return err
			}
			if login {
				if err := RequiresTTY("sign in"); err != nil {
					return err
				}
				if _, err := client.LoginInteractive(cmd.Context()); err != nil {
					return NewCommandError("accounts", "login", "sign-in failed", err)
				}
			}

			accounts, err := client.ListAccounts(cmd.Context())
			if err != nil {
				return NewCommandError("accounts", "list", "provider", err)
			}
			if g.jsonOutput {
				return NewJSONResponse("accounts", toAccountInfo(accounts)).Write(cmd.OutOrStdout())
			}

			out := cmd.OutOrStdout()
			if len(accounts) == 0 {
				fmt.Fprintln(out, DimStyle.Render("No signed-in accounts."))
				return nil
			}
			fmt.Fprintln(out, TitleStyle.Render(fmt.Sprintf("Accounts (%s)", cfg.Identity.Provider)))
			fmt.Fprintln(out, RenderSeparator())
			for _, acc := range accounts {
				fmt.Fprintln(out, RenderField(acc.String(), acc.ID))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&login, "login", false, "sign in before listing")
	return cmd
}

func toAccountInfo(accounts []identity.Account) []accountInfo {
	out := make([]accountInfo, 0, len(accounts))
	for _, acc := range accounts {
		out = append(out, accountInfo{ID: acc.ID, Username: acc.Username})
	}
	return out
}
