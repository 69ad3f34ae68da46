package main

import (
	"fmt"
	"time"

	maidcommand "github.com/slack-lackey/maid-server/command"
	"github.com/spf13/cobra"
)

func newTenantsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "Manage installed workspaces",
	}
	cmd.AddCommand(newTenantsAddCommand(), newTenantsShowCommand())
	return cmd
}

func newTenantsAddCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <team-id> <bot-token>",
		Short: "Install or replace a workspace bot token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			teamName, _ := cmd.Flags().GetString("team-name")
			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			result, err := a.Tenants.InstallTenant(cmd.Context(), maidcommand.InstallTenantMessage{
				TenantID:    args[0],
				TeamName:    teamName,
				AccessToken: args[1],
				Source:      "cli",
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %s at %s\n", result.TenantID, result.InstalledAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().String("team-name", "", "Workspace display name")
	return cmd
}

func newTenantsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <team-id>",
		Short: "Show the stored credential for a workspace with the token masked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			view, err := a.Tenants.TenantCredential(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tenant: %s\ntoken:  %s\nupdated: %s\n",
				view.TenantID, view.TokenHint, view.UpdatedAt.Format(time.RFC3339))
			return nil
		},
	}
}
