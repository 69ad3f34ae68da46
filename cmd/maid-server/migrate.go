package main

import (
	"fmt"

	"github.com/slack-lackey/maid-server/app"
	"github.com/slack-lackey/maid-server/migrations"
	sqlstore "github.com/slack-lackey/maid-server/store/sql"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations to the configured database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := app.LoadConfig(cmd.Context(), path)
			if err != nil {
				return err
			}
			dialect, err := migrations.DialectFor(cfg.Persistence.Driver)
			if err != nil {
				return err
			}
			client, err := sqlstore.OpenClient(sqlstore.ClientConfig{Persistence: cfg.Persistence, ServiceName: cfg.ServiceName})
			if err != nil {
				return err
			}
			defer client.Close()
			if err := app.Migrate(cmd.Context(), client, dialect); err != nil {
				return err
			}
			versions, err := migrations.Versions(dialect)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "migrations applied (%s)\n", dialect)
			for _, version := range versions {
				fmt.Fprintf(out, "  %s\n", version)
			}
			return nil
		},
	}
}
