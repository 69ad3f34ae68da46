package main

import (
	"context"
	"time"

	"github.com/slack-lackey/maid-server/app"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the webhook and install endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")
			a, err := newApp(cmd, migrate)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), closeTimeout(a))
				defer cancel()
				_ = a.Close(closeCtx)
			}()
			return a.Run(cmd.Context())
		},
	}
	cmd.Flags().Bool("migrate", true, "Apply pending database migrations before serving")
	return cmd
}

func newApp(cmd *cobra.Command, migrate bool) (*app.App, error) {
	path, _ := cmd.Flags().GetString("config")
	return app.New(cmd.Context(), app.Options{ConfigPath: path, AutoMigrate: migrate})
}

// closeTimeout bounds the release of resources after the server has stopped.
func closeTimeout(a *app.App) time.Duration {
	if timeout := a.Config.Server.ShutdownTimeout; timeout > 0 {
		return timeout
	}
	return 30 * time.Second
}
