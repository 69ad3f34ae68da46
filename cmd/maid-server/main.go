// Command maid-server serves the Slack events, interactions and install
// endpoints, and manages the tenant credential store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "maid-server",
		Short:         "Save Slack code snippets as gists",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().String("config", "config.yaml", "YAML config file; MAID_* environment variables override it")
	cmd.AddCommand(newServeCommand(), newMigrateCommand(), newTenantsCommand())
	return cmd
}
