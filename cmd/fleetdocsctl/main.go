// Command fleetdocsctl runs operator tasks against the document pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fleetdocs-backend/internal/bootstrap"
	"fleetdocs-backend/internal/shared/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type cli struct {
	cfg config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "fleetdocsctl",
		Short: "Operator tooling for the fleet document pipeline",
		Long: `fleetdocsctl runs maintenance tasks outside the API process.

Configuration is read from the environment and .env files, as for the API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c.cfg = config.Load()
			return nil
		},
	}

	root.AddCommand(
		c.newReprocessCmd(),
		c.newExtractCmd(),
		c.newSweepCmd(),
		c.newMigrateCmd(),
		c.newWorkerCmd(),
		c.newTelegramPollCmd(),
	)
	return root
}

func (c *cli) buildApp(ctx context.Context) (*bootstrap.App, error) {
	app, err := bootstrap.BuildWith(ctx, c.cfg, bootstrap.Options{})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return app, nil
}
