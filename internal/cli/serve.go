package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/masa-finance/timeline-poller/internal/app"
	"github.com/masa-finance/timeline-poller/internal/config"
	"github.com/masa-finance/timeline-poller/internal/versioning"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run the background scheduler",
	RunE:  serveAction,
}

func serveAction(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.ReadConfig()
	logrus.Infof("Starting timeline-poller %s", versioning.Version())

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	return a.Run(ctx)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
