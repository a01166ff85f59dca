// Package cli provides the command-line interface for timeline-poller.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/masa-finance/timeline-poller/internal/versioning"
)

var rootCmd = &cobra.Command{
	Use:   "timeline-poller",
	Short: "Poll social timelines into a local tweet store",
	Long:  "timeline-poller keeps a session with the platform, fetches the following and recommended timelines on a jittered schedule, and reconciles every batch into a SQL store.",
	// Running the binary without a subcommand serves the API.
	RunE:          serveAction,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "timeline-poller %s\n", versioning.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(fetchCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
