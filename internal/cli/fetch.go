package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/masa-finance/timeline-poller/api/types"
	"github.com/masa-finance/timeline-poller/internal/app"
	"github.com/masa-finance/timeline-poller/internal/config"
)

var (
	fetchTimeline string
	fetchQuery    string
	fetchMinimum  int
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch and reconcile one batch, then exit",
	Long:  "fetch runs a single timeline or search fetch through the same reconcile path the scheduler uses and prints the batch as JSON.",
	RunE:  fetchAction,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchTimeline, "timeline", "following", "timeline to fetch: following or recommended")
	fetchCmd.Flags().StringVar(&fetchQuery, "query", "", "search query; overrides --timeline")
	fetchCmd.Flags().IntVar(&fetchMinimum, "minimum", types.DefaultMinimumTweets, "number of tweets to gather")
}

func fetchAction(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, config.ReadConfig())
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer func() { _ = a.Close() }()

	var posts []types.Post
	switch {
	case fetchQuery != "":
		posts, err = a.Service.Search(ctx, fetchQuery, fetchMinimum)
	case fetchTimeline == "following":
		posts, err = a.Service.FollowingTimeline(ctx, fetchMinimum)
	case fetchTimeline == "recommended":
		posts, err = a.Service.RecommendedTimeline(ctx, fetchMinimum)
	default:
		return fmt.Errorf("unknown timeline %q", fetchTimeline)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(types.PostsResponse{Count: len(posts), Posts: posts})
}
