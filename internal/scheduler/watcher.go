package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/masa-finance/timeline-poller/api/types"
	"github.com/masa-finance/timeline-poller/internal/stats"
)

// Searcher fetches and reconciles the results of one search query.
type Searcher interface {
	Search(ctx context.Context, query string, minimum int) ([]types.Post, error)
}

type WatcherConfig struct {
	Queries  []string
	Schedule string
	// MinimumTweets per query, defaults to types.DefaultMinimumTweets.
	MinimumTweets int
	// Timeout bounds one run over all queries.
	Timeout time.Duration
}

// Watcher periodically runs saved searches so their results land in the
// store alongside the timelines.
type Watcher struct {
	searcher Searcher
	cfg      WatcherConfig
	stats    *stats.StatsCollector
	cron     *cron.Cron
	entry    cron.EntryID

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWatcher returns nil and no error when there is nothing to watch.
func NewWatcher(searcher Searcher, cfg WatcherConfig, collector *stats.StatsCollector) (*Watcher, error) {
	if len(cfg.Queries) == 0 {
		return nil, nil
	}
	if searcher == nil {
		return nil, errors.New("watcher needs a searcher")
	}
	if cfg.MinimumTweets <= 0 {
		cfg.MinimumTweets = types.DefaultMinimumTweets
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	queries := make([]string, 0, len(cfg.Queries))
	for _, q := range cfg.Queries {
		if !slices.Contains(queries, q) {
			queries = append(queries, q)
		}
	}
	cfg.Queries = queries

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		searcher: searcher,
		cfg:      cfg,
		stats:    collector,
		ctx:      ctx,
		cancel:   cancel,
	}

	w.cron = cron.New(cron.WithChain(
		cron.Recover(cron.PrintfLogger(logrus.StandardLogger())),
		cron.SkipIfStillRunning(cron.PrintfLogger(logrus.StandardLogger())),
	))
	entry, err := w.cron.AddFunc(cfg.Schedule, w.tick)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("invalid search watch schedule %q: %w", cfg.Schedule, err)
	}
	w.entry = entry

	logrus.Infof("Watching %d search queries (schedule: %s)", len(cfg.Queries), cfg.Schedule)
	return w, nil
}

func (w *Watcher) Start() {
	w.cron.Start()
}

// Stop cancels a running pass and waits for it to return.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.cron.Stop().Done()
}

// Next reports when the next pass is due. It is zero before Start.
func (w *Watcher) Next() time.Time {
	return w.cron.Entry(w.entry).Next
}

func (w *Watcher) tick() {
	ctx, cancel := context.WithTimeout(w.ctx, w.cfg.Timeout)
	defer cancel()

	start := time.Now()
	if err := w.RunOnce(ctx); err != nil {
		logrus.WithError(err).Error("Search watch run failed")
		return
	}
	logrus.Infof("Search watch run completed in %v", time.Since(start))
}

// RunOnce searches every query in order. A failing query is logged and
// the rest still run; the joined error reports all failures.
func (w *Watcher) RunOnce(ctx context.Context) error {
	var errs []error
	for _, q := range w.cfg.Queries {
		if err := ctx.Err(); err != nil {
			return err
		}
		posts, err := w.searcher.Search(ctx, q, w.cfg.MinimumTweets)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			logrus.WithError(err).WithField("query", q).Warn("Saved search failed")
			errs = append(errs, fmt.Errorf("%s: %w", q, err))
			continue
		}
		logrus.WithField("query", q).Debugf("Saved search returned %d tweets", len(posts))
	}
	w.stats.Add(stats.SearchWatchRuns, 1)
	return errors.Join(errs...)
}
