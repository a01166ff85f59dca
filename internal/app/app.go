// Package app wires the poller's components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/masa-finance/timeline-poller/api/types"
	"github.com/masa-finance/timeline-poller/internal/api"
	"github.com/masa-finance/timeline-poller/internal/cache"
	"github.com/masa-finance/timeline-poller/internal/config"
	"github.com/masa-finance/timeline-poller/internal/health"
	"github.com/masa-finance/timeline-poller/internal/queue"
	"github.com/masa-finance/timeline-poller/internal/scheduler"
	"github.com/masa-finance/timeline-poller/internal/stats"
	"github.com/masa-finance/timeline-poller/internal/store"
	"github.com/masa-finance/timeline-poller/internal/tweets"
	"github.com/masa-finance/timeline-poller/internal/twitter"
)

const shutdownTimeout = 15 * time.Second

type App struct {
	Config    config.Configuration
	Store     store.Store
	Stats     *stats.StatsCollector
	Health    *health.Tracker
	Verifier  *health.ComponentVerifier
	Session   *twitter.Session
	Service   *tweets.Service
	Scheduler *scheduler.Scheduler
	// Watcher is nil when no saved searches are configured.
	Watcher *scheduler.Watcher

	threads     *cache.ResultCache[string, types.Thread]
	queueClient *asynq.Client
	worker      *queue.Worker
	autostart   bool
}

// New builds every component. Nothing runs in the background until Run,
// except the stats collector and the thread cache janitor.
func New(ctx context.Context, cfg config.Configuration) (*App, error) {
	a := &App{Config: cfg}

	bufSize, err := cfg.GetInt("stats_buf_size", 128)
	if err != nil {
		logrus.WithError(err).Warn("Invalid stats_buf_size, using default")
	}
	a.Stats = stats.StartCollector(uint(bufSize))
	a.Health = health.NewTracker()
	a.Verifier = health.NewComponentVerifier(a.Health)

	sc := cfg.GetStoreConfig()
	a.Store, err = store.Open(ctx, sc.Driver, sc.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", sc.Driver, err)
	}
	a.Verifier.RegisterVerifier(health.ComponentStore, health.VerifierFunc(a.Store.Ping))

	mode, err := tweets.ParseMode(cfg.GetString("reconcile_mode", ""))
	if err != nil {
		a.Close()
		return nil, err
	}

	tc := cfg.GetTwitterConfig()
	provider, err := newProvider(tc)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Session = twitter.NewSession(provider, twitter.SessionConfig{
		Credentials:           twitter.Credentials{Username: tc.Username, Email: tc.Email, Password: tc.Password},
		CookieFile:            tc.CookieFile,
		SkipLoginVerification: tc.SkipLoginVerification,
		MockMode:              tc.MockMode,
	}, a.Health)
	executor := twitter.NewExecutor(a.Session, provider, a.Stats)
	favoriter := tweets.NewFavoriter(executor, a.Store, tc.MockMode, a.Stats)

	dispatcher, err := a.newDispatcher(cfg.GetQueueConfig(), favoriter)
	if err != nil {
		a.Close()
		return nil, err
	}

	reconciler := tweets.NewReconciler(a.Store, dispatcher,
		tweets.WithMode(mode),
		tweets.WithMockMode(tc.MockMode),
		tweets.WithStats(a.Stats),
	)

	maxSize, _ := cfg.GetInt("thread_cache_max_size", 1000)
	a.threads = cache.NewResultCache[string, types.Thread](maxSize, cfg.GetDuration("thread_cache_max_age_seconds", 600))

	a.Service = tweets.NewService(tweets.ServiceConfig{
		Executor:   executor,
		Reconciler: reconciler,
		Favoriter:  favoriter,
		Store:      a.Store,
		Threads:    a.threads,
		MockMode:   tc.MockMode,
		Stats:      a.Stats,
	})

	schedCfg := cfg.GetSchedulerConfig()
	a.autostart = schedCfg.Autostart
	a.Scheduler = scheduler.New(scheduler.Config{
		Auth:          a.Session,
		Fetcher:       a.Service,
		Health:        a.Health,
		Stats:         a.Stats,
		MinimumTweets: schedCfg.MinimumTweets,
	})

	a.Watcher, err = scheduler.NewWatcher(a.Service, scheduler.WatcherConfig{
		Queries:       schedCfg.WatchQueries,
		Schedule:      schedCfg.WatchSchedule,
		MinimumTweets: schedCfg.MinimumTweets,
	}, a.Stats)
	if err != nil {
		a.Close()
		return nil, err
	}

	if tc.MockMode {
		logrus.Warn("Twitter mock mode is on: fixtures are served and write actions are disabled")
	}
	return a, nil
}

func newProvider(tc config.TwitterConfig) (twitter.Provider, error) {
	if tc.MockMode {
		return twitter.NewFixtureProvider()
	}
	creds := twitter.Credentials{Username: tc.Username, Email: tc.Email, Password: tc.Password}
	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("twitter credentials: %w", err)
	}
	return twitter.NewScraperProvider(), nil
}

// newDispatcher queues favorites in Redis when a URI is configured and runs
// them inline otherwise.
func (a *App) newDispatcher(qc config.QueueConfig, favoriter *tweets.Favoriter) (tweets.Dispatcher, error) {
	if qc.RedisURI == "" {
		return tweets.InlineDispatcher{Favorite: favoriter.Favorite}, nil
	}
	redisOpt, err := queue.ParseRedis(qc.RedisURI)
	if err != nil {
		return nil, err
	}
	a.queueClient = asynq.NewClient(redisOpt)
	a.worker = queue.NewWorker(redisOpt, queue.NewHandler(favoriter.Favorite), qc.Concurrency)
	return queue.NewAsynqDispatcher(a.queueClient), nil
}

func (a *App) Dependencies() api.Dependencies {
	return api.Dependencies{
		Service:   a.Service,
		Scheduler: a.Scheduler,
		Health:    a.Health,
		Verifier:  a.Verifier,
		Stats:     a.Stats,
	}
}

// Run starts the background components and serves the API until ctx is
// done. Components are stopped before it returns.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	if a.worker != nil {
		if err := a.worker.Start(); err != nil {
			a.Health.UpdateStatus(health.ComponentQueue, false, err)
			return fmt.Errorf("start favorite queue worker: %w", err)
		}
		a.Health.UpdateStatus(health.ComponentQueue, true, nil)
	}
	if a.Watcher != nil {
		a.Watcher.Start()
	}
	if a.autostart {
		a.Scheduler.Start(0)
	}

	return api.Start(ctx, a.Config, a.Dependencies())
}

// Close stops everything New and Run started. It is safe to call on a
// partially built App and more than once.
func (a *App) Close() error {
	if a.Scheduler != nil && a.Scheduler.Stop() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.Scheduler.Wait(ctx); err != nil {
			logrus.WithError(err).Warn("Scheduler did not stop in time")
		}
		cancel()
	}
	if a.Watcher != nil {
		a.Watcher.Stop()
		a.Watcher = nil
	}
	if a.worker != nil {
		a.worker.Shutdown()
		a.worker = nil
	}

	var errs []error
	if a.queueClient != nil {
		errs = append(errs, a.queueClient.Close())
		a.queueClient = nil
	}
	if a.threads != nil {
		a.threads.Close()
		a.threads = nil
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
		a.Store = nil
	}
	return errors.Join(errs...)
}
