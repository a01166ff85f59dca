package tweets

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/masa-finance/timeline-poller/internal/jitter"
	"github.com/masa-finance/timeline-poller/internal/stats"
	"github.com/masa-finance/timeline-poller/internal/store"
	"github.com/masa-finance/timeline-poller/internal/twitter"
)

// Favoriter likes a tweet on the platform and records it locally.
type Favoriter struct {
	executor *twitter.Executor
	store    store.Store
	mock     bool
	stats    *stats.StatsCollector
}

func NewFavoriter(executor *twitter.Executor, st store.Store, mock bool, collector *stats.StatsCollector) *Favoriter {
	return &Favoriter{executor: executor, store: st, mock: mock, stats: collector}
}

// Favorite is disabled in mock mode. The store is only touched after the
// platform confirmed the like.
func (f *Favoriter) Favorite(ctx context.Context, id string) error {
	if f.mock {
		logrus.Warnf("Favoriting tweet %s skipped: mock mode", id)
		return twitter.ErrMockDisabled
	}

	err := twitter.Do(ctx, f.executor, func(ctx context.Context, p twitter.Provider) error {
		return p.FavoriteTweet(ctx, id)
	})
	if err != nil {
		f.stats.Add(stats.FavoritesFailed, 1)
		return err
	}

	if err := f.store.MarkLiked(ctx, id); err != nil {
		return fmt.Errorf("favorited tweet %s but could not record it: %w", id, err)
	}
	f.stats.Add(stats.FavoritesSucceeded, 1)
	logrus.Infof("Favorited tweet %s", id)
	return nil
}

// FavoriteFunc is the action a dispatcher eventually runs.
type FavoriteFunc func(ctx context.Context, id string) error

// Dispatcher schedules a favorite of id after delay.
type Dispatcher interface {
	Dispatch(ctx context.Context, id string, delay time.Duration) error
}

// InlineDispatcher waits out the delay on the calling goroutine and then
// favorites.
type InlineDispatcher struct {
	Favorite FavoriteFunc
	Sleep    jitter.Sleeper
}

func (d InlineDispatcher) Dispatch(ctx context.Context, id string, delay time.Duration) error {
	sleep := d.Sleep
	if sleep == nil {
		sleep = jitter.Sleep
	}
	logrus.Debugf("Favoriting tweet %s in %v", id, delay)
	if err := sleep(ctx, delay); err != nil {
		return err
	}
	return d.Favorite(ctx, id)
}
