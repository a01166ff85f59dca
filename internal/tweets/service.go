package tweets

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/masa-finance/timeline-poller/api/types"
	"github.com/masa-finance/timeline-poller/internal/cache"
	"github.com/masa-finance/timeline-poller/internal/jitter"
	"github.com/masa-finance/timeline-poller/internal/stats"
	"github.com/masa-finance/timeline-poller/internal/store"
	"github.com/masa-finance/timeline-poller/internal/twitter"
)

var DefaultPageDelay = jitter.Range{Min: 5 * time.Second, Max: 10 * time.Second}

const (
	maxRecent     = 200
	maxReplyPages = 5
)

// ServiceConfig wires a Service. Zero values of the optional fields fall
// back to production defaults.
type ServiceConfig struct {
	Executor   *twitter.Executor
	Reconciler *Reconciler
	Favoriter  *Favoriter
	Store      store.Store
	Threads    *cache.ResultCache[string, types.Thread]
	MockMode   bool
	Stats      *stats.StatsCollector

	Rand      jitter.Source
	Sleep     jitter.Sleeper
	PageDelay jitter.Range
}

// Service fetches tweets from the platform, normalizes them and hands them
// to the reconciler.
type Service struct {
	executor   *twitter.Executor
	reconciler *Reconciler
	favoriter  *Favoriter
	store      store.Store
	threads    *cache.ResultCache[string, types.Thread]
	mock       bool
	stats      *stats.StatsCollector
	rng        jitter.Source
	sleep      jitter.Sleeper
	pageDelay  jitter.Range
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		executor:   cfg.Executor,
		reconciler: cfg.Reconciler,
		favoriter:  cfg.Favoriter,
		store:      cfg.Store,
		threads:    cfg.Threads,
		mock:       cfg.MockMode,
		stats:      cfg.Stats,
		rng:        cfg.Rand,
		sleep:      cfg.Sleep,
		pageDelay:  cfg.PageDelay,
	}
	if s.rng == nil {
		s.rng = jitter.Default
	}
	if s.sleep == nil {
		s.sleep = jitter.Sleep
	}
	if s.pageDelay == (jitter.Range{}) {
		s.pageDelay = DefaultPageDelay
	}
	return s
}

func (s *Service) MockMode() bool { return s.mock }

// Session exposes the shared platform session, used by the scheduler.
func (s *Service) Session() *twitter.Session { return s.executor.Session() }

type pageFetcher func(ctx context.Context, p twitter.Provider, count int, cursor string) (twitter.Page, error)

// Search returns up to minimum latest tweets matching query and reconciles
// them.
func (s *Service) Search(ctx context.Context, query string, minimum int) ([]types.Post, error) {
	if strings.TrimSpace(query) == "" {
		return nil, twitter.NewClientError("query is required")
	}
	logrus.Infof("Searching tweets for %q (minimum %d)", query, minimum)
	return s.fetchAndReconcile(ctx, "search", minimum, func(ctx context.Context, p twitter.Provider, count int, cursor string) (twitter.Page, error) {
		return p.SearchTweets(ctx, query, count, cursor)
	})
}

// FollowingTimeline fetches the chronological timeline of followed accounts.
func (s *Service) FollowingTimeline(ctx context.Context, minimum int) ([]types.Post, error) {
	return s.fetchAndReconcile(ctx, "following", minimum, func(ctx context.Context, p twitter.Provider, count int, cursor string) (twitter.Page, error) {
		return p.FollowingTimeline(ctx, count, cursor)
	})
}

// RecommendedTimeline fetches the platform's recommended timeline.
func (s *Service) RecommendedTimeline(ctx context.Context, minimum int) ([]types.Post, error) {
	return s.fetchAndReconcile(ctx, "recommended", minimum, func(ctx context.Context, p twitter.Provider, count int, cursor string) (twitter.Page, error) {
		return p.RecommendedTimeline(ctx, count, cursor)
	})
}

func (s *Service) fetchAndReconcile(ctx context.Context, source string, minimum int, fetch pageFetcher) ([]types.Post, error) {
	posts, err := s.collect(ctx, source, minimum, fetch)
	if err != nil {
		return nil, err
	}
	if _, err := s.reconciler.Reconcile(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// collect pages through a listing until minimum posts were gathered or the
// listing runs dry. Later pages are requested after a jittered pause.
func (s *Service) collect(ctx context.Context, source string, minimum int, fetch pageFetcher) ([]types.Post, error) {
	if minimum <= 0 {
		minimum = types.DefaultMinimumTweets
	}

	posts := make([]types.Post, 0, minimum)
	cursor := ""
	for page := 0; len(posts) < minimum; page++ {
		if page > 0 {
			if cursor == "" {
				break
			}
			delay := s.pageDelay.Draw(s.rng)
			logrus.Debugf("Fetching next %s page after %v", source, delay)
			if err := s.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		remaining := minimum - len(posts)
		current := cursor
		result, err := twitter.Execute(ctx, s.executor, func(ctx context.Context, p twitter.Provider) (twitter.Page, error) {
			return fetch(ctx, p, remaining, current)
		})
		if err != nil {
			return nil, err
		}
		if len(result.Posts) == 0 {
			break
		}

		normalized, skipped := NormalizeAll(result.Posts)
		s.stats.Add(stats.TweetsFetched, uint(len(result.Posts)))
		s.stats.Add(stats.TweetsSkipped, uint(skipped))
		posts = append(posts, normalized...)
		if result.NextCursor == current {
			break
		}
		cursor = result.NextCursor
	}

	if len(posts) > minimum {
		posts = posts[:minimum]
	}
	logrus.Infof("Fetched %d %s tweets", len(posts), source)
	return posts, nil
}

// Thread returns a tweet together with its direct replies. Results are
// cached when a cache is configured.
func (s *Service) Thread(ctx context.Context, id string) (types.Thread, error) {
	if s.threads != nil {
		if t, ok := s.threads.Get(id); ok {
			return t, nil
		}
	}

	raw, err := twitter.Execute(ctx, s.executor, func(ctx context.Context, p twitter.Provider) (twitter.RawPost, error) {
		return p.GetTweet(ctx, id)
	})
	if err != nil {
		return types.Thread{}, err
	}
	main, err := NormalizeDetails(raw)
	if err != nil {
		return types.Thread{}, twitter.NewClientError(err.Error())
	}

	thread := types.Thread{MainTweet: main, Replies: []types.PostDetails{}}
	cursor := ""
	for page := 1; ; page++ {
		current := cursor
		result, err := twitter.Execute(ctx, s.executor, func(ctx context.Context, p twitter.Provider) (twitter.Page, error) {
			return p.GetTweetReplies(ctx, id, current)
		})
		if err != nil {
			return types.Thread{}, err
		}
		for _, r := range result.Posts {
			if r.PostID() == id {
				continue
			}
			d, err := NormalizeDetails(r)
			if err != nil {
				logrus.WithError(err).Warn("Skipping reply")
				continue
			}
			thread.Replies = append(thread.Replies, d)
		}
		if page >= maxReplyPages || result.NextCursor == "" || result.NextCursor == cursor || len(result.Posts) == 0 {
			break
		}
		cursor = result.NextCursor
		if err := s.sleep(ctx, s.pageDelay.Draw(s.rng)); err != nil {
			return types.Thread{}, err
		}
	}

	if s.threads != nil {
		s.threads.Set(id, thread)
	}
	return thread, nil
}

// CreatePost publishes text, optionally as a reply.
func (s *Service) CreatePost(ctx context.Context, text, replyTo string) (types.PostDetails, error) {
	if s.mock {
		return types.PostDetails{}, twitter.ErrMockDisabled
	}
	if strings.TrimSpace(text) == "" {
		return types.PostDetails{}, twitter.NewClientError("text is required")
	}

	raw, err := twitter.Execute(ctx, s.executor, func(ctx context.Context, p twitter.Provider) (twitter.RawPost, error) {
		return p.CreateTweet(ctx, text, replyTo)
	})
	if err != nil {
		return types.PostDetails{}, err
	}
	details, err := NormalizeDetails(raw)
	if err != nil {
		return types.PostDetails{}, twitter.NewClientError(err.Error())
	}
	if replyTo != "" && s.threads != nil {
		s.threads.Delete(replyTo)
	}
	logrus.Infof("Created tweet %s", details.ID)
	return details, nil
}

// ProcessNotification resolves the tweet a notification refers to. In mock
// mode it only acknowledges.
func (s *Service) ProcessNotification(ctx context.Context, n types.NotificationPayload) (types.NotificationResponse, error) {
	if n.ID == "" {
		return types.NotificationResponse{}, twitter.NewClientError("notification id is required")
	}
	logrus.Infof("Received notification for tweet %s", n.ID)

	if s.mock {
		return types.NotificationResponse{
			Status:  "success",
			Message: "Mock mode - skipping Twitter API call",
			TweetID: n.ID,
		}, nil
	}

	raw, err := twitter.Execute(ctx, s.executor, func(ctx context.Context, p twitter.Provider) (twitter.RawPost, error) {
		return p.GetTweet(ctx, n.ID)
	})
	if err != nil {
		return types.NotificationResponse{}, err
	}
	details, err := NormalizeDetails(raw)
	if err != nil {
		return types.NotificationResponse{}, twitter.NewClientError(err.Error())
	}
	return types.NotificationResponse{
		Status:       "success",
		Message:      "Notification processed successfully",
		TweetID:      n.ID,
		TweetDetails: &details,
	}, nil
}

// Favorite likes id right away.
func (s *Service) Favorite(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return twitter.NewClientError("tweet id is required")
	}
	return s.favoriter.Favorite(ctx, id)
}

// Get reads a stored tweet.
func (s *Service) Get(ctx context.Context, id string) (types.Post, error) {
	return s.store.Get(ctx, id)
}

// Recent lists the most recently discovered stored tweets.
func (s *Service) Recent(ctx context.Context, limit int) ([]types.Post, error) {
	if limit <= 0 {
		limit = types.DefaultMinimumTweets
	}
	if limit > maxRecent {
		limit = maxRecent
	}
	return s.store.Recent(ctx, limit)
}

// IsNotFound reports whether err means the tweet does not exist locally.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}
