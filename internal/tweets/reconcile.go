package tweets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/masa-finance/timeline-poller/api/types"
	"github.com/masa-finance/timeline-poller/internal/jitter"
	"github.com/masa-finance/timeline-poller/internal/stats"
	"github.com/masa-finance/timeline-poller/internal/store"
	"github.com/masa-finance/timeline-poller/internal/twitter"
)

// Mode selects how a batch is split into inserts and updates.
type Mode string

const (
	// ModePartition checks existence first, then bulk inserts new posts and
	// updates known ones one by one.
	ModePartition Mode = "partition"
	// ModeProcedure hands the whole batch to Store.UpsertBatch.
	ModeProcedure Mode = "procedure"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModePartition:
		return ModePartition, nil
	case ModeProcedure:
		return ModeProcedure, nil
	}
	return "", fmt.Errorf("unknown reconcile mode %q", s)
}

var DefaultFavoriteDelay = jitter.Range{Min: 25 * time.Second, Max: 35 * time.Second}

// ReconcileResult describes what a successful reconciliation wrote.
type ReconcileResult struct {
	Inserted           []string `json:"inserted"`
	Updated            []string `json:"updated"`
	FavoriteCandidate  string   `json:"favorite_candidate,omitempty"`
	FavoriteDispatched bool     `json:"favorite_dispatched"`
}

// Reconciler persists fetched batches and runs the auto-favorite gate on
// newly seen posts.
type Reconciler struct {
	store         store.Store
	dispatcher    Dispatcher
	mode          Mode
	mock          bool
	rng           jitter.Source
	now           func() time.Time
	favoriteDelay jitter.Range
	stats         *stats.StatsCollector
}

type ReconcilerOption func(*Reconciler)

func WithMode(m Mode) ReconcilerOption {
	return func(r *Reconciler) { r.mode = m }
}

func WithMockMode(mock bool) ReconcilerOption {
	return func(r *Reconciler) { r.mock = mock }
}

func WithRand(src jitter.Source) ReconcilerOption {
	return func(r *Reconciler) { r.rng = src }
}

func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

func WithFavoriteDelay(d jitter.Range) ReconcilerOption {
	return func(r *Reconciler) { r.favoriteDelay = d }
}

func WithStats(collector *stats.StatsCollector) ReconcilerOption {
	return func(r *Reconciler) { r.stats = collector }
}

func NewReconciler(st store.Store, dispatcher Dispatcher, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:         st,
		dispatcher:    dispatcher,
		mode:          ModePartition,
		rng:           jitter.Default,
		now:           time.Now,
		favoriteDelay: DefaultFavoriteDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile writes posts to the store. An empty batch returns (nil, nil)
// without touching the store. Store failures are logged and also yield
// (nil, nil); only cancellation is returned as an error.
func (r *Reconciler) Reconcile(ctx context.Context, posts []types.Post) (*ReconcileResult, error) {
	if len(posts) == 0 {
		return nil, nil
	}
	posts = dedupe(posts)

	var (
		res *ReconcileResult
		err error
	)
	switch r.mode {
	case ModeProcedure:
		res, err = r.reconcileProcedure(ctx, posts)
	default:
		res, err = r.reconcilePartition(ctx, posts)
	}
	if err != nil {
		if twitter.IsCancellation(err) || ctx.Err() != nil {
			return nil, cancellation(ctx, err)
		}
		r.stats.Add(stats.ReconcileFailures, 1)
		logrus.WithError(err).Error("Reconciliation failed")
		return nil, nil
	}

	r.stats.Add(stats.TweetsInserted, uint(len(res.Inserted)))
	r.stats.Add(stats.TweetsUpdated, uint(len(res.Updated)))
	logrus.WithFields(logrus.Fields{
		"inserted": len(res.Inserted),
		"updated":  len(res.Updated),
		"favorite": res.FavoriteCandidate,
	}).Info("Reconciled tweets")
	return res, nil
}

func (r *Reconciler) reconcilePartition(ctx context.Context, posts []types.Post) (*ReconcileResult, error) {
	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	existing, err := r.store.SelectExisting(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("select existing: %w", err)
	}

	now := r.now()
	var inserts, updates []types.Post
	for _, p := range posts {
		if _, ok := existing[p.ID]; ok {
			updates = append(updates, p)
			continue
		}
		p.FirstSeenAt = now
		p.UpdatedAt = nil
		p.IsLiked = false
		inserts = append(inserts, p)
	}

	res := &ReconcileResult{Inserted: []string{}, Updated: []string{}}
	if len(inserts) > 0 {
		if err := r.store.BulkInsert(ctx, inserts); err != nil {
			return nil, fmt.Errorf("bulk insert: %w", err)
		}
		for _, p := range inserts {
			res.Inserted = append(res.Inserted, p.ID)
		}
		if err := r.autoFavorite(ctx, inserts, res); err != nil {
			return nil, err
		}
	}

	for _, p := range updates {
		if err := r.store.Update(ctx, p.ID, types.UpdateOf(p, r.now())); err != nil {
			return nil, fmt.Errorf("update %s: %w", p.ID, err)
		}
		res.Updated = append(res.Updated, p.ID)
	}
	return res, nil
}

func (r *Reconciler) reconcileProcedure(ctx context.Context, posts []types.Post) (*ReconcileResult, error) {
	rows, err := r.store.UpsertBatch(ctx, posts, r.now())
	if err != nil {
		return nil, fmt.Errorf("upsert batch: %w", err)
	}

	isNew := make(map[string]bool, len(rows))
	for _, row := range rows {
		isNew[row.ID] = row.IsNew
	}

	res := &ReconcileResult{Inserted: []string{}, Updated: []string{}}
	var inserts []types.Post
	for _, p := range posts {
		if isNew[p.ID] {
			inserts = append(inserts, p)
			res.Inserted = append(res.Inserted, p.ID)
		} else {
			res.Updated = append(res.Updated, p.ID)
		}
	}
	if len(inserts) > 0 {
		if err := r.autoFavorite(ctx, inserts, res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// autoFavorite picks the most favorited new post and, one time in three,
// dispatches a like after a jittered delay. Mock mode always admits and
// skips the delay since the action is disabled there. Only cancellation is
// returned.
func (r *Reconciler) autoFavorite(ctx context.Context, inserts []types.Post, res *ReconcileResult) error {
	candidate := inserts[0]
	for _, p := range inserts[1:] {
		if p.FavoriteCount > candidate.FavoriteCount {
			candidate = p
		}
	}
	res.FavoriteCandidate = candidate.ID

	if r.dispatcher == nil {
		return nil
	}

	var delay time.Duration
	if !r.mock {
		if roll := jitter.IntBetween(r.rng, 1, 3); roll != 1 {
			logrus.Debugf("Auto-favorite gate closed for tweet %s (roll %d)", candidate.ID, roll)
			return nil
		}
		delay = r.favoriteDelay.Draw(r.rng)
	}

	r.stats.Add(stats.FavoritesQueued, 1)
	if err := r.dispatcher.Dispatch(ctx, candidate.ID, delay); err != nil {
		if twitter.IsCancellation(err) || ctx.Err() != nil {
			return cancellation(ctx, err)
		}
		logrus.WithError(err).Warnf("Auto-favorite of tweet %s failed", candidate.ID)
		return nil
	}
	res.FavoriteDispatched = true
	return nil
}

func dedupe(posts []types.Post) []types.Post {
	seen := make(map[string]struct{}, len(posts))
	out := make([]types.Post, 0, len(posts))
	for _, p := range posts {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

func cancellation(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
