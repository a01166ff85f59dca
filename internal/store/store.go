package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/masa-finance/timeline-poller/api/types"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var ErrNotFound = errors.New("tweet not found")

// UpsertResult reports, per row, whether an UpsertBatch call inserted it.
type UpsertResult struct {
	ID    string
	IsNew bool
}

// Store persists normalized posts keyed by tweet ID.
type Store interface {
	// SelectExisting returns the subset of ids already stored.
	SelectExisting(ctx context.Context, ids []string) (map[string]struct{}, error)
	// BulkInsert writes posts in a single statement. Rows whose ID already
	// exists are left untouched.
	BulkInsert(ctx context.Context, posts []types.Post) error
	// Update rewrites the mutable fields of one stored post.
	Update(ctx context.Context, id string, u types.PostUpdate) error
	// MarkLiked flags a stored post as favorited. Unknown IDs are ignored.
	MarkLiked(ctx context.Context, id string) error
	// UpsertBatch inserts or updates posts in one round trip.
	UpsertBatch(ctx context.Context, posts []types.Post, now time.Time) ([]UpsertResult, error)
	Get(ctx context.Context, id string) (types.Post, error)
	// Recent returns up to limit posts, newest first_seen_at first.
	Recent(ctx context.Context, limit int) ([]types.Post, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the store selected by driver. An empty driver means
// sqlite.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		return OpenSQLite(ctx, dsn)
	case DriverPostgres, "postgresql":
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// maxBatchRows bounds the rows one statement binds, keeping bulk writes
// under the drivers' bound-parameter limits.
const maxBatchRows = 500

func batches[T any](items []T, size int) [][]T {
	out := make([][]T, 0, (len(items)+size-1)/size)
	for len(items) > size {
		out = append(out, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

func photoURLs(urls []string) []string {
	if urls == nil {
		return []string{}
	}
	return urls
}
