package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/masa-finance/timeline-poller/api/types"
)

//go:embed schema_postgres.sql
var postgresSchema string

// Postgres is the production Store. Batch upserts run server side through
// the upsert_tweets function.
type Postgres struct {
	db *sql.DB
}

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logrus.Info("Connected to postgres store")
	return &Postgres{db: db}, nil
}

func (s *Postgres) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Postgres) SelectExisting(ctx context.Context, ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(ids) == 0 {
		return existing, nil
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id FROM tweets WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("select existing: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate existing: %w", err)
	}
	return existing, nil
}

func (s *Postgres) BulkInsert(ctx context.Context, posts []types.Post) error {
	if len(posts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk insert: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, batch := range batches(posts, maxBatchRows) {
		query, args := postgresInsert(batch)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("bulk insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk insert: %w", err)
	}
	return nil
}

func postgresInsert(posts []types.Post) (string, []any) {
	const columns = 13
	values := make([]string, 0, len(posts))
	args := make([]any, 0, len(posts)*columns)
	for i, p := range posts {
		ph := make([]string, columns)
		for c := range ph {
			ph[c] = "$" + strconv.Itoa(i*columns+c+1)
		}
		values = append(values, "("+strings.Join(ph, ", ")+")")
		args = append(args,
			p.ID,
			p.AuthorName,
			p.AuthorHandle,
			p.Text,
			p.CreatedAt,
			p.RetweetCount,
			p.FavoriteCount,
			pq.Array(photoURLs(p.PhotoURLs)),
			p.Lang,
			p.ViewCount,
			p.FirstSeenAt,
			p.UpdatedAt,
			p.IsLiked,
		)
	}

	return `
		INSERT INTO tweets (
			id, author_name, author_handle, text, created_at, retweet_count,
			favorite_count, photo_urls, lang, view_count, first_seen_at, updated_at, is_liked
		) VALUES ` + strings.Join(values, ", ") + `
		ON CONFLICT (id) DO NOTHING`, args
}

func (s *Postgres) Update(ctx context.Context, id string, u types.PostUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tweets SET
			text = $1,
			retweet_count = $2,
			favorite_count = $3,
			photo_urls = $4,
			lang = $5,
			view_count = $6,
			updated_at = $7
		WHERE id = $8
	`, u.Text, u.RetweetCount, u.FavoriteCount, pq.Array(photoURLs(u.PhotoURLs)), u.Lang, u.ViewCount, u.UpdatedAt, id)
	if err != nil {
		return fmt.Errorf("update tweet %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) MarkLiked(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE tweets SET is_liked = TRUE WHERE id = $1", id); err != nil {
		return fmt.Errorf("mark liked %s: %w", id, err)
	}
	return nil
}

type upsertRow struct {
	ID            string   `json:"id"`
	AuthorName    string   `json:"author_name"`
	AuthorHandle  string   `json:"author_handle"`
	Text          string   `json:"text"`
	CreatedAt     string   `json:"created_at"`
	RetweetCount  int      `json:"retweet_count"`
	FavoriteCount int      `json:"favorite_count"`
	PhotoURLs     []string `json:"photo_urls"`
	Lang          string   `json:"lang"`
	ViewCount     int      `json:"view_count"`
}

func (s *Postgres) UpsertBatch(ctx context.Context, posts []types.Post, now time.Time) ([]UpsertResult, error) {
	if len(posts) == 0 {
		return nil, nil
	}

	batch := make([]upsertRow, len(posts))
	for i, p := range posts {
		batch[i] = upsertRow{
			ID:            p.ID,
			AuthorName:    p.AuthorName,
			AuthorHandle:  p.AuthorHandle,
			Text:          p.Text,
			CreatedAt:     p.CreatedAt,
			RetweetCount:  p.RetweetCount,
			FavoriteCount: p.FavoriteCount,
			PhotoURLs:     photoURLs(p.PhotoURLs),
			Lang:          p.Lang,
			ViewCount:     p.ViewCount,
		}
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT tweet_id, is_new FROM upsert_tweets($1::jsonb, $2)", string(payload), now)
	if err != nil {
		return nil, fmt.Errorf("upsert_tweets: %w", err)
	}
	defer rows.Close()

	results := make([]UpsertResult, 0, len(posts))
	for rows.Next() {
		var r UpsertResult
		if err := rows.Scan(&r.ID, &r.IsNew); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate upsert results: %w", err)
	}
	return results, nil
}

func (s *Postgres) Get(ctx context.Context, id string) (types.Post, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM tweets WHERE id = $1", id)
	p, err := scanPostgres(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Post{}, ErrNotFound
	}
	return p, err
}

func (s *Postgres) Recent(ctx context.Context, limit int) ([]types.Post, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM tweets ORDER BY first_seen_at DESC, id DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("recent tweets: %w", err)
	}
	defer rows.Close()

	posts := []types.Post{}
	for rows.Next() {
		p, err := scanPostgres(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent: %w", err)
	}
	return posts, nil
}

func scanPostgres(row scanner) (types.Post, error) {
	var (
		p         types.Post
		updatedAt sql.NullTime
	)
	err := row.Scan(&p.ID, &p.AuthorName, &p.AuthorHandle, &p.Text, &p.CreatedAt,
		&p.RetweetCount, &p.FavoriteCount, pq.Array(&p.PhotoURLs), &p.Lang, &p.ViewCount,
		&p.FirstSeenAt, &updatedAt, &p.IsLiked)
	if err != nil {
		return types.Post{}, err
	}
	p.PhotoURLs = photoURLs(p.PhotoURLs)
	if updatedAt.Valid {
		t := updatedAt.Time
		p.UpdatedAt = &t
	}
	return p, nil
}
