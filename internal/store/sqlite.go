package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/masa-finance/timeline-poller/api/types"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

const sqliteColumns = 13

// fixed width so that text ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite is the file-backed Store used for local runs and tests.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single writer avoids SQLITE_BUSY between the scheduler and API calls
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logrus.Infof("Opened sqlite store at %s", path)
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) SelectExisting(ctx context.Context, ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(ids) == 0 {
		return existing, nil
	}

	for _, batch := range batches(ids, maxBatchRows) {
		if err := s.selectExisting(ctx, batch, existing); err != nil {
			return nil, err
		}
	}
	return existing, nil
}

func (s *SQLite) selectExisting(ctx context.Context, ids []string, existing map[string]struct{}) error {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := "SELECT id FROM tweets WHERE id IN (" + placeholders(len(ids)) + ")"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("select existing: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		existing[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate existing: %w", err)
	}
	return nil
}

// BulkInsert writes all posts in one transaction, maxBatchRows per statement.
func (s *SQLite) BulkInsert(ctx context.Context, posts []types.Post) error {
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
		if _, err := tx.ExecContext(ctx, s.insertQuery(len(batch)), s.insertArgs(batch)...); err != nil {
			return fmt.Errorf("bulk insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk insert: %w", err)
	}
	return nil
}

func (s *SQLite) insertQuery(n int) string {
	row := "(" + placeholders(sqliteColumns) + ")"
	values := make([]string, n)
	for i := range values {
		values[i] = row
	}
	return `INSERT INTO tweets (
			id, author_name, author_handle, text, created_at, retweet_count,
			favorite_count, photo_urls, lang, view_count, first_seen_at, updated_at, is_liked
		) VALUES ` + strings.Join(values, ", ") + `
		ON CONFLICT(id) DO NOTHING`
}

func (s *SQLite) insertArgs(posts []types.Post) []any {
	args := make([]any, 0, len(posts)*sqliteColumns)
	for _, p := range posts {
		args = append(args,
			p.ID,
			p.AuthorName,
			p.AuthorHandle,
			p.Text,
			p.CreatedAt,
			p.RetweetCount,
			p.FavoriteCount,
			encodeURLs(p.PhotoURLs),
			p.Lang,
			p.ViewCount,
			formatTime(p.FirstSeenAt),
			formatTimePtr(p.UpdatedAt),
			p.IsLiked,
		)
	}
	return args
}

func (s *SQLite) Update(ctx context.Context, id string, u types.PostUpdate) error {
	return s.update(ctx, s.db, id, u)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLite) update(ctx context.Context, db execer, id string, u types.PostUpdate) error {
	res, err := db.ExecContext(ctx, `
		UPDATE tweets SET
			text = ?,
			retweet_count = ?,
			favorite_count = ?,
			photo_urls = ?,
			lang = ?,
			view_count = ?,
			updated_at = ?
		WHERE id = ?
	`, u.Text, u.RetweetCount, u.FavoriteCount, encodeURLs(u.PhotoURLs), u.Lang, u.ViewCount, formatTime(u.UpdatedAt), id)
	if err != nil {
		return fmt.Errorf("update tweet %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) MarkLiked(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE tweets SET is_liked = 1 WHERE id = ?", id); err != nil {
		return fmt.Errorf("mark liked %s: %w", id, err)
	}
	return nil
}

// UpsertBatch partitions and writes the batch inside one transaction.
func (s *SQLite) UpsertBatch(ctx context.Context, posts []types.Post, now time.Time) ([]UpsertResult, error) {
	if len(posts) == 0 {
		return nil, nil
	}

	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	existing, err := s.SelectExisting(ctx, ids)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	results := make([]UpsertResult, 0, len(posts))
	var inserts []types.Post
	for _, p := range posts {
		if _, ok := existing[p.ID]; ok {
			if err := s.update(ctx, tx, p.ID, types.UpdateOf(p, now)); err != nil {
				_ = tx.Rollback()
				return nil, err
			}
			results = append(results, UpsertResult{ID: p.ID})
			continue
		}
		p.FirstSeenAt = now
		p.UpdatedAt = nil
		p.IsLiked = false
		inserts = append(inserts, p)
		results = append(results, UpsertResult{ID: p.ID, IsNew: true})
	}

	if len(inserts) > 0 {
		if _, err := tx.ExecContext(ctx, s.insertQuery(len(inserts)), s.insertArgs(inserts)...); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("bulk insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert: %w", err)
	}
	return results, nil
}

func (s *SQLite) Get(ctx context.Context, id string) (types.Post, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM tweets WHERE id = ?", id)
	p, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Post{}, ErrNotFound
	}
	return p, err
}

func (s *SQLite) Recent(ctx context.Context, limit int) ([]types.Post, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM tweets ORDER BY first_seen_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("recent tweets: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	posts := []types.Post{}
	for rows.Next() {
		p, err := scanSQLite(rows)
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

const selectColumns = `id, author_name, author_handle, text, created_at, retweet_count,
	favorite_count, photo_urls, lang, view_count, first_seen_at, updated_at, is_liked`

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row scanner) (types.Post, error) {
	var (
		p         types.Post
		urls      string
		firstSeen string
		updatedAt sql.NullString
	)
	err := row.Scan(&p.ID, &p.AuthorName, &p.AuthorHandle, &p.Text, &p.CreatedAt,
		&p.RetweetCount, &p.FavoriteCount, &urls, &p.Lang, &p.ViewCount,
		&firstSeen, &updatedAt, &p.IsLiked)
	if err != nil {
		return types.Post{}, err
	}

	if err := json.Unmarshal([]byte(urls), &p.PhotoURLs); err != nil {
		return types.Post{}, fmt.Errorf("decode photo_urls of %s: %w", p.ID, err)
	}
	p.PhotoURLs = photoURLs(p.PhotoURLs)

	if p.FirstSeenAt, err = time.Parse(timeLayout, firstSeen); err != nil {
		return types.Post{}, fmt.Errorf("parse first_seen_at of %s: %w", p.ID, err)
	}
	if updatedAt.Valid {
		t, err := time.Parse(timeLayout, updatedAt.String)
		if err != nil {
			return types.Post{}, fmt.Errorf("parse updated_at of %s: %w", p.ID, err)
		}
		p.UpdatedAt = &t
	}
	return p, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func encodeURLs(urls []string) string {
	data, err := json.Marshal(photoURLs(urls))
	if err != nil {
		return "[]"
	}
	return string(data)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}
