// Package storetest provides an in-memory store.Store that records calls.
package storetest

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/masa-finance/timeline-poller/api/types"
	"github.com/masa-finance/timeline-poller/internal/store"
)

type Memory struct {
	mu    sync.Mutex
	posts map[string]types.Post
	calls map[string]int

	// Err, when set for a method name, is returned by that method.
	Err map[string]error
	// Updates records every Update payload in call order.
	Updates []types.PostUpdate
	// Inserted records every BulkInsert batch.
	Inserted [][]types.Post
}

func NewMemory(seed ...types.Post) *Memory {
	m := &Memory{
		posts: make(map[string]types.Post),
		calls: make(map[string]int),
		Err:   make(map[string]error),
	}
	for _, p := range seed {
		m.posts[p.ID] = p
	}
	return m
}

func (m *Memory) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

// TotalCalls counts calls to every method.
func (m *Memory) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *Memory) Post(id string) (types.Post, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	return p, ok
}

// called records a call; the caller holds mu.
func (m *Memory) called(name string) error {
	m.calls[name]++
	return m.Err[name]
}

func (m *Memory) SelectExisting(_ context.Context, ids []string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.called("SelectExisting"); err != nil {
		return nil, err
	}
	existing := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := m.posts[id]; ok {
			existing[id] = struct{}{}
		}
	}
	return existing, nil
}

func (m *Memory) BulkInsert(_ context.Context, posts []types.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.called("BulkInsert"); err != nil {
		return err
	}
	m.Inserted = append(m.Inserted, posts)
	for _, p := range posts {
		if _, ok := m.posts[p.ID]; !ok {
			m.posts[p.ID] = p
		}
	}
	return nil
}

func (m *Memory) Update(_ context.Context, id string, u types.PostUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.called("Update"); err != nil {
		return err
	}
	p, ok := m.posts[id]
	if !ok {
		return store.ErrNotFound
	}
	m.Updates = append(m.Updates, u)
	p.Text = u.Text
	p.RetweetCount = u.RetweetCount
	p.FavoriteCount = u.FavoriteCount
	p.PhotoURLs = u.PhotoURLs
	p.Lang = u.Lang
	p.ViewCount = u.ViewCount
	updated := u.UpdatedAt
	p.UpdatedAt = &updated
	m.posts[id] = p
	return nil
}

func (m *Memory) MarkLiked(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.called("MarkLiked"); err != nil {
		return err
	}
	if p, ok := m.posts[id]; ok {
		p.IsLiked = true
		m.posts[id] = p
	}
	return nil
}

func (m *Memory) UpsertBatch(_ context.Context, posts []types.Post, now time.Time) ([]store.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.called("UpsertBatch"); err != nil {
		return nil, err
	}
	results := make([]store.UpsertResult, 0, len(posts))
	for _, p := range posts {
		if old, ok := m.posts[p.ID]; ok {
			p.FirstSeenAt = old.FirstSeenAt
			p.IsLiked = old.IsLiked
			updated := now
			p.UpdatedAt = &updated
			m.posts[p.ID] = p
			results = append(results, store.UpsertResult{ID: p.ID})
			continue
		}
		p.FirstSeenAt = now
		m.posts[p.ID] = p
		results = append(results, store.UpsertResult{ID: p.ID, IsNew: true})
	}
	return results, nil
}

func (m *Memory) Get(_ context.Context, id string) (types.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.called("Get"); err != nil {
		return types.Post{}, err
	}
	p, ok := m.posts[id]
	if !ok {
		return types.Post{}, store.ErrNotFound
	}
	return p, nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]types.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.called("Recent"); err != nil {
		return nil, err
	}
	posts := make([]types.Post, 0, len(m.posts))
	for _, p := range m.posts {
		posts = append(posts, p)
	}
	slices.SortFunc(posts, func(a, b types.Post) int {
		if c := b.FirstSeenAt.Compare(a.FirstSeenAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, nil
}

func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.called("Ping")
}

func (m *Memory) Close() error { return nil }

var _ store.Store = (*Memory)(nil)
