package jitter

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Source is the subset of *rand.Rand the pollers draw from.
type Source interface {
	Intn(n int) int
	Int63n(n int64) int64
}

type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSource returns a goroutine-safe Source seeded with seed.
func NewSource(seed int64) Source {
	return &lockedSource{rng: rand.New(rand.NewSource(seed))}
}

func (s *lockedSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

func (s *lockedSource) Int63n(n int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Int63n(n)
}

var Default = NewSource(time.Now().UnixNano())

// Between draws a duration uniformly from [min, max].
func Between(src Source, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(src.Int63n(int64(max-min)+1))
}

// IntBetween draws an integer uniformly from [min, max].
func IntBetween(src Source, min, max int) int {
	if max <= min {
		return min
	}
	return min + src.Intn(max-min+1)
}

// Sleeper waits for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the production Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	logrus.Debugf("Sleeping for %v", d)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Range is an inclusive jitter window.
type Range struct {
	Min time.Duration
	Max time.Duration
}

func (r Range) Draw(src Source) time.Duration {
	return Between(src, r.Min, r.Max)
}
