package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/masa-finance/timeline-poller/api/types"
	"github.com/masa-finance/timeline-poller/internal/health"
	"github.com/masa-finance/timeline-poller/internal/jitter"
	"github.com/masa-finance/timeline-poller/internal/stats"
)

// ErrRunning is returned when the configuration is changed while the loop runs.
var ErrRunning = errors.New("scheduler is running")

// Authenticator makes sure a session exists before a cycle fetches.
type Authenticator interface {
	EnsureAuthenticated(ctx context.Context) error
}

// Fetcher fetches and reconciles the two home timelines.
type Fetcher interface {
	FollowingTimeline(ctx context.Context, minimum int) ([]types.Post, error)
	RecommendedTimeline(ctx context.Context, minimum int) ([]types.Post, error)
}

// StatusReporter receives the outcome of each cycle.
type StatusReporter interface {
	UpdateStatus(name string, isHealthy bool, err error)
}

type Delays struct {
	AuthFailure      time.Duration
	FetchFailure     time.Duration
	Unexpected       time.Duration
	BetweenTimelines jitter.Range
	BetweenCycles    jitter.Range
}

var DefaultDelays = Delays{
	AuthFailure:      32 * time.Second,
	FetchFailure:     60 * time.Second,
	Unexpected:       37 * time.Second,
	BetweenTimelines: jitter.Range{Min: 300 * time.Second, Max: 420 * time.Second},
	BetweenCycles:    jitter.Range{Min: 1680 * time.Second, Max: 1920 * time.Second},
}

type Config struct {
	Auth    Authenticator
	Fetcher Fetcher
	Health  StatusReporter
	Stats   *stats.StatsCollector
	Delays  *Delays
	Rand    jitter.Source
	Sleep   jitter.Sleeper
	// MinimumTweets is the batch size used when Start is given none.
	MinimumTweets int
}

// run is one Idle→Running→Idle lifetime of the loop. A stopped run keeps
// its own flag so that a quick restart never revives an old goroutine.
type run struct {
	ctx     context.Context
	cancel  context.CancelFunc
	active  atomic.Bool
	done    chan struct{}
	started time.Time
}

func (r *run) running() bool {
	return r.active.Load() && r.ctx.Err() == nil
}

// Scheduler owns the background polling loop. All state lives here and is
// only reachable through Start, Stop, SetMinimumTweets and Status.
type Scheduler struct {
	auth    Authenticator
	fetcher Fetcher
	health  StatusReporter
	stats   *stats.StatsCollector
	delays  Delays
	rng     jitter.Source
	sleep   jitter.Sleeper

	mu          sync.Mutex
	current     *run
	minimum     int
	cycles      uint64
	lastCycleAt *time.Time
	lastErr     string
}

func New(cfg Config) *Scheduler {
	s := &Scheduler{
		auth:    cfg.Auth,
		fetcher: cfg.Fetcher,
		health:  cfg.Health,
		stats:   cfg.Stats,
		delays:  DefaultDelays,
		rng:     cfg.Rand,
		sleep:   cfg.Sleep,
		minimum: cfg.MinimumTweets,
	}
	if cfg.Delays != nil {
		s.delays = *cfg.Delays
	}
	if s.rng == nil {
		s.rng = jitter.Default
	}
	if s.sleep == nil {
		s.sleep = jitter.Sleep
	}
	if s.minimum <= 0 {
		s.minimum = types.DefaultMinimumTweets
	}
	return s
}

// Start records minimum (when positive) and spawns the loop. It returns
// false if the loop is already running.
func (s *Scheduler) Start(minimum int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.current.active.Load() {
		return false
	}
	if minimum > 0 {
		s.minimum = minimum
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{ctx: ctx, cancel: cancel, done: make(chan struct{}), started: time.Now()}
	r.active.Store(true)
	s.current = r

	logrus.Infof("Starting scheduler with minimum_tweets=%d", s.minimum)
	go s.loop(r, s.minimum)
	return true
}

// Stop flips the running flag and cancels any pending wait. It returns
// false if the loop was not running. It does not wait for an in-flight
// provider call to finish; use Wait for that.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.current
	if r == nil || !r.active.Load() {
		return false
	}
	r.active.Store(false)
	r.cancel()
	logrus.Info("Scheduler stop requested")
	return true
}

// Wait blocks until the most recently started loop has exited or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) SetMinimumTweets(n int) error {
	if n <= 0 {
		return fmt.Errorf("minimum_tweets must be positive, got %d", n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.active.Load() {
		return ErrRunning
	}
	s.minimum = n
	return nil
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.current.active.Load()
}

func (s *Scheduler) Status() types.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := types.SchedulerStatus{
		MinimumTweets: s.minimum,
		Cycles:        s.cycles,
		LastCycleAt:   s.lastCycleAt,
		LastError:     s.lastErr,
	}
	if s.current != nil && s.current.active.Load() {
		st.Running = true
		started := s.current.started
		st.StartedAt = &started
	}
	return st
}

func (s *Scheduler) loop(r *run, minimum int) {
	defer close(r.done)
	defer logrus.Info("Scheduler loop exited")

	for r.running() {
		wait := s.cycle(r, minimum)
		if !r.running() {
			return
		}
		if err := s.sleep(r.ctx, wait); err != nil {
			return
		}
	}
}

// cycle runs one pass over both timelines and returns how long to wait
// before the next one.
func (s *Scheduler) cycle(r *run, minimum int) (wait time.Duration) {
	id := uuid.NewString()
	log := logrus.WithField("cycle", id)

	defer func() {
		if p := recover(); p != nil {
			s.fail(log, "unexpected", fmt.Errorf("panic: %v", p))
			wait = s.delays.Unexpected
		}
	}()

	log.Debug("Scheduler cycle starting")

	if err := s.auth.EnsureAuthenticated(r.ctx); err != nil {
		if r.ctx.Err() != nil {
			return 0
		}
		s.fail(log, "authentication", err)
		return s.delays.AuthFailure
	}
	if !r.running() {
		return 0
	}

	following, err := s.fetcher.FollowingTimeline(r.ctx, minimum)
	if err != nil {
		if r.ctx.Err() != nil {
			return 0
		}
		s.fail(log, "following timeline", err)
		return s.delays.FetchFailure
	}
	log.Infof("Following timeline yielded %d tweets", len(following))
	if !r.running() {
		return 0
	}

	pause := s.delays.BetweenTimelines.Draw(s.rng)
	log.Debugf("Waiting %v before the recommended timeline", pause)
	if err := s.sleep(r.ctx, pause); err != nil {
		return 0
	}
	if !r.running() {
		return 0
	}

	recommended, err := s.fetcher.RecommendedTimeline(r.ctx, minimum)
	if err != nil {
		if r.ctx.Err() != nil {
			return 0
		}
		s.fail(log, "recommended timeline", err)
		return s.delays.FetchFailure
	}
	log.Infof("Recommended timeline yielded %d tweets", len(recommended))

	s.succeed()
	next := s.delays.BetweenCycles.Draw(s.rng)
	log.Infof("Scheduler cycle complete, next in %v", next)
	return next
}

func (s *Scheduler) succeed() {
	now := time.Now()
	s.mu.Lock()
	s.cycles++
	s.lastCycleAt = &now
	s.lastErr = ""
	s.mu.Unlock()

	s.stats.Add(stats.SchedulerCycles, 1)
	if s.health != nil {
		s.health.UpdateStatus(health.ComponentScheduler, true, nil)
	}
}

func (s *Scheduler) fail(log *logrus.Entry, stage string, err error) {
	log.WithError(err).Errorf("Scheduler %s stage failed", stage)

	s.mu.Lock()
	s.lastErr = fmt.Sprintf("%s: %v", stage, err)
	s.mu.Unlock()

	s.stats.Add(stats.SchedulerFailures, 1)
	if s.health != nil {
		s.health.UpdateStatus(health.ComponentScheduler, false, err)
	}
}
