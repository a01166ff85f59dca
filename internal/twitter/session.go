package twitter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 30 * time.Second
)

type SessionState int32

const (
	Unauthenticated SessionState = iota
	Authenticating
	Authenticated
)

func (s SessionState) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

type SessionConfig struct {
	Credentials Credentials
	CookieFile  string
	// SkipLoginVerification trusts loaded cookies without the IsLoggedIn
	// probe, which spares the rate-limited verify_credentials endpoint.
	SkipLoginVerification bool
	MockMode              bool
	MaxRetries            int
	RetryDelay            time.Duration
}

// StatusReporter receives session health transitions.
type StatusReporter interface {
	UpdateStatus(name string, isHealthy bool, err error)
}

// Session owns the authentication state of the one account the poller
// uses. Concurrent authentication attempts are collapsed into one.
type Session struct {
	provider Provider
	cfg      SessionConfig
	health   StatusReporter

	mu         sync.Mutex
	state      SessionState
	retryCount int
	logins     int

	attemptMu sync.Mutex
	group     singleflight.Group
	flightMu  sync.Mutex
	flights   map[string]*flight
}

// flight is the context an in-flight attempt runs on. It outlives any one
// caller and is cancelled when the last waiting caller leaves.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func NewSession(provider Provider, cfg SessionConfig, health StatusReporter) *Session {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &Session{provider: provider, cfg: cfg, health: health, flights: map[string]*flight{}}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) RetryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryCount
}

// Logins is the number of full logins performed since start.
func (s *Session) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

func (s *Session) MockMode() bool {
	return s.cfg.MockMode
}

// Invalidate drops back to Unauthenticated after the provider rejected the
// session.
func (s *Session) Invalidate() {
	s.setState(Unauthenticated)
}

// EnsureAuthenticated returns at once when the session is already good or
// in mock mode. Otherwise it runs up to MaxRetries validate-or-login
// attempts, waiting RetryDelay*2^(n-1) after the n-th failure, and returns
// ErrAuthenticationFailed once they are exhausted.
func (s *Session) EnsureAuthenticated(ctx context.Context) error {
	if s.cfg.MockMode || s.State() == Authenticated {
		return nil
	}
	return s.shared(ctx, "ensure", s.ensureWithRetry)
}

// Authenticate performs one validate-or-login pass with no retry.
func (s *Session) Authenticate(ctx context.Context) error {
	if s.cfg.MockMode {
		return nil
	}
	return s.shared(ctx, "authenticate", func(ctx context.Context) error {
		return s.attempt(ctx, true)
	})
}

func (s *Session) shared(ctx context.Context, key string, fn func(context.Context) error) error {
	f := s.join(ctx, key)
	defer s.leave(key, f)

	ch := s.group.DoChan(key, func() (interface{}, error) {
		defer s.finish(key, f)
		return nil, fn(f.ctx)
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Shared {
			logrus.Debugf("Joined in-flight %s attempt", key)
		}
		return res.Err
	}
}

func (s *Session) join(ctx context.Context, key string) *flight {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	f, ok := s.flights[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		s.flights[key] = f
	}
	f.waiters++
	return f
}

func (s *Session) leave(key string, f *flight) {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	f.waiters--
	if f.waiters == 0 {
		f.cancel()
		if s.flights[key] == f {
			delete(s.flights, key)
		}
	}
}

// finish lets the next caller start a fresh flight.
func (s *Session) finish(key string, f *flight) {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	if s.flights[key] == f {
		delete(s.flights, key)
	}
}

func (s *Session) ensureWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = s.cfg.RetryDelay << uint(s.cfg.MaxRetries)
	b.MaxElapsedTime = 0

	var policy backoff.BackOff = &backoff.StopBackOff{}
	if s.cfg.MaxRetries > 1 {
		policy = backoff.WithMaxRetries(b, uint64(s.cfg.MaxRetries-1))
	}

	s.mu.Lock()
	s.retryCount = 0
	s.mu.Unlock()

	var lastErr error
	err := backoff.RetryNotify(func() error {
		err := s.attempt(ctx, false)
		if err != nil && IsCancellation(err) {
			return backoff.Permanent(err)
		}
		lastErr = err
		return err
	}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		logrus.WithError(err).Warnf("Authentication attempt %d/%d failed, retrying in %v",
			s.RetryCount(), s.cfg.MaxRetries, wait)
	})

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err == nil {
		return nil
	}
	if IsCancellation(err) {
		return err
	}

	logrus.WithError(lastErr).Errorf("Authentication failed after %d attempts", s.cfg.MaxRetries)
	if s.health != nil {
		s.health.UpdateStatus("session", false, lastErr)
	}
	return newError(KindAuthenticationFailed,
		fmt.Sprintf("Authentication failed after %d attempts: %v", s.cfg.MaxRetries, lastErr), lastErr)
}

// attempt is one validate-or-login pass. Attempts never overlap.
func (s *Session) attempt(ctx context.Context, force bool) error {
	s.attemptMu.Lock()
	defer s.attemptMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if !force && s.State() == Authenticated {
		return nil
	}

	s.setState(Authenticating)
	err := s.validateOrLogin(ctx)

	s.mu.Lock()
	if err != nil {
		s.state = Unauthenticated
		if !IsCancellation(err) {
			s.retryCount++
		}
	} else {
		s.state = Authenticated
		s.retryCount = 0
	}
	s.mu.Unlock()

	if err == nil && s.health != nil {
		s.health.UpdateStatus("session", true, nil)
	}
	return err
}

func (s *Session) validateOrLogin(ctx context.Context) error {
	user := s.cfg.Credentials.Username

	if err := LoadCookies(s.provider, s.cfg.CookieFile); err == nil {
		logrus.Debugf("Cookies loaded for user %s.", user)
		if s.cfg.SkipLoginVerification {
			logrus.Debugf("Skipping login verification for %s.", user)
			return nil
		}
		if s.provider.IsLoggedIn(ctx) {
			logrus.Debugf("Already logged in as %s.", user)
			return nil
		}
	} else {
		logrus.WithError(err).Debug("No reusable session")
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.cfg.Credentials.Validate(); err != nil {
		return err
	}

	if err := s.provider.Login(ctx, s.cfg.Credentials); err != nil {
		logrus.WithError(err).Warnf("Login failed for %s", user)
		return fmt.Errorf("login failed: %w", err)
	}

	s.mu.Lock()
	s.logins++
	s.mu.Unlock()

	if err := SaveCookies(s.provider, s.cfg.CookieFile); err != nil {
		logrus.WithError(err).Errorf("Failed to save cookies for %s", user)
	}

	logrus.Infof("Login successful for %s", user)
	return nil
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}
