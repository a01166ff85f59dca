package twitter_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "github.com/masa-finance/timeline-poller/internal/twitter"
	"github.com/masa-finance/timeline-poller/internal/twitter/twittertest"
)

var _ = Describe("Session", func() {
	var (
		provider   *twittertest.Provider
		cookieFile string
		cfg        SessionConfig
	)

	BeforeEach(func() {
		provider = &twittertest.Provider{}
		cookieFile = filepath.Join(GinkgoT().TempDir(), "cookies.json")
		cfg = SessionConfig{
			Credentials: Credentials{Username: "poller", Email: "poller@example.com", Password: "secret"},
			CookieFile:  cookieFile,
			MaxRetries:  3,
			RetryDelay:  10 * time.Millisecond,
		}
	})

	It("reports success in mock mode without touching the provider", func() {
		cfg.MockMode = true
		s := NewSession(provider, cfg, nil)

		Expect(s.EnsureAuthenticated(context.Background())).To(Succeed())
		Expect(s.Authenticate(context.Background())).To(Succeed())
		Expect(provider.Calls("IsLoggedIn")).To(BeZero())
		Expect(provider.Calls("Login")).To(BeZero())
	})

	It("reuses a persisted session when the probe succeeds", func() {
		Expect(SaveCookies(provider, cookieFile)).To(Succeed())
		provider.IsLoggedInFunc = func() bool { return true }
		s := NewSession(provider, cfg, nil)

		Expect(s.EnsureAuthenticated(context.Background())).To(Succeed())
		Expect(s.State()).To(Equal(Authenticated))
		Expect(provider.Calls("IsLoggedIn")).To(Equal(1))
		Expect(provider.Calls("Login")).To(BeZero())

		// already authenticated: no further provider contact
		Expect(s.EnsureAuthenticated(context.Background())).To(Succeed())
		Expect(provider.Calls("IsLoggedIn")).To(Equal(1))
	})

	It("skips the probe when login verification is disabled", func() {
		Expect(SaveCookies(provider, cookieFile)).To(Succeed())
		cfg.SkipLoginVerification = true
		s := NewSession(provider, cfg, nil)

		Expect(s.EnsureAuthenticated(context.Background())).To(Succeed())
		Expect(provider.Calls("IsLoggedIn")).To(BeZero())
		Expect(provider.Calls("Login")).To(BeZero())
	})

	It("logs in and persists the cookie file when no session exists", func() {
		var got Credentials
		provider.LoginFunc = func(c Credentials) error { got = c; return nil }
		s := NewSession(provider, cfg, nil)

		Expect(s.EnsureAuthenticated(context.Background())).To(Succeed())
		Expect(provider.Calls("Login")).To(Equal(1))
		Expect(got.Email).To(Equal("poller@example.com"))
		Expect(s.Logins()).To(Equal(1))

		_, err := os.Stat(cookieFile)
		Expect(err).NotTo(HaveOccurred())
	})

	It("gives up after the configured number of attempts", func() {
		provider.LoginFunc = func(Credentials) error { return errors.New("bad password") }
		s := NewSession(provider, cfg, nil)

		start := time.Now()
		err := s.EnsureAuthenticated(context.Background())
		Expect(err).To(MatchError(ErrAuthenticationFailed))
		Expect(provider.Calls("Login")).To(Equal(3))
		Expect(s.State()).To(Equal(Unauthenticated))
		// 10ms + 20ms of backoff between the three attempts
		Expect(time.Since(start)).To(BeNumerically(">=", 30*time.Millisecond))
	})

	It("resets the retry counter after a late success", func() {
		failures := 2
		provider.LoginFunc = func(Credentials) error {
			if failures > 0 {
				failures--
				return errors.New("flaky")
			}
			return nil
		}
		s := NewSession(provider, cfg, nil)

		Expect(s.EnsureAuthenticated(context.Background())).To(Succeed())
		Expect(provider.Calls("Login")).To(Equal(3))
		Expect(s.RetryCount()).To(BeZero())
		Expect(s.State()).To(Equal(Authenticated))
	})

	It("stops retrying once the context is cancelled", func() {
		cfg.RetryDelay = time.Hour
		ctx, cancel := context.WithCancel(context.Background())
		provider.LoginFunc = func(Credentials) error {
			cancel()
			return errors.New("bad password")
		}
		s := NewSession(provider, cfg, nil)

		err := s.EnsureAuthenticated(ctx)
		Expect(err).To(MatchError(context.Canceled))
		Expect(provider.Calls("Login")).To(Equal(1))
	})

	It("collapses concurrent attempts into one login", func() {
		provider.LoginFunc = func(Credentials) error {
			time.Sleep(50 * time.Millisecond)
			return nil
		}
		s := NewSession(provider, cfg, nil)

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				Expect(s.EnsureAuthenticated(context.Background())).To(Succeed())
			}()
		}
		wg.Wait()
		Expect(provider.Calls("Login")).To(Equal(1))
	})

	It("keeps a shared attempt alive when the caller that started it goes away", func() {
		cfg.RetryDelay = 200 * time.Millisecond
		firstFailed := make(chan struct{})
		var once sync.Once
		provider.LoginFunc = func(Credentials) error {
			failed := false
			once.Do(func() { failed = true })
			if failed {
				close(firstFailed)
				return errors.New("flaky")
			}
			return nil
		}
		s := NewSession(provider, cfg, nil)

		ctxA, cancelA := context.WithCancel(context.Background())
		errA := make(chan error, 1)
		go func() { errA <- s.EnsureAuthenticated(ctxA) }()
		Eventually(firstFailed).Should(BeClosed())

		errB := make(chan error, 1)
		go func() { errB <- s.EnsureAuthenticated(context.Background()) }()
		// let B join the attempt that is waiting out its backoff
		time.Sleep(20 * time.Millisecond)
		cancelA()

		Eventually(errA).Should(Receive(MatchError(context.Canceled)))
		Eventually(errB, 2*time.Second).Should(Receive(BeNil()))
		Expect(provider.Calls("Login")).To(Equal(2))
		Expect(s.State()).To(Equal(Authenticated))
	})

	It("abandons the attempt once every caller has gone", func() {
		cfg.RetryDelay = 50 * time.Millisecond
		provider.LoginFunc = func(Credentials) error { return errors.New("bad password") }
		s := NewSession(provider, cfg, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		Expect(s.EnsureAuthenticated(ctx)).To(MatchError(context.DeadlineExceeded))

		Consistently(func() int { return provider.Calls("Login") }, 200*time.Millisecond).Should(Equal(1))
	})

	It("runs a single pass without retry on the forced path", func() {
		provider.LoginFunc = func(Credentials) error { return errors.New("nope") }
		s := NewSession(provider, cfg, nil)

		Expect(s.Authenticate(context.Background())).NotTo(Succeed())
		Expect(provider.Calls("Login")).To(Equal(1))
	})

	It("returns to unauthenticated when invalidated", func() {
		s := NewSession(provider, cfg, nil)
		Expect(s.EnsureAuthenticated(context.Background())).To(Succeed())
		s.Invalidate()
		Expect(s.State()).To(Equal(Unauthenticated))
	})
})
