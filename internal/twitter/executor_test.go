package twitter_test

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "github.com/masa-finance/timeline-poller/internal/twitter"
	"github.com/masa-finance/timeline-poller/internal/twitter/twittertest"
)

var _ = Describe("Executor", func() {
	var (
		provider *twittertest.Provider
		session  *Session
		ex       *Executor
		ctx      context.Context
		attempts int
	)

	BeforeEach(func() {
		ctx = context.Background()
		attempts = 0
		provider = &twittertest.Provider{IsLoggedInFunc: func() bool { return true }}
		cookieFile := filepath.Join(GinkgoT().TempDir(), "cookies.json")
		Expect(SaveCookies(provider, cookieFile)).To(Succeed())
		session = NewSession(provider, SessionConfig{
			Credentials: Credentials{Username: "poller", Password: "secret"},
			CookieFile:  cookieFile,
			RetryDelay:  time.Millisecond,
		}, nil)
		ex = NewExecutor(session, provider, nil)
	})

	failing := func(errs ...error) func(context.Context, Provider) (string, error) {
		return func(context.Context, Provider) (string, error) {
			attempts++
			if len(errs) >= attempts {
				if err := errs[attempts-1]; err != nil {
					return "", err
				}
			}
			return "ok", nil
		}
	}

	It("returns the operation result on success", func() {
		res, err := Execute(ctx, ex, failing())
		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(Equal("ok"))
		Expect(session.State()).To(Equal(Authenticated))
	})

	It("fails fast on rate limiting", func() {
		_, err := Execute(ctx, ex, failing(errors.New("response status 429 Too Many Requests: {}")))
		Expect(err).To(MatchError(ErrRateLimited))
		Expect(attempts).To(Equal(1))
	})

	It("re-authenticates once and retries after an unauthorized response", func() {
		res, err := Execute(ctx, ex, failing(errors.New("response status 401 Unauthorized: {}")))
		Expect(err).NotTo(HaveOccurred())
		Expect(res).To(Equal("ok"))
		Expect(attempts).To(Equal(2))
		Expect(provider.Calls("IsLoggedIn")).To(Equal(2))
	})

	It("surfaces an authentication error when the retry fails too", func() {
		unauthorized := errors.New("response status 401 Unauthorized: {}")
		_, err := Execute(ctx, ex, failing(unauthorized, unauthorized, unauthorized))
		Expect(err).To(MatchError(ErrAuthenticationFailed))
		Expect(attempts).To(Equal(2))
	})

	It("surfaces an authentication error when re-authentication fails", func() {
		provider.IsLoggedInFunc = func() bool { return false }
		provider.LoginFunc = func(Credentials) error { return errors.New("locked out") }
		Expect(session.EnsureAuthenticated(ctx)).NotTo(Succeed())
		session.Invalidate()

		// first ensure fails too, so the operation never runs
		_, err := Execute(ctx, ex, failing())
		Expect(err).To(MatchError(ErrAuthenticationFailed))
		Expect(attempts).To(BeZero())
	})

	It("maps client-side failures to a client error with the provider message", func() {
		_, err := Execute(ctx, ex, failing(errors.New("response status 404 Not Found: no such tweet")))
		Expect(err).To(MatchError(ErrClient))
		Expect(err.Error()).To(ContainSubstring("no such tweet"))

		_, err = Execute(ctx, ex, failing(nil, &ProviderError{Condition: ConditionAccountLocked, Message: "account locked"}))
		Expect(err).To(MatchError(ErrClient))
	})

	It("maps timeouts and server errors to transient errors", func() {
		_, err := Execute(ctx, ex, failing(errors.New("response status 502 Bad Gateway: {}")))
		Expect(err).To(MatchError(ErrTransient))
	})

	It("propagates cancellation untouched", func() {
		cctx, cancel := context.WithCancel(ctx)
		_, err := Execute(cctx, ex, func(context.Context, Provider) (string, error) {
			cancel()
			return "", errors.New("request aborted")
		})
		Expect(err).To(MatchError(context.Canceled))
		Expect(KindOf(err)).To(Equal(KindUnknown))
	})

	It("passes already classified errors through", func() {
		err := Do(ctx, ex, func(context.Context, Provider) error { return ErrMockDisabled })
		Expect(err).To(MatchError(ErrMockDisabled))
	})
})
