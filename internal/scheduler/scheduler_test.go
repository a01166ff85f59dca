package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/masa-finance/timeline-poller/api/types"
	"github.com/masa-finance/timeline-poller/internal/health"
	. "github.com/masa-finance/timeline-poller/internal/scheduler"
)

// zeroRand always draws the low end of a jitter window.
type zeroRand struct{}

func (zeroRand) Intn(int) int { return 0 }

func (zeroRand) Int63n(int64) int64 { return 0 }

type fakeAuth struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (a *fakeAuth) EnsureAuthenticated(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return a.err
}

func (a *fakeAuth) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type fakeFetcher struct {
	mu             sync.Mutex
	following      []int
	recommended    []int
	followingErr   error
	recommendedErr error
	panicking      bool
}

func (f *fakeFetcher) FollowingTimeline(_ context.Context, minimum int) ([]types.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.following = append(f.following, minimum)
	if f.panicking {
		panic("provider returned garbage")
	}
	return make([]types.Post, minimum), f.followingErr
}

func (f *fakeFetcher) RecommendedTimeline(_ context.Context, minimum int) ([]types.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recommended = append(f.recommended, minimum)
	return make([]types.Post, minimum), f.recommendedErr
}

func (f *fakeFetcher) Following() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.following...)
}

func (f *fakeFetcher) Recommended() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.recommended...)
}

var _ = Describe("Scheduler", func() {
	var (
		auth    *fakeAuth
		fetcher *fakeFetcher
		tracker *health.Tracker
		waits   chan time.Duration
		s       *Scheduler
	)

	BeforeEach(func() {
		auth = &fakeAuth{}
		fetcher = &fakeFetcher{}
		tracker = health.NewTracker()
		waits = make(chan time.Duration)
		s = New(Config{
			Auth:    auth,
			Fetcher: fetcher,
			Health:  tracker,
			Rand:    zeroRand{},
			// Each wait is handed to the test, which drives the loop one
			// step at a time by receiving it.
			Sleep: func(ctx context.Context, d time.Duration) error {
				select {
				case waits <- d:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		})
		DeferCleanup(func() {
			s.Stop()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			Expect(s.Wait(ctx)).To(Succeed())
		})
	})

	It("starts idle with the default minimum", func() {
		st := s.Status()
		Expect(st.Running).To(BeFalse())
		Expect(st.MinimumTweets).To(Equal(types.DefaultMinimumTweets))
		Expect(s.Stop()).To(BeFalse())
	})

	It("runs both timelines with a pause between them and a long wait after", func() {
		Expect(s.Start(5)).To(BeTrue())

		Eventually(waits).Should(Receive(Equal(300 * time.Second)))
		Expect(fetcher.Following()).To(Equal([]int{5}))
		Expect(fetcher.Recommended()).To(BeEmpty())

		Eventually(waits).Should(Receive(Equal(1680 * time.Second)))
		Expect(fetcher.Recommended()).To(Equal([]int{5}))

		st := s.Status()
		Expect(st.Running).To(BeTrue())
		Expect(st.MinimumTweets).To(Equal(5))
		Expect(st.Cycles).To(Equal(uint64(1)))
		Expect(st.StartedAt).NotTo(BeNil())
		Expect(st.LastCycleAt).NotTo(BeNil())
		Expect(st.LastError).To(BeEmpty())
		Expect(tracker.Healthy(health.ComponentScheduler)).To(BeTrue())

		// The next cycle begins only after the long wait was served.
		Eventually(waits).Should(Receive(Equal(300 * time.Second)))
		Expect(fetcher.Following()).To(HaveLen(2))
		Expect(auth.Calls()).To(Equal(2))
	})

	It("refuses to start twice", func() {
		Expect(s.Start(5)).To(BeTrue())
		Expect(s.Start(8)).To(BeFalse())
		Expect(s.Status().MinimumTweets).To(Equal(5))
	})

	It("waits 32s after an authentication failure without fetching", func() {
		auth.err = errors.New("login rejected")
		Expect(s.Start(0)).To(BeTrue())

		Eventually(waits).Should(Receive(Equal(32 * time.Second)))
		Expect(fetcher.Following()).To(BeEmpty())
		Expect(s.Status().LastError).To(ContainSubstring("authentication"))
		Expect(tracker.Healthy(health.ComponentScheduler)).To(BeFalse())

		Eventually(waits).Should(Receive(Equal(32 * time.Second)))
		Expect(auth.Calls()).To(Equal(2))
	})

	It("waits 60s when the following timeline fails", func() {
		fetcher.followingErr = errors.New("service unavailable")
		Expect(s.Start(0)).To(BeTrue())

		Eventually(waits).Should(Receive(Equal(60 * time.Second)))
		Expect(fetcher.Recommended()).To(BeEmpty())
		Expect(s.Status().Cycles).To(BeZero())
	})

	It("waits 60s when the recommended timeline fails", func() {
		fetcher.recommendedErr = errors.New("rate limit reached")
		Expect(s.Start(0)).To(BeTrue())

		Eventually(waits).Should(Receive(Equal(300 * time.Second)))
		Eventually(waits).Should(Receive(Equal(60 * time.Second)))
		Expect(s.Status().LastError).To(ContainSubstring("recommended"))
	})

	It("waits 37s after an unexpected panic", func() {
		fetcher.panicking = true
		Expect(s.Start(0)).To(BeTrue())

		Eventually(waits).Should(Receive(Equal(37 * time.Second)))
		Expect(s.Status().LastError).To(ContainSubstring("provider returned garbage"))
	})

	It("stops during a wait and can be started again", func() {
		Expect(s.Start(3)).To(BeTrue())
		Eventually(fetcher.Following).Should(HaveLen(1))

		Expect(s.Stop()).To(BeTrue())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		Expect(s.Wait(ctx)).To(Succeed())

		Expect(fetcher.Recommended()).To(BeEmpty())
		Expect(s.Status().Running).To(BeFalse())
		Expect(s.Stop()).To(BeFalse())

		Expect(s.Start(4)).To(BeTrue())
		Eventually(waits).Should(Receive(Equal(300 * time.Second)))
		Expect(fetcher.Following()).To(Equal([]int{3, 4}))
	})

	Describe("SetMinimumTweets", func() {
		It("applies while idle", func() {
			Expect(s.SetMinimumTweets(25)).To(Succeed())
			Expect(s.Status().MinimumTweets).To(Equal(25))
		})

		It("rejects non-positive values", func() {
			Expect(s.SetMinimumTweets(0)).NotTo(Succeed())
		})

		It("is refused while running", func() {
			Expect(s.Start(5)).To(BeTrue())
			Expect(s.SetMinimumTweets(25)).To(MatchError(ErrRunning))
		})
	})
})
