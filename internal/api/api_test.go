package api_test

import (
	"context"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/masa-finance/timeline-poller/api/types"
	"github.com/masa-finance/timeline-poller/internal/app"
	"github.com/masa-finance/timeline-poller/internal/config"
	"github.com/masa-finance/timeline-poller/pkg/client"
)

var _ = Describe("API", func() {

	var (
		clientInstance *client.Client
		ctx            context.Context
		cancel         context.CancelFunc
		done           chan error
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())

		cfg := config.Configuration{
			"data_dir":          GinkgoT().TempDir(),
			"listen_address":    "127.0.0.1:40912",
			"api_key":           "secret",
			"log_level":         "error",
			"use_twitter_mocks": true,
		}
		application, err := app.New(ctx, cfg)
		Expect(err).NotTo(HaveOccurred())

		done = make(chan error, 1)
		go func() { done <- application.Run(ctx) }()

		clientInstance, err = client.NewClient("http://127.0.0.1:40912", client.APIKey("secret"), client.Timeout(10*time.Second))
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() error { return clientInstance.Healthz(ctx) }, 5*time.Second, 50*time.Millisecond).Should(Succeed())
	})

	AfterEach(func() {
		cancel()
		Eventually(done, 20*time.Second).Should(Receive(BeNil()))
	})

	It("rejects requests without the API key", func() {
		anonymous, err := client.NewClient("http://127.0.0.1:40912")
		Expect(err).NotTo(HaveOccurred())

		_, err = anonymous.SchedulerStatus(ctx)
		Expect(err).To(HaveOccurred())
		Expect(err.(*client.APIError).StatusCode).To(Equal(http.StatusUnauthorized))
	})

	It("stores the following timeline and serves it back", func() {
		res, err := clientInstance.FollowingTimeline(ctx, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Count).To(Equal(2))

		recent, err := clientInstance.RecentTweets(ctx, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(recent.Count).To(Equal(2))

		post, err := clientInstance.GetTweet(ctx, res.Posts[0].ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(post.FirstSeenAt).NotTo(BeZero())
		// The auto-favorite is disabled in mock mode, so nothing is liked.
		Expect(post.IsLiked).To(BeFalse())

		// A second fetch of the same batch only updates.
		_, err = clientInstance.FollowingTimeline(ctx, 2)
		Expect(err).NotTo(HaveOccurred())
		again, err := clientInstance.GetTweet(ctx, res.Posts[0].ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(again.FirstSeenAt).To(BeTemporally("==", post.FirstSeenAt))
		Expect(again.UpdatedAt).NotTo(BeNil())
	})

	It("searches the fixtures", func() {
		res, err := clientInstance.SearchTweets(ctx, "golang", 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Count).To(Equal(2))
		for _, p := range res.Posts {
			Expect(p.Text).To(ContainSubstring("golang"))
		}

		_, err = clientInstance.SearchTweets(ctx, "", 10)
		Expect(err.(*client.APIError).StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("reads the recommended timeline", func() {
		res, err := clientInstance.RecommendedTimeline(ctx, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Count).To(Equal(2))
	})

	It("returns a thread with display text", func() {
		thread, err := clientInstance.Thread(ctx, "1850000000000000001")
		Expect(err).NotTo(HaveOccurred())
		Expect(thread.MainTweet.ID).To(Equal("1850000000000000001"))
		Expect(thread.Replies).To(HaveLen(1))
		Expect(thread.Replies[0].DisplayText).To(Equal("congrats, the latency drop is wild"))
	})

	It("maps errors to status codes", func() {
		_, err := clientInstance.GetTweet(ctx, "404404")
		Expect(err.(*client.APIError).StatusCode).To(Equal(http.StatusNotFound))

		_, err = clientInstance.Favorite(ctx, "1850000000000000001")
		Expect(err.(*client.APIError).StatusCode).To(Equal(http.StatusForbidden))
		Expect(err.(*client.APIError).Kind).To(Equal("mock_disabled"))

		_, err = clientInstance.CreatePost(ctx, "hello", "")
		Expect(err.(*client.APIError).StatusCode).To(Equal(http.StatusForbidden))

		_, err = clientInstance.Thread(ctx, "999")
		Expect(err.(*client.APIError).StatusCode).To(Equal(http.StatusBadRequest))
	})

	It("acknowledges notifications in mock mode", func() {
		res, err := clientInstance.Notify(ctx, types.NotificationPayload{ID: "1850000000000000002"})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Status).To(Equal("success"))
		Expect(res.TweetID).To(Equal("1850000000000000002"))
		Expect(res.TweetDetails).To(BeNil())
	})

	It("starts, reconfigures and stops the scheduler", func() {
		status, err := clientInstance.ConfigureScheduler(ctx, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(status.MinimumTweets).To(Equal(3))

		_, err = clientInstance.StartScheduler(ctx, 0)
		Expect(err).NotTo(HaveOccurred())

		_, err = clientInstance.StartScheduler(ctx, 0)
		Expect(err.(*client.APIError).StatusCode).To(Equal(http.StatusConflict))

		_, err = clientInstance.ConfigureScheduler(ctx, 5)
		Expect(err.(*client.APIError).StatusCode).To(Equal(http.StatusConflict))

		// The first stage stores the following timeline, then the loop
		// waits minutes before the recommended one.
		Eventually(func() int {
			recent, err := clientInstance.RecentTweets(ctx, 10)
			if err != nil {
				return -1
			}
			return recent.Count
		}, 5*time.Second).Should(Equal(3))

		status, err = clientInstance.SchedulerStatus(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(status.Running).To(BeTrue())
		Expect(status.MinimumTweets).To(Equal(3))

		_, err = clientInstance.StopScheduler(ctx)
		Expect(err).NotTo(HaveOccurred())
		_, err = clientInstance.StopScheduler(ctx)
		Expect(err.(*client.APIError).StatusCode).To(Equal(http.StatusConflict))
	})

	It("reports counters", func() {
		_, err := clientInstance.FollowingTimeline(ctx, 1)
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() float64 {
			s, err := clientInstance.Stats(ctx)
			if err != nil {
				return 0
			}
			counters, _ := s["stats"].(map[string]any)
			v, _ := counters["tweets_inserted"].(float64)
			return v
		}, 5*time.Second).Should(BeNumerically(">=", 1))
	})
})
