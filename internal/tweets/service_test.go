package tweets_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/masa-finance/timeline-poller/api/types"
	"github.com/masa-finance/timeline-poller/internal/cache"
	"github.com/masa-finance/timeline-poller/internal/store"
	"github.com/masa-finance/timeline-poller/internal/store/storetest"
	. "github.com/masa-finance/timeline-poller/internal/tweets"
	"github.com/masa-finance/timeline-poller/internal/twitter"
	"github.com/masa-finance/timeline-poller/internal/twitter/twittertest"
)

var _ = Describe("Service", func() {
	var (
		ctx      context.Context
		provider *twittertest.Provider
		st       *storetest.Memory
		sleeps   []time.Duration
		threads  *cache.ResultCache[string, types.Thread]
		mock     bool
	)

	BeforeEach(func() {
		ctx = context.Background()
		provider = &twittertest.Provider{}
		st = storetest.NewMemory()
		sleeps = nil
		mock = false
		threads = cache.NewResultCache[string, types.Thread](10, time.Minute)
		DeferCleanup(threads.Close)
	})

	newService := func() *Service {
		ex := newExecutor(provider, mock)
		rng := fixedRand{roll: 1, offset: int64(2 * time.Second)}
		return NewService(ServiceConfig{
			Executor:   ex,
			Reconciler: NewReconciler(st, &recordingDispatcher{}, WithRand(rng), WithMockMode(mock)),
			Favoriter:  NewFavoriter(ex, st, mock, nil),
			Store:      st,
			Threads:    threads,
			MockMode:   mock,
			Rand:       rng,
			Sleep: func(_ context.Context, d time.Duration) error {
				sleeps = append(sleeps, d)
				return nil
			},
		})
	}

	Describe("Search", func() {
		It("pages with a jittered pause until the minimum is reached", func() {
			var cursors []string
			provider.SearchFunc = func(query string, count int, cursor string) (twitter.Page, error) {
				Expect(query).To(Equal("golang"))
				cursors = append(cursors, cursor)
				if cursor == "" {
					return twitter.Page{Posts: twittertest.Posts(1, 1, 2, 3), NextCursor: "c1"}, nil
				}
				return twitter.Page{Posts: twittertest.Posts(4, 4, 5, 6), NextCursor: "c2"}, nil
			}

			posts, err := newService().Search(ctx, "golang", 4)
			Expect(err).NotTo(HaveOccurred())
			Expect(posts).To(HaveLen(4))
			Expect(cursors).To(Equal([]string{"", "c1"}))
			Expect(sleeps).To(Equal([]time.Duration{7 * time.Second}))

			stored, err := st.Recent(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(HaveLen(4))
		})

		It("stops when the listing runs dry", func() {
			provider.SearchFunc = func(_ string, _ int, cursor string) (twitter.Page, error) {
				if cursor == "" {
					return twitter.Page{Posts: twittertest.Posts(1, 1, 2), NextCursor: "c1"}, nil
				}
				return twitter.Page{}, nil
			}

			posts, err := newService().Search(ctx, "golang", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(posts).To(HaveLen(2))
			Expect(provider.Calls("SearchTweets")).To(Equal(2))
		})

		It("stops when the listing repeats its cursor", func() {
			provider.SearchFunc = func(_ string, _ int, cursor string) (twitter.Page, error) {
				if cursor == "" {
					return twitter.Page{Posts: twittertest.Posts(1, 1), NextCursor: "stuck"}, nil
				}
				return twitter.Page{Posts: []twitter.RawPost{&twittertest.Post{ID: "9"}}, NextCursor: "stuck"}, nil
			}

			posts, err := newService().Search(ctx, "golang", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(posts).To(HaveLen(1))
			Expect(provider.Calls("SearchTweets")).To(Equal(2))
			Expect(sleeps).To(HaveLen(1))
		})

		It("rejects an empty query", func() {
			_, err := newService().Search(ctx, "  ", 10)
			Expect(err).To(MatchError(twitter.ErrClient))
			Expect(provider.Calls("SearchTweets")).To(BeZero())
		})

		It("surfaces classified provider errors and stores nothing", func() {
			provider.SearchFunc = func(string, int, string) (twitter.Page, error) {
				return twitter.Page{}, &twitter.ProviderError{Condition: twitter.ConditionServerError, Message: "boom"}
			}
			_, err := newService().Search(ctx, "golang", 10)
			Expect(err).To(MatchError(twitter.ErrTransient))
			Expect(st.Calls("BulkInsert")).To(BeZero())
		})
	})

	Describe("timelines", func() {
		It("skips unattributed posts and reconciles the rest", func() {
			provider.FollowingFunc = func(count int, _ string) (twitter.Page, error) {
				Expect(count).To(Equal(3))
				posts := twittertest.Posts(1, 5, 6)
				posts = append(posts, &twittertest.Post{ID: "3"})
				return twitter.Page{Posts: posts}, nil
			}

			posts, err := newService().FollowingTimeline(ctx, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(posts).To(HaveLen(2))
			Expect(st.Calls("BulkInsert")).To(Equal(1))
		})

		It("reads the recommended timeline from its own listing", func() {
			provider.RecommendedFunc = func(int, string) (twitter.Page, error) {
				return twitter.Page{Posts: twittertest.Posts(10, 1)}, nil
			}
			posts, err := newService().RecommendedTimeline(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(posts).To(HaveLen(1))
			Expect(provider.Calls("FollowingTimeline")).To(BeZero())
		})
	})

	Describe("Thread", func() {
		It("returns the tweet with its replies and caches the result", func() {
			provider.RepliesFunc = func(id, _ string) (twitter.Page, error) {
				reply := twittertest.NewPost("11", 0)
				reply.Body = "@author10 agreed"
				reply.Reply = &twitter.ReplyRef{StatusID: id}
				return twitter.Page{Posts: []twitter.RawPost{twittertest.NewPost(id, 3), reply}}, nil
			}
			svc := newService()

			thread, err := svc.Thread(ctx, "10")
			Expect(err).NotTo(HaveOccurred())
			Expect(thread.MainTweet.ID).To(Equal("10"))
			Expect(thread.Replies).To(HaveLen(1))
			Expect(thread.Replies[0].DisplayText).To(Equal("agreed"))

			_, err = svc.Thread(ctx, "10")
			Expect(err).NotTo(HaveOccurred())
			Expect(provider.Calls("GetTweet")).To(Equal(1))
		})
	})

	Describe("CreatePost", func() {
		It("is disabled in mock mode", func() {
			mock = true
			_, err := newService().CreatePost(ctx, "hello", "")
			Expect(err).To(MatchError(twitter.ErrMockDisabled))
			Expect(provider.Calls("CreateTweet")).To(BeZero())
		})

		It("returns the created tweet", func() {
			d, err := newService().CreatePost(ctx, "hello", "42")
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Text).To(Equal("hello"))
			Expect(d.InReplyToStatusID).To(Equal("42"))
		})
	})

	Describe("ProcessNotification", func() {
		It("only acknowledges in mock mode", func() {
			mock = true
			res, err := newService().ProcessNotification(ctx, types.NotificationPayload{ID: "77"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal("success"))
			Expect(res.TweetID).To(Equal("77"))
			Expect(res.TweetDetails).To(BeNil())
			Expect(provider.Calls("GetTweet")).To(BeZero())
		})

		It("resolves the referenced tweet", func() {
			provider.GetTweetFunc = func(id string) (twitter.RawPost, error) {
				p := twittertest.NewPost(id, 2)
				p.Body = "@poller hi"
				p.Reply = &twitter.ReplyRef{StatusID: "1"}
				return p, nil
			}
			res, err := newService().ProcessNotification(ctx, types.NotificationPayload{ID: "77"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.TweetDetails).NotTo(BeNil())
			Expect(res.TweetDetails.DisplayText).To(Equal("hi"))
		})
	})

	Describe("stored tweets", func() {
		It("reads back what was reconciled", func() {
			provider.FollowingFunc = func(int, string) (twitter.Page, error) {
				return twitter.Page{Posts: twittertest.Posts(1, 5)}, nil
			}
			svc := newService()
			_, err := svc.FollowingTimeline(ctx, 1)
			Expect(err).NotTo(HaveOccurred())

			p, err := svc.Get(ctx, "1")
			Expect(err).NotTo(HaveOccurred())
			Expect(p.AuthorHandle).To(Equal("author1"))

			_, err = svc.Get(ctx, "nope")
			Expect(err).To(MatchError(store.ErrNotFound))
			Expect(IsNotFound(err)).To(BeTrue())

			recent, err := svc.Recent(ctx, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(recent).To(HaveLen(1))
		})

		It("favorites on demand", func() {
			st = storetest.NewMemory(postsWith(1, 5)...)
			Expect(newService().Favorite(ctx, "1")).To(Succeed())
			p, _ := st.Post("1")
			Expect(p.IsLiked).To(BeTrue())
		})
	})
})
