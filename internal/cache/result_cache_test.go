package cache_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/masa-finance/timeline-poller/api/types"
	. "github.com/masa-finance/timeline-poller/internal/cache"
)

var _ = Describe("ResultCache", func() {
	thread := func(id string) types.Thread {
		return types.Thread{MainTweet: types.PostDetails{ID: id}, Replies: []types.PostDetails{}}
	}

	It("should set and get values", func() {
		c := NewResultCache[string, types.Thread](10, time.Minute)
		DeferCleanup(c.Close)

		c.Set("abc", thread("abc"))
		got, ok := c.Get("abc")
		Expect(ok).To(BeTrue())
		Expect(got.MainTweet.ID).To(Equal("abc"))

		_, ok = c.Get("missing")
		Expect(ok).To(BeFalse())
	})

	It("should evict oldest when max size is reached", func() {
		c := NewResultCache[string, types.Thread](3, time.Minute)
		DeferCleanup(c.Close)

		for i := 0; i < 5; i++ {
			key := string(rune('a' + i))
			c.Set(key, thread(key))
		}
		Expect(c.Len()).To(Equal(3))
		_, ok := c.Get("a")
		Expect(ok).To(BeFalse())
		_, ok = c.Get("e")
		Expect(ok).To(BeTrue())
	})

	It("should refresh an entry on rewrite", func() {
		c := NewResultCache[string, int](2, time.Minute)
		DeferCleanup(c.Close)

		c.Set("a", 1)
		c.Set("b", 2)
		c.Set("a", 3)
		c.Set("c", 4)

		got, ok := c.Get("a")
		Expect(ok).To(BeTrue())
		Expect(got).To(Equal(3))
		_, ok = c.Get("b")
		Expect(ok).To(BeFalse())
	})

	It("should evict by age", func() {
		c := NewResultCache[string, int](10, 50*time.Millisecond)
		DeferCleanup(c.Close)

		c.Set("expireme", 1)
		time.Sleep(80 * time.Millisecond)
		_, ok := c.Get("expireme")
		Expect(ok).To(BeFalse())
	})

	It("should clean up expired entries periodically", func() {
		c := NewResultCache[string, int](10, 50*time.Millisecond)
		DeferCleanup(c.Close)

		c.Set("periodic", 1)
		Eventually(c.Len, time.Second, 10*time.Millisecond).Should(BeZero())
	})

	It("should delete entries", func() {
		c := NewResultCache[string, int](10, time.Minute)
		DeferCleanup(c.Close)

		c.Set("a", 1)
		c.Delete("a")
		Expect(c.Len()).To(BeZero())
	})
})
