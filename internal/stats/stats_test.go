package stats_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	. "github.com/masa-finance/timeline-poller/internal/stats"
)

var _ = Describe("StatsCollector", func() {
	It("accumulates stats sent over the channel", func() {
		c := StartCollector(8)
		c.Add(TweetsInserted, 3)
		c.Add(TweetsInserted, 2)
		c.Add(FavoritesFailed, 1)

		Eventually(func() uint { return c.Get(TweetsInserted) }).Should(Equal(uint(5)))
		Eventually(func() uint { return c.Get(FavoritesFailed) }).Should(Equal(uint(1)))
	})

	It("serializes the snapshot", func() {
		c := StartCollector(1)
		c.Add(SchedulerCycles, 1)
		Eventually(func() uint { return c.Get(SchedulerCycles) }).Should(Equal(uint(1)))

		data, err := c.Json()
		Expect(err).NotTo(HaveOccurred())

		var decoded map[string]any
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
		Expect(decoded).To(HaveKey("boot_time"))
		Expect(decoded["stats"]).To(HaveKeyWithValue("scheduler_cycles", BeNumerically("==", 1)))
	})

	It("ignores stats on a nil collector", func() {
		var c *StatsCollector
		Expect(func() { c.Add(TweetsFetched, 1) }).NotTo(Panic())
	})
})
