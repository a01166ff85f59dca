package stats

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/masa-finance/timeline-poller/internal/versioning"
	"github.com/sirupsen/logrus"
)

// These are the types of statistics that we can add. The value is the JSON key that will be used for serialization.
type StatType string

const (
	ProviderCalls      StatType = "provider_calls"
	ProviderErrors     StatType = "provider_errors"
	AuthErrors         StatType = "auth_errors"
	RateLimitErrors    StatType = "ratelimit_errors"
	TweetsFetched      StatType = "tweets_fetched"
	TweetsSkipped      StatType = "tweets_skipped"
	TweetsInserted     StatType = "tweets_inserted"
	TweetsUpdated      StatType = "tweets_updated"
	ReconcileFailures  StatType = "reconcile_failures"
	FavoritesQueued    StatType = "favorites_queued"
	FavoritesSucceeded StatType = "favorites_succeeded"
	FavoritesFailed    StatType = "favorites_failed"
	SchedulerCycles    StatType = "scheduler_cycles"
	SchedulerFailures  StatType = "scheduler_failures"
	SearchWatchRuns    StatType = "search_watch_runs"
)

// AddStat is the message sent to the collector goroutine
type AddStat struct {
	Type StatType
	Num  uint
}

// Stats is the structure we use to store the statistics
type Stats struct {
	BootTimeUnix       int64             `json:"boot_time"`
	LastOperationUnix  int64             `json:"last_operation_time"`
	CurrentTimeUnix    int64             `json:"current_time"`
	Stats              map[StatType]uint `json:"stats"`
	ApplicationVersion string            `json:"application_version"`
	sync.Mutex
}

// StatsCollector is the object used to collect statistics
type StatsCollector struct {
	Stats *Stats
	Chan  chan AddStat
}

// StartCollector starts a goroutine that listens to a channel for AddStat messages and updates the stats accordingly.
func StartCollector(bufSize uint) *StatsCollector {
	logrus.Info("Starting stats collector")

	s := Stats{
		BootTimeUnix:       time.Now().Unix(),
		Stats:              make(map[StatType]uint),
		ApplicationVersion: versioning.Version(),
	}

	ch := make(chan AddStat, bufSize)

	go func(s *Stats, ch chan AddStat) {
		for stat := range ch {
			s.Lock()
			s.LastOperationUnix = time.Now().Unix()
			s.Stats[stat.Type] += stat.Num
			s.Unlock()
			logrus.Debugf("Added %d to stat %s", stat.Num, stat.Type)
		}
	}(&s, ch)

	return &StatsCollector{Stats: &s, Chan: ch}
}

// Json returns the current statistics as a JSON byte array
func (s *StatsCollector) Json() ([]byte, error) {
	s.Stats.Lock()
	defer s.Stats.Unlock()
	s.Stats.CurrentTimeUnix = time.Now().Unix()
	return json.Marshal(s.Stats)
}

// Add is a convenience method to add a number to a statistic. A nil
// collector discards the stat.
func (s *StatsCollector) Add(typ StatType, num uint) {
	if s == nil || num == 0 {
		return
	}
	s.Chan <- AddStat{Type: typ, Num: num}
}

// Get returns the current value of a single statistic.
func (s *StatsCollector) Get(typ StatType) uint {
	s.Stats.Lock()
	defer s.Stats.Unlock()
	return s.Stats.Stats[typ]
}
