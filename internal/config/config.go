package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const defaultDataDir = "/home/masa"
const defaultListenAddress = ":8080"

// Configuration is the flat key/value view of the process environment.
// Typed views are built from it with the Get*Config helpers.
type Configuration map[string]any

func ReadConfig() Configuration {
	c := Configuration{}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = defaultDataDir
		if err := os.Setenv("DATA_DIR", dataDir); err != nil {
			logrus.Fatalf("Failed to set DATA_DIR: %v", err)
		}
	}
	c["data_dir"] = dataDir

	// Read the env file. A missing file is fine, the process env still applies.
	if err := godotenv.Load(filepath.Join(dataDir, ".env")); err != nil {
		logrus.WithError(err).Debug("No .env file loaded, reading from environment variables")
	}

	level := ParseLogLevel(os.Getenv("LOG_LEVEL"))
	c["log_level"] = level.String()
	SetLogLevel(level)

	c["stats_buf_size"] = uint(envInt("STATS_BUF_SIZE", 128))

	listenAddress := os.Getenv("LISTEN_ADDRESS")
	if listenAddress == "" {
		listenAddress = defaultListenAddress
	}
	c["listen_address"] = listenAddress

	if apiKey := os.Getenv("API_KEY"); apiKey != "" {
		c["api_key"] = apiKey
	}

	c["twitter_username"] = os.Getenv("TWITTER_USERNAME")
	c["twitter_email"] = os.Getenv("TWITTER_EMAIL")
	c["twitter_password"] = os.Getenv("TWITTER_PASSWORD")
	c["twitter_cookie_file"] = os.Getenv("TWITTER_COOKIE_FILE")
	c["twitter_skip_login_verification"] = os.Getenv("TWITTER_SKIP_LOGIN_VERIFICATION") == "true"
	c["use_twitter_mocks"] = strings.ToLower(os.Getenv("USE_TWITTER_MOCKS")) == "true"

	storeDriver := os.Getenv("STORE_DRIVER")
	if storeDriver == "" {
		storeDriver = "sqlite"
	}
	c["store_driver"] = storeDriver
	c["store_dsn"] = os.Getenv("STORE_DSN")

	reconcileMode := os.Getenv("RECONCILE_MODE")
	if reconcileMode == "" {
		reconcileMode = "partition"
	}
	c["reconcile_mode"] = reconcileMode

	c["scheduler_autostart"] = os.Getenv("SCHEDULER_AUTOSTART") == "true"
	c["scheduler_minimum_tweets"] = envInt("SCHEDULER_MINIMUM_TWEETS", 10)

	if queries := os.Getenv("SEARCH_WATCH_QUERIES"); queries != "" {
		c["search_watch_queries"] = splitTrim(queries)
	} else {
		c["search_watch_queries"] = []string{}
	}
	c["search_watch_schedule"] = os.Getenv("SEARCH_WATCH_SCHEDULE")

	if redisURI := os.Getenv("REDIS_URI"); redisURI != "" {
		logrus.Info("Redis URI found, favorites will be queued")
		c["redis_uri"] = redisURI
	}
	c["queue_concurrency"] = envInt("QUEUE_CONCURRENCY", 1)

	c["thread_cache_max_size"] = envInt("THREAD_CACHE_MAX_SIZE", 1000)
	c["thread_cache_max_age_seconds"] = time.Duration(envInt("THREAD_CACHE_MAX_AGE_SECONDS", 600)) * time.Second

	c["profiling_enabled"] = os.Getenv("ENABLE_PPROF") == "true"

	return c
}

func envInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		logrus.Errorf("Error parsing %s=%q. Setting to default %d.", key, s, def)
		return def
	}
	return v
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c Configuration) DataDir() string {
	return c.GetString("data_dir", defaultDataDir)
}

func (c Configuration) ListenAddress() string {
	return c.GetString("listen_address", defaultListenAddress)
}

func (c Configuration) MockMode() bool {
	return c.GetBool("use_twitter_mocks", false)
}

// GetInt safely extracts an int from Configuration, with a default fallback
func (c Configuration) GetInt(key string, def int) (int, error) {
	if v, ok := c[key]; ok {
		switch val := v.(type) {
		case int:
			return val, nil
		case int64:
			return int(val), nil
		case uint:
			return int(val), nil
		case float64:
			return int(val), nil
		default:
			return def, fmt.Errorf("value %v for key %q cannot be converted to int", val, key)
		}
	}
	return def, nil
}

func (c Configuration) GetDuration(key string, defSecs int) time.Duration {
	if v, ok := c[key]; ok {
		if val, ok := v.(time.Duration); ok {
			return val
		}
	}
	return time.Duration(defSecs) * time.Second
}

func (c Configuration) GetString(key string, def string) string {
	if v, ok := c[key]; ok {
		if val, ok := v.(string); ok {
			return val
		}
	}
	return def
}

// GetStringSlice safely extracts a string slice from Configuration, with a default fallback
func (c Configuration) GetStringSlice(key string, def []string) []string {
	if v, ok := c[key]; ok {
		if val, ok := v.([]string); ok {
			return val
		}
	}
	return def
}

// GetBool safely extracts a bool from Configuration, with a default fallback
func (c Configuration) GetBool(key string, def bool) bool {
	if v, ok := c[key]; ok {
		if val, ok := v.(bool); ok {
			return val
		}
	}
	return def
}

// TwitterConfig holds what the session manager needs to log in and
// persist its cookies.
type TwitterConfig struct {
	Username              string
	Email                 string
	Password              string
	CookieFile            string
	DataDir               string
	SkipLoginVerification bool
	MockMode              bool
}

func (c Configuration) GetTwitterConfig() TwitterConfig {
	dataDir := c.DataDir()
	cookieFile := c.GetString("twitter_cookie_file", "")
	if cookieFile == "" {
		cookieFile = filepath.Join(dataDir, "cookies.json")
	}
	return TwitterConfig{
		Username:              c.GetString("twitter_username", ""),
		Email:                 c.GetString("twitter_email", ""),
		Password:              c.GetString("twitter_password", ""),
		CookieFile:            cookieFile,
		DataDir:               dataDir,
		SkipLoginVerification: c.GetBool("twitter_skip_login_verification", false),
		MockMode:              c.MockMode(),
	}
}

type StoreConfig struct {
	Driver string
	DSN    string
}

// GetStoreConfig defaults to a SQLite file under the data dir.
func (c Configuration) GetStoreConfig() StoreConfig {
	driver := c.GetString("store_driver", "sqlite")
	dsn := c.GetString("store_dsn", "")
	if dsn == "" && driver == "sqlite" {
		dsn = filepath.Join(c.DataDir(), "tweets.db")
	}
	return StoreConfig{Driver: driver, DSN: dsn}
}

type SchedulerConfig struct {
	Autostart     bool
	MinimumTweets int
	WatchQueries  []string
	WatchSchedule string
}

func (c Configuration) GetSchedulerConfig() SchedulerConfig {
	minimum, err := c.GetInt("scheduler_minimum_tweets", 10)
	if err != nil {
		logrus.WithError(err).Warn("Invalid scheduler_minimum_tweets, using default")
	}
	schedule := c.GetString("search_watch_schedule", "")
	if schedule == "" {
		schedule = "@every 1h"
	}
	return SchedulerConfig{
		Autostart:     c.GetBool("scheduler_autostart", false),
		MinimumTweets: minimum,
		WatchQueries:  c.GetStringSlice("search_watch_queries", []string{}),
		WatchSchedule: schedule,
	}
}

// QueueConfig is empty when favorites run inline.
type QueueConfig struct {
	RedisURI    string
	Concurrency int
}

func (c Configuration) GetQueueConfig() QueueConfig {
	concurrency, err := c.GetInt("queue_concurrency", 1)
	if err != nil || concurrency <= 0 {
		concurrency = 1
	}
	return QueueConfig{
		RedisURI:    c.GetString("redis_uri", ""),
		Concurrency: concurrency,
	}
}

// ParseLogLevel parses a string and returns the corresponding logrus.Level.
func ParseLogLevel(logLevel string) logrus.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		if logLevel != "" {
			logrus.Error("Invalid log level ", logLevel, ", setting to ", logrus.InfoLevel.String())
		}
		return logrus.InfoLevel
	}
}

// SetLogLevel sets the log level for the application.
func SetLogLevel(level logrus.Level) {
	logrus.SetLevel(level)
}
