package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/masa-finance/timeline-poller/internal/config"
	"github.com/masa-finance/timeline-poller/internal/health"
	"github.com/masa-finance/timeline-poller/internal/scheduler"
	"github.com/masa-finance/timeline-poller/internal/stats"
	"github.com/masa-finance/timeline-poller/internal/tweets"
)

const verifyInterval = time.Minute

// Dependencies are the long-lived components the HTTP surface drives.
type Dependencies struct {
	Service   *tweets.Service
	Scheduler *scheduler.Scheduler
	Health    *health.Tracker
	Verifier  *health.ComponentVerifier
	Stats     *stats.StatsCollector
}

// NewServer builds the echo instance with every route registered.
func NewServer(cfg config.Configuration, deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	switch strings.ToLower(cfg.GetString("log_level", "info")) {
	case "debug":
		e.Logger.SetLevel(log.DEBUG)
	case "warn", "warning":
		e.Logger.SetLevel(log.WARN)
	case "error":
		e.Logger.SetLevel(log.ERROR)
	default:
		e.Logger.SetLevel(log.INFO)
	}

	healthMetrics := NewHealthMetrics()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(APIKeyAuthMiddleware(cfg))
	e.Use(HealthMetricsMiddleware(healthMetrics))

	// Health check endpoints (no auth required)
	e.GET(HealthCheckPath, healthz())
	e.GET(ReadinessCheckPath, readyz(deps.Health, healthMetrics))
	e.GET("/stats", statsHandler(deps.Stats))

	if cfg.GetBool("profiling_enabled", false) {
		enableProfiling(e)
	}
	debug := e.Group("/debug/pprof")
	debug.POST("/enable", func(c echo.Context) error {
		enableProfiling(e)
		return c.String(http.StatusOK, "pprof enabled")
	})
	debug.POST("/disable", func(c echo.Context) error {
		disableProfiling(e)
		return c.String(http.StatusOK, "pprof disabled")
	})

	/*
		- POST /tweets/search_tweets: search and reconcile
		- POST /tweets/timeline: recommended timeline
		- POST /tweets/latest_timeline: following timeline
		- POST /tweets/favorite/:tweet_id: favorite now
		- GET  /tweets/thread/:tweet_id: tweet with its replies
		- POST /tweets/create: publish a tweet or reply
		- GET  /tweets/recent: most recently discovered stored tweets
		- GET  /tweets/:tweet_id: one stored tweet
	*/
	tw := e.Group("/tweets")
	tw.POST("/search_tweets", searchTweets(deps.Service))
	tw.POST("/timeline", recommendedTimeline(deps.Service))
	tw.POST("/latest_timeline", followingTimeline(deps.Service))
	tw.POST("/favorite/:tweet_id", favoriteTweet(deps.Service))
	tw.GET("/thread/:tweet_id", tweetThread(deps.Service))
	tw.POST("/create", createTweet(deps.Service))
	tw.GET("/recent", recentTweets(deps.Service))
	tw.GET("/:tweet_id", getTweet(deps.Service))

	e.POST("/notifications", notification(deps.Service))

	sched := e.Group("/scheduler")
	sched.POST("/start", startScheduler(deps.Scheduler))
	sched.POST("/stop", stopScheduler(deps.Scheduler))
	sched.POST("/config", configureScheduler(deps.Scheduler))
	sched.GET("/status", schedulerStatus(deps.Scheduler))

	return e
}

// Start serves the API on the configured listen address until ctx is done.
func Start(ctx context.Context, cfg config.Configuration, deps Dependencies) error {
	e := NewServer(cfg, deps)

	if deps.Verifier != nil {
		deps.Verifier.VerifyAll(ctx)
		deps.Verifier.StartReconciliationLoop(ctx, verifyInterval)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			e.Logger.Error("Failed to shut down Echo server: ", err)
		}
	}()

	listenAddress := cfg.ListenAddress()
	e.Logger.Info(fmt.Sprintf("Starting server on %s", listenAddress))
	if err := e.Start(listenAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
		e.Logger.Error(err)
		return err
	}
	return nil
}

// enableProfiling registers the pprof handlers once and turns the
// expensive probes on.
func enableProfiling(e *echo.Echo) {
	e.Logger.Info("Enabling profiling - this may impact performance")

	// Sample time in nanoseconds, see https://github.com/DataDog/go-profiler-notes/blob/main/block.md#usage
	runtime.SetBlockProfileRate(500)
	runtime.SetMutexProfileFraction(1)

	if !profilingRegistered(e) {
		pprof.Register(e)
	}
}

func disableProfiling(e *echo.Echo) {
	e.Logger.Info("Disabling performance-intensive profiling probes")

	// The endpoints stay registered; only the sampling is switched off.
	runtime.SetBlockProfileRate(0)
	runtime.SetMutexProfileFraction(0)
}

func profilingRegistered(e *echo.Echo) bool {
	for _, r := range e.Routes() {
		if r.Method == http.MethodGet && r.Path == pprof.DefaultPrefix+"/" {
			return true
		}
	}
	return false
}
