package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/masa-finance/timeline-poller/internal/health"
	"github.com/masa-finance/timeline-poller/internal/stats"
)

const serviceName = "timeline-poller"

// HealthMetrics tracks health-related metrics for the service
type HealthMetrics struct {
	mu             sync.RWMutex
	errorCount     int
	successCount   int
	windowStart    time.Time
	windowDuration time.Duration
	errorThreshold float64
}

// NewHealthMetrics creates a new health metrics tracker
func NewHealthMetrics() *HealthMetrics {
	return &HealthMetrics{
		windowStart:    time.Now(),
		windowDuration: 10 * time.Minute,
		errorThreshold: 0.95,
	}
}

func (hm *HealthMetrics) RecordSuccess() {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.checkAndResetWindow()
	hm.successCount++
}

func (hm *HealthMetrics) RecordError() {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.checkAndResetWindow()
	hm.errorCount++
}

// checkAndResetWindow resets the metrics window if it has expired
func (hm *HealthMetrics) checkAndResetWindow() {
	if time.Since(hm.windowStart) > hm.windowDuration {
		hm.errorCount = 0
		hm.successCount = 0
		hm.windowStart = time.Now()
	}
}

// IsHealthy checks if the service is healthy based on error rate
func (hm *HealthMetrics) IsHealthy() bool {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	total := hm.errorCount + hm.successCount
	if total == 0 {
		return true
	}
	return float64(hm.errorCount)/float64(total) < hm.errorThreshold
}

// GetStats returns current health statistics
func (hm *HealthMetrics) GetStats() map[string]interface{} {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	total := hm.errorCount + hm.successCount
	errorRate := 0.0
	if total > 0 {
		errorRate = float64(hm.errorCount) / float64(total)
	}

	return map[string]interface{}{
		"error_count":     hm.errorCount,
		"success_count":   hm.successCount,
		"total_count":     total,
		"error_rate":      errorRate,
		"window_start":    hm.windowStart.Format(time.RFC3339),
		"window_duration": hm.windowDuration.String(),
	}
}

// healthz is the liveness probe endpoint
func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": serviceName,
		})
	}
}

// readyz is the readiness probe endpoint. The store must have been
// verified, a known-bad session fails readiness, and so does a high API
// error rate. Scheduler failures are retried internally and only reported.
func readyz(tracker *health.Tracker, healthMetrics *HealthMetrics) echo.HandlerFunc {
	return func(c echo.Context) error {
		checks := map[string]interface{}{}
		resp := map[string]interface{}{
			"service": serviceName,
			"ready":   true,
			"checks":  checks,
		}
		notReady := func() error {
			resp["ready"] = false
			return c.JSON(http.StatusServiceUnavailable, resp)
		}

		if tracker == nil {
			checks["components"] = "not initialized"
			return notReady()
		}

		statuses := tracker.GetAllStatuses()
		checks["components"] = statuses

		if !tracker.Healthy(health.ComponentStore) {
			checks[health.ComponentStore] = "unavailable"
			return notReady()
		}
		checks[health.ComponentStore] = "ok"

		if s, ok := statuses[health.ComponentSession]; ok && !s.IsHealthy {
			checks[health.ComponentSession] = "unauthenticated"
			return notReady()
		}

		checks["stats"] = healthMetrics.GetStats()
		if !healthMetrics.IsHealthy() {
			checks["error_rate"] = "unhealthy"
			return notReady()
		}
		checks["error_rate"] = "healthy"

		return c.JSON(http.StatusOK, resp)
	}
}

func statsHandler(collector *stats.StatsCollector) echo.HandlerFunc {
	return func(c echo.Context) error {
		if collector == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "stats collector not running"})
		}
		data, err := collector.Json()
		if err != nil {
			return err
		}
		return c.JSONBlob(http.StatusOK, data)
	}
}
