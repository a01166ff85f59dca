package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/masa-finance/timeline-poller/internal/config"
)

const HealthCheckPath = "/healthz"
const ReadinessCheckPath = "/readyz"

// trackedPrefixes are the paths whose outcome feeds the readiness error rate.
var trackedPrefixes = []string{"/tweets/", "/notifications", "/scheduler/"}

// APIKeyAuthMiddleware returns an Echo middleware that checks for the API key in the request headers.
func APIKeyAuthMiddleware(cfg config.Configuration) echo.MiddlewareFunc {
	apiKey := cfg.GetString("api_key", "")
	if apiKey == "" {
		// No API key set; allow all requests (no-op)
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Skip auth for health check endpoints
			path := c.Request().URL.Path
			if path == HealthCheckPath || path == ReadinessCheckPath {
				return next(c)
			}

			// Check Authorization: Bearer <API_KEY> or X-API-Key header
			header := c.Request().Header.Get("Authorization")
			if header == "Bearer "+apiKey {
				return next(c)
			}
			if c.Request().Header.Get("X-API-Key") == apiKey {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid API key")
		}
	}
}

// HealthMetricsMiddleware tracks success and error rates for readiness probe
func HealthMetricsMiddleware(healthMetrics *HealthMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			err := next(c)

			if !tracked(path) {
				return err
			}

			statusCode := c.Response().Status
			if err != nil {
				statusCode = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					statusCode = he.Code
				}
			}
			// 4xx responses are the caller's fault and are not counted
			if statusCode >= 500 {
				healthMetrics.RecordError()
			} else if statusCode >= 200 && statusCode < 400 {
				healthMetrics.RecordSuccess()
			}
			return err
		}
	}
}

func tracked(path string) bool {
	for _, p := range trackedPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
