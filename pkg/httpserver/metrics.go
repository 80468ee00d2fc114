package httpserver

import (
	echo "github.com/labstack/echo/v5"

	"github.com/streamrelay/platform/pkg/metrics"
)

// MetricsHandler adapts the shared Prometheus handler to echo's handler
// signature so every service mounts an identical GET /metrics.
func MetricsHandler() echo.HandlerFunc {
	h := metrics.Handler()
	return func(c *echo.Context) error {
		h.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}
