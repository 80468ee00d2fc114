package httpserver

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/streamrelay/platform/pkg/database"
)

// healthTimeout bounds the database ping a /health check performs.
const healthTimeout = 5 * time.Second

type healthResponse struct {
	Status   string                 `json:"status"`
	Service  string                 `json:"service"`
	Database *database.HealthStatus `json:"database,omitempty"`
}

// HealthHandler returns an echo handler for GET /health that pings db and
// reports its pool stats alongside the service name (spec EXPANSION:
// ambient /health surface).
func HealthHandler(serviceName string, db *database.Client) echo.HandlerFunc {
	return func(c *echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		dbHealth, err := database.Health(ctx, db.DB())
		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, healthResponse{
				Status:   "unhealthy",
				Service:  serviceName,
				Database: dbHealth,
			})
		}
		return c.JSON(http.StatusOK, healthResponse{
			Status:   "healthy",
			Service:  serviceName,
			Database: dbHealth,
		})
	}
}
