// The deviceservice binary runs the Device Command Router service (spec
// §4.5/§4.6): device/client identity, the agent WebSocket endpoints, and the
// at-least-once command lifecycle.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	echo "github.com/labstack/echo/v5"

	"github.com/streamrelay/platform/pkg/api"
	"github.com/streamrelay/platform/pkg/config"
	"github.com/streamrelay/platform/pkg/database"
	"github.com/streamrelay/platform/pkg/device"
	"github.com/streamrelay/platform/pkg/httpauth"
	"github.com/streamrelay/platform/pkg/httpserver"
)

func main() {
	envPath := filepath.Join(config.StringOrDefault("CONFIG_DIR", "./deploy/config"), ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("could not load env file, continuing with process environment", "path", envPath, "error", err)
	}

	ctx := context.Background()

	dbCfg, err := database.LoadConfigFromEnv("DEVICE_")
	if err != nil {
		slog.Error("invalid database configuration", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.Open(ctx, dbCfg, device.MigrationsFS, "migrations")
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	jwtSecret, err := config.Require("JWT_SECRET")
	if err != nil {
		slog.Error("missing required configuration", "error", err)
		os.Exit(1)
	}
	signer := httpauth.NewSigner([]byte(jwtSecret))

	hostClientSecret, err := config.Require("HOST_CLIENT_SECRET")
	if err != nil {
		slog.Error("missing required configuration", "error", err)
		os.Exit(1)
	}
	device.SetHostClientSecret([]byte(hostClientSecret))

	store := device.NewStore(dbClient.DB())
	registry := device.NewRegistry()
	router := device.NewRouter(store, registry)
	apiHandlers := device.NewAPI(store, router)
	wsHandlers := device.NewWSHandlers(registry, router, store)

	dashboardHub := device.NewDashboardHub()
	router.SetDashboardHub(dashboardHub)
	wsHandlers.SetDashboardHub(dashboardHub)

	e := echo.New()
	e.Use(api.SecurityHeaders())
	e.GET("/health", httpserver.HealthHandler("device", dbClient))
	e.GET("/metrics", httpserver.MetricsHandler())

	// Agent WebSocket endpoints authenticate by device/host-client token in
	// the path, not the tenant bearer middleware — mounted unauthenticated.
	wsHandlers.Register(e.Group(""))

	v1 := e.Group("/api", httpauth.RequireBearer(signer))
	apiHandlers.Register(v1)
	wsHandlers.RegisterDashboard(v1)

	// The Rule Engine's device_control action posts here directly, with the
	// tenant in the body rather than a bearer token (see webhookControl).
	apiHandlers.RegisterWebhook(e.Group("/api"))

	addr := ":" + config.StringOrDefault("HTTP_PORT", "8082")
	httpserver.Run(e, addr, "device")
}
