// The ingestor binary runs the Livestream Ingestor service (spec §4.1):
// it connects to livestream sources, normalizes their events, and publishes
// them onto the per-tenant event broker.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	echo "github.com/labstack/echo/v5"
	"github.com/redis/go-redis/v9"

	"github.com/streamrelay/platform/pkg/api"
	"github.com/streamrelay/platform/pkg/broker"
	"github.com/streamrelay/platform/pkg/config"
	"github.com/streamrelay/platform/pkg/database"
	"github.com/streamrelay/platform/pkg/httpauth"
	"github.com/streamrelay/platform/pkg/httpserver"
	"github.com/streamrelay/platform/pkg/ingestor"
)

func main() {
	envPath := filepath.Join(config.StringOrDefault("CONFIG_DIR", "./deploy/config"), ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("could not load env file, continuing with process environment", "path", envPath, "error", err)
	}

	ctx := context.Background()

	dbCfg, err := database.LoadConfigFromEnv("INGESTOR_")
	if err != nil {
		slog.Error("invalid database configuration", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.Open(ctx, dbCfg, ingestor.MigrationsFS, "migrations")
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	rdb := redis.NewClient(&redis.Options{Addr: config.StringOrDefault("REDIS_ADDR", "localhost:6379")})
	defer rdb.Close()

	jwtSecret, err := config.Require("JWT_SECRET")
	if err != nil {
		slog.Error("missing required configuration", "error", err)
		os.Exit(1)
	}
	signer := httpauth.NewSigner([]byte(jwtSecret))

	store := ingestor.NewStore(dbClient.DB())
	publisher := ingestor.NewPublisher(broker.New(rdb, 0))
	// The real third-party livestream client plugs in here (spec §1); none
	// ships with this repo, so the ingestor runs against a deterministic
	// in-process fake until one is wired.
	manager := ingestor.NewManager(ingestor.NewFakeClient(), store, publisher)
	apiHandlers := ingestor.NewAPI(manager)

	e := echo.New()
	e.Use(api.SecurityHeaders())
	e.GET("/health", httpserver.HealthHandler("ingestor", dbClient))
	e.GET("/metrics", httpserver.MetricsHandler())

	v1 := e.Group("/api", httpauth.RequireBearer(signer))
	apiHandlers.Register(v1)

	addr := ":" + config.StringOrDefault("HTTP_PORT", "8081")
	httpserver.Run(e, addr, "ingestor")
}
