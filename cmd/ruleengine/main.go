// The ruleengine binary runs the Rule Engine service (spec §4.3/§4.4): it
// discovers active tenants, consumes their event streams, evaluates rules,
// and executes matched actions.
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
	"github.com/streamrelay/platform/pkg/ruleengine"
)

func main() {
	envPath := filepath.Join(config.StringOrDefault("CONFIG_DIR", "./deploy/config"), ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("could not load env file, continuing with process environment", "path", envPath, "error", err)
	}

	ctx := context.Background()

	dbCfg, err := database.LoadConfigFromEnv("RULEENGINE_")
	if err != nil {
		slog.Error("invalid database configuration", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.Open(ctx, dbCfg, ruleengine.MigrationsFS, "migrations")
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	rdb := redis.NewClient(&redis.Options{Addr: config.StringOrDefault("REDIS_ADDR", "localhost:6379")})
	defer rdb.Close()
	b := broker.New(rdb, 0)

	jwtSecret, err := config.Require("JWT_SECRET")
	if err != nil {
		slog.Error("missing required configuration", "error", err)
		os.Exit(1)
	}
	signer := httpauth.NewSigner([]byte(jwtSecret))

	deviceServiceURL := config.StringOrDefault("DEVICE_SERVICE_URL", "http://device:8082")

	store := ruleengine.NewStore(dbClient.DB())
	executor := ruleengine.NewExecutor(store, ruleengine.LoggingNotifier{}, func(tenant string) string {
		return deviceServiceURL + "/api/webhook/control"
	})
	consumer := ruleengine.NewConsumer(store, b, store, executor)

	shardIndex, err := config.IntOrDefault("RULEENGINE_SHARD_INDEX", 0)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	shardCount, err := config.IntOrDefault("RULEENGINE_SHARD_COUNT", 1)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	consumer.SetShard(shardIndex, shardCount)

	iotBridgeEnabled, err := config.BoolOrDefault("IOT_BRIDGE_ENABLED", false)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if iotBridgeEnabled {
		consumer.SetGiftBridge(ruleengine.NewGiftBridge(b))
	}
	consumer.Start(ctx)
	defer consumer.Stop()

	apiHandlers := ruleengine.NewAPI(store)

	e := echo.New()
	e.Use(api.SecurityHeaders())
	e.GET("/health", httpserver.HealthHandler("ruleengine", dbClient))
	e.GET("/metrics", httpserver.MetricsHandler())

	v1 := e.Group("/api", httpauth.RequireBearer(signer))
	apiHandlers.Register(v1)

	addr := ":" + config.StringOrDefault("HTTP_PORT", "8083")
	httpserver.Run(e, addr, "ruleengine")
}
