// The authservice binary runs the thin membership/token-minting service
// (spec §4.8): it issues tenant-bearer tokens for existing memberships.
// Credential verification itself is out of scope (see authsvc.PlainTextNotice).
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	echo "github.com/labstack/echo/v5"

	"github.com/streamrelay/platform/pkg/api"
	"github.com/streamrelay/platform/pkg/authsvc"
	"github.com/streamrelay/platform/pkg/config"
	"github.com/streamrelay/platform/pkg/database"
	"github.com/streamrelay/platform/pkg/httpauth"
	"github.com/streamrelay/platform/pkg/httpserver"
)

func main() {
	envPath := filepath.Join(config.StringOrDefault("CONFIG_DIR", "./deploy/config"), ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("could not load env file, continuing with process environment", "path", envPath, "error", err)
	}

	ctx := context.Background()

	dbCfg, err := database.LoadConfigFromEnv("AUTH_")
	if err != nil {
		slog.Error("invalid database configuration", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.Open(ctx, dbCfg, authsvc.MigrationsFS, "migrations")
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

	store := authsvc.NewStore(dbClient.DB())
	apiHandlers := authsvc.NewAPI(store, signer)

	e := echo.New()
	e.Use(api.SecurityHeaders())
	e.GET("/health", httpserver.HealthHandler("auth", dbClient))
	e.GET("/metrics", httpserver.MetricsHandler())

	apiHandlers.Register(e.Group("/api"))

	addr := ":" + config.StringOrDefault("HTTP_PORT", "8084")
	httpserver.Run(e, addr, "auth")
}
