// Package httpserver runs an echo.Echo for the lifetime of a process: start
// it in the background, block until SIGINT/SIGTERM, then shut it down with a
// bounded grace period. Every cmd/ binary in this repo uses it so the
// start/stop shape doesn't drift between services (grounded on the teacher's
// pkg/api.Server Start/Shutdown split in cmd/tarsy/main.go).
package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	echo "github.com/labstack/echo/v5"
)

// shutdownGrace bounds how long in-flight requests get to finish once a
// shutdown signal arrives.
const shutdownGrace = 10 * time.Second

// Run starts e listening on addr in the background and blocks until the
// process receives SIGINT or SIGTERM, then gracefully shuts it down.
func Run(e *echo.Echo, addr, serviceName string) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("service listening", "service", serviceName, "addr", addr)
	sc := echo.StartConfig{
		Address:         addr,
		GracefulTimeout: shutdownGrace,
		OnShutdownError: func(err error) {
			slog.Error("graceful shutdown failed", "service", serviceName, "error", err)
		},
	}
	if err := sc.Start(ctx, e); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server stopped unexpectedly", "service", serviceName, "error", err)
	}
	slog.Info("shutting down", "service", serviceName)
}
