package iotforwarder

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the package-level logger used by Worker and MQTTClient. It is
// deliberately zerolog rather than the core services' slog: this worker is
// the one optional, out-of-core-scope binary in the repo (spec §1, §9) and
// is free to carry its own idiom.
var Logger zerolog.Logger

// LogConfig configures Init.
type LogConfig struct {
	Level      string
	JSONOutput bool
}

// Init sets up the global Logger. An unrecognized Level falls back to info.
func Init(cfg LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.JSONOutput {
		Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

func init() {
	Init(LogConfig{Level: "info"})
}
