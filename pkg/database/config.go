// Package database provides a pooled PostgreSQL connection per service and
// applies that service's embedded migrations on startup.
package database

import (
	"time"

	"github.com/streamrelay/platform/pkg/config"
)

// Config holds connection parameters for one service's database.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfigFromEnv loads database configuration from environment variables,
// prefixed so that multiple services can share a host without colliding
// (e.g. DEVICE_DB_NAME vs RULEENGINE_DB_NAME).
func LoadConfigFromEnv(prefix string) (Config, error) {
	port, err := config.IntOrDefault(prefix+"DB_PORT", 5432)
	if err != nil {
		return Config{}, err
	}
	maxOpen, err := config.IntOrDefault(prefix+"DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return Config{}, err
	}
	maxIdle, err := config.IntOrDefault(prefix+"DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return Config{}, err
	}
	maxLifetime, err := config.DurationOrDefault(prefix+"DB_CONN_MAX_LIFETIME", time.Hour)
	if err != nil {
		return Config{}, err
	}
	maxIdleTime, err := config.DurationOrDefault(prefix+"DB_CONN_MAX_IDLE_TIME", 15*time.Minute)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Host:            config.StringOrDefault(prefix+"DB_HOST", "localhost"),
		Port:            port,
		User:            config.StringOrDefault(prefix+"DB_USER", "streamrelay"),
		Password:        config.StringOrDefault(prefix+"DB_PASSWORD", ""),
		Database:        config.StringOrDefault(prefix+"DB_NAME", "streamrelay"),
		SSLMode:         config.StringOrDefault(prefix+"DB_SSLMODE", "disable"),
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: maxLifetime,
		ConnMaxIdleTime: maxIdleTime,
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for obviously invalid combinations.
func (c Config) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errInvalidPoolConfig
	}
	if c.MaxOpenConns < 1 {
		return errInvalidMaxOpenConns
	}
	return nil
}
