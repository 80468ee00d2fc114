// Package config provides small environment-variable helpers shared by every
// service's Config loader. It deliberately stays thin: each service defines
// its own Config struct and Load function in its own package, using these
// helpers for parsing and defaulting.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// StringOrDefault returns the environment variable value, or defaultVal if unset or empty.
func StringOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// IntOrDefault parses the environment variable as an int, or returns defaultVal
// if unset. Returns an error if set but not parseable.
func IntOrDefault(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// DurationOrDefault parses the environment variable as a time.Duration, or
// returns defaultVal if unset. Returns an error if set but not parseable.
func DurationOrDefault(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// BoolOrDefault parses the environment variable as a bool, or returns
// defaultVal if unset. Returns an error if set but not parseable.
func BoolOrDefault(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

// Require returns an error if the named environment variable is unset or empty.
func Require(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}
