// Package config holds the runtime tuning knobs for replicas embedding the
// log: verification parallelism, hydration bounds and logging.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds replica configuration.
type Config struct {
	JoinConcurrency  int
	FetchConcurrency int
	FetchTimeout     time.Duration
	LogLevel         string
	StorePath        string
}

// Load loads configuration from environment variables, falling back to the
// library defaults.
func Load() *Config {
	cfg := &Config{
		JoinConcurrency:  16,
		FetchConcurrency: 16,
		FetchTimeout:     0,
		LogLevel:         "INFO",
		StorePath:        "",
	}

	if v, err := strconv.Atoi(os.Getenv("OPLOG_JOIN_CONCURRENCY")); err == nil && v > 0 {
		cfg.JoinConcurrency = v
	}
	if v, err := strconv.Atoi(os.Getenv("OPLOG_FETCH_CONCURRENCY")); err == nil && v > 0 {
		cfg.FetchConcurrency = v
	}
	if v, err := time.ParseDuration(os.Getenv("OPLOG_FETCH_TIMEOUT")); err == nil && v > 0 {
		cfg.FetchTimeout = v
	}
	if v := os.Getenv("OPLOG_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("OPLOG_STORE_PATH"); v != "" {
		cfg.StorePath = v
	}

	return cfg
}
