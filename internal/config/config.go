// Capstream - CAP Alert Ingestion and Distribution
// Copyright 2026 Decibel Co.
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads layered configuration: built-in defaults, an optional
// YAML file, then environment variables, each layer overriding the last.
package config

import (
	"time"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Server   ServerConfig   `koanf:"server"`
	Fetch    FetchConfig    `koanf:"fetch"`
	Janitor  JanitorConfig  `koanf:"janitor"`
	NATS     NATSConfig     `koanf:"nats"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// DatabaseConfig configures the embedded DuckDB store.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	// Threads <= 0 means use runtime.NumCPU().
	Threads int `koanf:"threads"`
	// SeedDefaults inserts the built-in publisher sources at startup.
	SeedDefaults bool `koanf:"seed_defaults"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout         time.Duration `koanf:"timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"min=0"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// FetchConfig tunes the CAP parser and the per-source scheduler.
type FetchConfig struct {
	// MaxItems caps index items processed per fetch cycle.
	MaxItems int `koanf:"max_items" validate:"min=1"`
	// DetailDelay paces alert detail fetches.
	DetailDelay time.Duration `koanf:"detail_delay"`
	// CacheTTL bounds staleness of the parsed-document cache.
	CacheTTL time.Duration `koanf:"cache_ttl"`
	// HTTPTimeout is the per-request timeout against publishers.
	HTTPTimeout time.Duration `koanf:"http_timeout"`
	// DefaultIntervalSeconds is the polling cadence for seeded sources.
	DefaultIntervalSeconds int `koanf:"default_interval_seconds" validate:"min=30"`
}

// JanitorConfig tunes the background expiry and retention sweeps.
type JanitorConfig struct {
	Interval      time.Duration `koanf:"interval"`
	RetentionDays int           `koanf:"retention_days" validate:"min=1"`
}

// NATSConfig configures the optional NATS transport for lifecycle events.
// When disabled, events fan out over the in-process pub/sub only.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults, applied before file and
// environment layers.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:         "/data/capstream.duckdb",
			MaxMemory:    "2GB",
			Threads:      0,
			SeedDefaults: false,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Timeout:         30 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Fetch: FetchConfig{
			MaxItems:               20,
			DetailDelay:            100 * time.Millisecond,
			CacheTTL:               5 * time.Minute,
			HTTPTimeout:            120 * time.Second,
			DefaultIntervalSeconds: 60,
		},
		Janitor: JanitorConfig{
			Interval:      24 * time.Hour,
			RetentionDays: 30,
		},
		NATS: NATSConfig{
			Enabled: false,
			URL:     "nats://127.0.0.1:4222",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}
