// Package config defines process configuration for the roll-call server and
// client and the loader that layers defaults, files and environment.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Store drivers understood by the server.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":5000".
	Addr string `koanf:"addr"`

	// StoreDriver selects the roster store: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`

	// StoreDSN is the driver specific data source (file path or connection URL).
	StoreDSN string `koanf:"store_dsn"`

	// HistoryLimit caps the number of records returned by GET /api/history.
	HistoryLimit int `koanf:"history_limit"`

	// ChartTop is the number of entries the statistics chart shows.
	ChartTop int `koanf:"chart_top"`

	// CORSOrigins is a comma separated list of allowed origins.
	CORSOrigins string `koanf:"cors_origins"`

	// LiveQueueSize bounds the live feed event queue.
	LiveQueueSize int `koanf:"live_queue_size"`

	// IdempotencyCacheSize bounds the remembered Idempotency-Key results.
	IdempotencyCacheSize int `koanf:"idempotency_cache_size"`

	// BaseURL is the backend the client talks to.
	BaseURL string `koanf:"base_url"`

	// TickIntervalMS is the animation cadence in milliseconds.
	TickIntervalMS int `koanf:"tick_interval_ms"`

	// MaxTicks is the number of cosmetic draws before the commit.
	MaxTicks int `koanf:"max_ticks"`

	// RequestTimeoutMS bounds every backend request made by the client.
	RequestTimeoutMS int `koanf:"request_timeout_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":5000",
		StoreDriver:          DriverMemory,
		StoreDSN:             "",
		HistoryLimit:         50,
		ChartTop:             10,
		CORSOrigins:          "*",
		LiveQueueSize:        1024,
		IdempotencyCacheSize: 4096,
		BaseURL:              "http://localhost:5000",
		TickIntervalMS:       100,
		MaxTicks:             20,
		RequestTimeoutMS:     5000,
	}
}

// TickInterval returns the animation cadence as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMS) * time.Millisecond
}

// RequestTimeout returns the client request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// AllowedOrigins splits CORSOrigins into a list, dropping blanks.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Validate checks the values the binaries cannot run without.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.HistoryLimit < 1:
		return fmt.Errorf("%w: history_limit must be positive", ErrInvalidConfig)
	case c.TickIntervalMS < 1:
		return fmt.Errorf("%w: tick_interval_ms must be positive", ErrInvalidConfig)
	case c.MaxTicks < 1:
		return fmt.Errorf("%w: max_ticks must be positive", ErrInvalidConfig)
	case c.RequestTimeoutMS < 1:
		return fmt.Errorf("%w: request_timeout_ms must be positive", ErrInvalidConfig)
	}
	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if strings.TrimSpace(c.StoreDSN) == "" {
			return fmt.Errorf("%w: store_dsn is required for %s", ErrInvalidConfig, c.StoreDriver)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	return nil
}
