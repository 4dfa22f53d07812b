// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

// Package config loads and validates typed configuration for Reeltrack.
//
// Configuration is layered via Koanf v2 (highest priority wins):
//  1. Built-in defaults
//  2. Optional YAML config file (CONFIG_PATH or ./config.yaml)
//  3. Environment variables (see the mapping table in koanf.go)
//
// Unknown environment variables are ignored so the worker can share an env
// file with other services. Missing required settings fail fast with a
// readable message.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the worker and admin API.
type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Worker    WorkerConfig    `koanf:"worker"`
	Instagram InstagramConfig `koanf:"instagram"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// DatabaseConfig configures the DuckDB store.
type DatabaseConfig struct {
	// URL is the store location. Accepts "duckdb:///path/to.db",
	// "duckdb:path", or a bare filesystem path. ":memory:" opens an
	// in-memory database (tests).
	URL string `koanf:"url" validate:"required"`

	// MaxOpenConns bounds the database/sql connection pool.
	MaxOpenConns int `koanf:"max_open_conns"`
}

// Path resolves the URL into the filesystem path handed to the DuckDB driver.
func (c *DatabaseConfig) Path() string {
	p := strings.TrimPrefix(c.URL, "duckdb://")
	// duckdb:///abs/path leaves a leading slash that is part of the path;
	// duckdb://rel/path does not.
	return strings.TrimPrefix(p, "duckdb:")
}

// WorkerConfig configures the unified scheduling worker.
type WorkerConfig struct {
	// IntervalHours is the discover cadence in hours.
	IntervalHours int `koanf:"interval_hours" validate:"min=1"`

	// ReelsLimit is the maximum media fetched per account per discover tick.
	ReelsLimit int `koanf:"reels_limit" validate:"min=1"`

	// FullScan disables the break-on-existing-shortcode heuristic and walks
	// the whole recent-media page. Useful for accounts that re-share older
	// media out of order.
	FullScan bool `koanf:"full_scan"`

	// AudioDir is the output directory for extracted mp3 files.
	AudioDir string `koanf:"audio_dir" validate:"required"`

	// DispatchBatchSize caps how many due schedules one dispatch tick claims.
	DispatchBatchSize int `koanf:"dispatch_batch_size" validate:"min=1"`

	// TestMode compresses all cadences to seconds for local verification.
	TestMode bool `koanf:"test_mode"`
}

// DiscoverInterval returns the discover job cadence.
func (c *WorkerConfig) DiscoverInterval() time.Duration {
	if c.TestMode {
		return 10 * time.Second
	}
	return time.Duration(c.IntervalHours) * time.Hour
}

// RescheduleInterval returns the reschedule job cadence.
func (c *WorkerConfig) RescheduleInterval() time.Duration {
	if c.TestMode {
		return 30 * time.Second
	}
	return time.Hour
}

// DispatchInterval returns the dispatch-due job cadence.
func (c *WorkerConfig) DispatchInterval() time.Duration {
	if c.TestMode {
		return 10 * time.Second
	}
	return time.Minute
}

// HeartbeatInterval returns the heartbeat cadence.
func (c *WorkerConfig) HeartbeatInterval() time.Duration {
	if c.TestMode {
		return 10 * time.Second
	}
	return 30 * time.Second
}

// LeaseTimeout is how old a `running` schedule must be before the startup
// reaper returns it to idle: 10x the dispatch-due interval.
func (c *WorkerConfig) LeaseTimeout() time.Duration {
	return 10 * c.DispatchInterval()
}

// InterAccountDelay is the pause between accounts inside one discover tick.
func (c *WorkerConfig) InterAccountDelay() time.Duration {
	if c.TestMode {
		return time.Second
	}
	return 10 * time.Second
}

// InterMetricDelay is the pause between samples inside one dispatch tick.
func (c *WorkerConfig) InterMetricDelay() time.Duration {
	return 500 * time.Millisecond
}

// InstagramConfig configures the upstream client.
//
// Credential precedence: persisted session blob at SessionFile, then
// SessionToken (+ optional CSRFToken), then Username+Password. At least one
// of SessionToken or Username+Password must be configured.
type InstagramConfig struct {
	SessionToken string `koanf:"session_token"`
	CSRFToken    string `koanf:"csrf_token"`
	Username     string `koanf:"username"`
	Password     string `koanf:"password"`

	// Proxy applies to all platform calls but deliberately NOT to audio
	// extraction. Supported schemes: http, https, socks5, socks5h (socks5h
	// resolves DNS through the proxy and is recommended).
	Proxy string `koanf:"proxy"`

	// SessionFile is where the opaque session blob is persisted.
	SessionFile string `koanf:"session_file" validate:"required"`

	// BaseURL overrides the platform API origin (tests).
	BaseURL string `koanf:"base_url"`

	RequestTimeout time.Duration `koanf:"request_timeout" validate:"min=1s"`
	RetryBudget    int           `koanf:"retry_budget" validate:"min=0"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig configures the logging package.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// proxySchemes lists the proxy URL schemes the upstream client accepts.
var proxySchemes = map[string]bool{
	"http":    true,
	"https":   true,
	"socks5":  true,
	"socks5h": true,
}

// Validate checks the configuration and returns a readable error for the
// first problem found. Struct tags cover range checks; credential and proxy
// rules need explicit logic.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	hasToken := c.Instagram.SessionToken != ""
	hasLogin := c.Instagram.Username != "" && c.Instagram.Password != ""
	if !hasToken && !hasLogin {
		return fmt.Errorf("no upstream credentials: set SESSION_TOKEN or USERNAME and PASSWORD")
	}

	if c.Instagram.Proxy != "" {
		u, err := url.Parse(c.Instagram.Proxy)
		if err != nil {
			return fmt.Errorf("invalid PROXY url: %w", err)
		}
		if !proxySchemes[u.Scheme] {
			return fmt.Errorf("unsupported PROXY scheme %q: use http, https, socks5, or socks5h", u.Scheme)
		}
	}

	return nil
}
