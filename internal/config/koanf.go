// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order
// of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/reeltrack/config.yaml",
	"/etc/reeltrack/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. Defaults load
// first, then the config file, then environment variables.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL:          "/data/reeltrack.duckdb",
			MaxOpenConns: 4,
		},
		Worker: WorkerConfig{
			IntervalHours:     6,
			ReelsLimit:        50,
			FullScan:          false,
			AudioDir:          "/data/audio",
			DispatchBatchSize: 25,
			TestMode:          false,
		},
		Instagram: InstagramConfig{
			SessionFile:    "/data/session.json",
			RequestTimeout: 30 * time.Second,
			RetryBudget:    3,
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML file (if exists)
//  3. Environment variables: override any setting
//
// Precedence is ENV > File > Defaults. The returned Config is validated.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	// SESSION_TOKEN -> instagram.session_token, HTTP_PORT -> server.port
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the first file found, or empty string if none.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envTransformFunc maps environment variable names to koanf config paths.
// The flat names match the original deployment env files, so existing env
// files keep working unchanged.
//
// Examples:
//   - DATABASE_URL -> database.url
//   - WORKER_INTERVAL_HOURS -> worker.interval_hours
//   - SESSION_TOKEN -> instagram.session_token
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Database mappings
		"database_url":       "database.url",
		"database_max_conns": "database.max_open_conns",

		// Worker mappings
		"worker_interval_hours":      "worker.interval_hours",
		"worker_reels_limit":         "worker.reels_limit",
		"worker_full_scan":           "worker.full_scan",
		"worker_dispatch_batch_size": "worker.dispatch_batch_size",
		"audio_dir":                  "worker.audio_dir",
		"test_mode":                  "worker.test_mode",

		// Upstream platform mappings
		"session_token":   "instagram.session_token",
		"csrf_token":      "instagram.csrf_token",
		"username":        "instagram.username",
		"password":        "instagram.password",
		"proxy":           "instagram.proxy",
		"session_file":    "instagram.session_file",
		"request_timeout": "instagram.request_timeout",
		"retry_budget":    "instagram.retry_budget",

		// Server mappings
		"http_port":    "server.port",
		"http_host":    "server.host",
		"http_timeout": "server.timeout",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unmapped keys are skipped so unrelated environment variables do not
	// pollute the config.
	return ""
}
