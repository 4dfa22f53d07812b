// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

// Package main is the entry point for the Reeltrack worker.
//
// Reeltrack tracks short-form videos published by a configured set of
// accounts on the upstream platform: it discovers new videos, extracts and
// transcribes their audio, and samples engagement metrics on an age-decaying
// cadence. A small admin HTTP API exposes the collected data.
//
// # Application Architecture
//
// The process initializes components in the following order:
//
//  1. Configuration: environment variables and optional YAML file (Koanf v2)
//  2. Database: DuckDB relational store with versioned migrations
//  3. Upstream client: authenticated, proxied, rate-limited, behind a
//     circuit breaker
//  4. Enricher: yt-dlp audio extraction and whisper transcription
//  5. Supervisor tree: the unified worker and the admin HTTP server as
//     supervised services
//
// # Configuration
//
// Everything is configured via environment variables (see
// internal/config/koanf.go for the full mapping). Minimum viable setup:
//
//	export DATABASE_URL=/data/reeltrack.duckdb
//	export AUDIO_DIR=/data/audio
//	export SESSION_TOKEN=your-session-token
//	./worker
//
// Password login instead of a session token:
//
//	export USERNAME=your-username
//	export PASSWORD=your-password
//	./worker
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: in-flight job ticks finish,
// the HTTP server drains, the heartbeat row is marked stopped and the
// database is closed.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/reeltrack/internal/api"
	"github.com/tomtom215/reeltrack/internal/config"
	"github.com/tomtom215/reeltrack/internal/database"
	"github.com/tomtom215/reeltrack/internal/enrich"
	"github.com/tomtom215/reeltrack/internal/instagram"
	"github.com/tomtom215/reeltrack/internal/logging"
	"github.com/tomtom215/reeltrack/internal/supervisor"
	"github.com/tomtom215/reeltrack/internal/worker"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		// Config errors happen before logging is configured
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path()).
		Str("audio_dir", cfg.Worker.AudioDir).
		Bool("test_mode", cfg.Worker.TestMode).
		Msg("Starting Reeltrack worker")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	client, err := instagram.NewClient(&cfg.Instagram)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create upstream client")
	}
	upstream := instagram.NewBreakerClient(client)

	// Authenticate once up front so credential problems fail fast instead of
	// surfacing on the first discover tick.
	authCtx, authCancel := context.WithTimeout(context.Background(), time.Minute)
	if err := upstream.Authenticate(authCtx); err != nil {
		authCancel()
		logging.Fatal().Err(err).Msg("Upstream authentication failed")
	}
	authCancel()
	logging.Info().Msg("Upstream authentication succeeded")

	enricher, err := enrich.New(cfg.Worker.AudioDir, &enrich.YtDlpExtractor{}, &enrich.WhisperTranscriber{})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize enricher")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddSchedulerService(worker.New(db, upstream, enricher, &cfg.Worker))

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(api.NewHandler(db, upstream, &cfg.Worker)),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
	}
	tree.AddAPIService(supervisor.NewHTTPService(server, cfg.Server.Timeout))
	logging.Info().Str("addr", server.Addr).Msg("Admin API listening")

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree exited with error")
	}

	// Record the clean shutdown so the admin API reports stopped, not stale
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.MarkWorkerStopped(stopCtx, worker.WorkerName); err != nil {
		logging.Error().Err(err).Msg("Failed to mark worker stopped")
	}

	logging.Info().Msg("Reeltrack worker stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		os.Exit(1)
	}
}
