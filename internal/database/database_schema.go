// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

/*
database_schema.go - Database Schema Management

This file manages the DuckDB database schema including table creation
and index management.

Tables:
  - accounts: Tracked profiles, keyed by the upstream numeric user id
  - videos: Discovered media, one row per shortcode, enrichment columns nullable
  - metrics: Append-only engagement observations per video
  - metric_schedules: Control-plane rows driving metric collection
  - worker_heartbeats: Worker liveness records read by the admin API

Schema Strategy (Pre-Release):
All columns are defined in the initial CREATE TABLE statement. Versioned
migrations in migrations.go take over after the first public release.

Index Strategy:
  - videos(account_id, published_at): recent-video listings per account
  - metrics(video_id, measured_at): latest-metric lookups and time series
  - metric_schedules(status, next_due_at): the dispatch-due claim scan
*/
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createTables creates the core database tables
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries() {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}

	return nil
}

// tableCreationQueries returns the table creation SQL statements
func tableCreationQueries() []string {
	return []string{
		// Accounts table - id is the upstream user key, not a surrogate
		`CREATE TABLE IF NOT EXISTS accounts (
			id BIGINT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			profile_url TEXT,
			followers_count BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Videos table - shortcode and video_id are upstream identifiers and
		// globally unique; enrichment columns stay NULL until filled
		`CREATE TABLE IF NOT EXISTS videos (
			id UUID PRIMARY KEY,
			video_id BIGINT NOT NULL UNIQUE,
			shortcode TEXT NOT NULL UNIQUE,
			account_id BIGINT NOT NULL,
			video_url TEXT,
			audio_url TEXT,
			audio_file_path TEXT,
			transcription TEXT,
			caption TEXT,
			duration_seconds DOUBLE,
			published_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Metrics table - append-only; save_count is NULL when the upstream
		// omits it (private metric)
		`CREATE TABLE IF NOT EXISTS metrics (
			id UUID PRIMARY KEY,
			video_id UUID NOT NULL,
			view_count BIGINT NOT NULL DEFAULT 0,
			like_count BIGINT NOT NULL DEFAULT 0,
			comment_count BIGINT NOT NULL DEFAULT 0,
			save_count BIGINT,
			followers_count BIGINT NOT NULL DEFAULT 0,
			measured_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Metric schedules table - at most one row per video; status is the
		// lease: idle | running | disabled
		`CREATE TABLE IF NOT EXISTS metric_schedules (
			id UUID PRIMARY KEY,
			video_id UUID NOT NULL UNIQUE,
			next_due_at TIMESTAMP NOT NULL,
			last_run_at TIMESTAMP,
			interval_seconds BIGINT NOT NULL,
			status TEXT NOT NULL DEFAULT 'idle',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Worker heartbeats table - one row per worker name
		`CREATE TABLE IF NOT EXISTS worker_heartbeats (
			worker_name TEXT PRIMARY KEY,
			last_heartbeat TIMESTAMP NOT NULL,
			status TEXT NOT NULL DEFAULT 'running',
			pid INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
}

// createIndexes creates the performance indexes
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_videos_account_published ON videos(account_id, published_at)`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_video_measured ON metrics(video_id, measured_at)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_status_due ON metric_schedules(status, next_due_at)`,
	}

	for _, query := range indexes {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", query, err)
		}
	}

	return nil
}
