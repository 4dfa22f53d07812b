// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/reeltrack/internal/config"
	"github.com/tomtom215/reeltrack/internal/models"
)

// setupTestDB creates a new in-memory test database.
// The connection is closed automatically when the test completes.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := &config.DatabaseConfig{
		URL:          ":memory:",
		MaxOpenConns: 2,
	}
	db, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return db
}

// seedTestAccount inserts a minimal account and returns it
func seedTestAccount(t *testing.T, db *DB, id int64, username string) *models.Account {
	t.Helper()
	a := &models.Account{ID: id, Username: username, FollowersCount: 1000}
	if err := db.UpsertAccount(context.Background(), a); err != nil {
		t.Fatalf("failed to seed account %s: %v", username, err)
	}
	return a
}

// seedTestVideo inserts a video for an account and returns it
func seedTestVideo(t *testing.T, db *DB, accountID int64, shortcode string, publishedAt time.Time) *models.Video {
	t.Helper()
	v := &models.Video{
		VideoID:     int64(uuid.New().ID()),
		Shortcode:   shortcode,
		AccountID:   accountID,
		PublishedAt: publishedAt,
	}
	inserted, err := db.InsertVideo(context.Background(), v)
	if err != nil {
		t.Fatalf("failed to seed video %s: %v", shortcode, err)
	}
	if !inserted {
		t.Fatalf("video %s unexpectedly already existed", shortcode)
	}
	return v
}

func TestNewCreatesSchema(t *testing.T) {
	db := setupTestDB(t)

	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	// All tables exist and are queryable
	for _, table := range []string{"accounts", "videos", "metrics", "metric_schedules", "worker_heartbeats", "schema_migrations"} {
		var count int64
		if err := db.conn.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			t.Errorf("table %s not queryable: %v", table, err)
		}
	}
}

func TestNewFileBackedCreatesParentDir(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.DatabaseConfig{
		URL: filepath.Join(dir, "nested", "data", "reeltrack.duckdb"),
	}

	db, err := New(cfg)
	if err != nil {
		t.Fatalf("New with nested path failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestMigrationsRunOnce(t *testing.T) {
	db := setupTestDB(t)

	// Running again must be a no-op, not an error
	if err := db.runVersionedMigrations(); err != nil {
		t.Fatalf("second migration run failed: %v", err)
	}
}
