// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/reeltrack/internal/models"
)

// UpsertHeartbeat records that a worker is alive right now
func (db *DB) UpsertHeartbeat(ctx context.Context, workerName string, pid int) error {
	now := time.Now().UTC()
	query := `INSERT INTO worker_heartbeats (worker_name, last_heartbeat, status, pid, created_at, updated_at)
		VALUES (?, ?, 'running', ?, ?, ?)
		ON CONFLICT (worker_name) DO UPDATE SET
			last_heartbeat = excluded.last_heartbeat,
			status = 'running',
			pid = excluded.pid,
			updated_at = excluded.updated_at`

	return withRetry(ctx, "upsert_heartbeat", func() error {
		qctx, cancel := queryContext(ctx)
		defer cancel()
		if _, err := db.conn.ExecContext(qctx, query, workerName, now, pid, now, now); err != nil {
			return fmt.Errorf("failed to upsert heartbeat for %s: %w", workerName, err)
		}
		return nil
	})
}

// GetHeartbeat retrieves the heartbeat row for one worker.
// Returns ErrNotFound if the worker never reported.
func (db *DB) GetHeartbeat(ctx context.Context, workerName string) (*models.WorkerHeartbeat, error) {
	qctx, cancel := queryContext(ctx)
	defer cancel()

	var h models.WorkerHeartbeat
	err := db.conn.QueryRowContext(qctx,
		`SELECT worker_name, last_heartbeat, status, pid, created_at, updated_at
		 FROM worker_heartbeats WHERE worker_name = ?`, workerName).
		Scan(&h.WorkerName, &h.LastHeartbeat, &h.Status, &h.PID, &h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get heartbeat for %s: %w", workerName, err)
	}
	return &h, nil
}

// MarkWorkerStopped records a clean shutdown so the admin API can tell a
// graceful stop from a crash
func (db *DB) MarkWorkerStopped(ctx context.Context, workerName string) error {
	return withRetry(ctx, "mark_worker_stopped", func() error {
		qctx, cancel := queryContext(ctx)
		defer cancel()
		if _, err := db.conn.ExecContext(qctx,
			`UPDATE worker_heartbeats SET status = 'stopped', updated_at = ? WHERE worker_name = ?`,
			time.Now().UTC(), workerName); err != nil {
			return fmt.Errorf("failed to mark worker %s stopped: %w", workerName, err)
		}
		return nil
	})
}
