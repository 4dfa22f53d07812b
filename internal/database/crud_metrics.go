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

	"github.com/google/uuid"

	"github.com/tomtom215/reeltrack/internal/models"
)

const metricColumns = `id, video_id, view_count, like_count, comment_count,
	save_count, followers_count, measured_at, created_at`

// AppendMetric appends one engagement observation for a video.
// Metric rows are immutable; there is no update path.
func (db *DB) AppendMetric(ctx context.Context, metric *models.Metric) error {
	if metric.ID == uuid.Nil {
		metric.ID = uuid.New()
	}
	if metric.MeasuredAt.IsZero() {
		metric.MeasuredAt = time.Now().UTC()
	}
	if metric.CreatedAt.IsZero() {
		metric.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO metrics (` + metricColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return withRetry(ctx, "append_metric", func() error {
		qctx, cancel := queryContext(ctx)
		defer cancel()
		if _, err := db.conn.ExecContext(qctx, query,
			metric.ID, metric.VideoID, metric.ViewCount, metric.LikeCount,
			metric.CommentCount, metric.SaveCount, metric.FollowersCount,
			metric.MeasuredAt, metric.CreatedAt); err != nil {
			return fmt.Errorf("failed to append metric for video %s: %w", metric.VideoID, err)
		}
		return nil
	})
}

// LatestMetricForVideo returns the most recent metric sample for a video.
// Returns ErrNotFound when the video has no samples yet.
func (db *DB) LatestMetricForVideo(ctx context.Context, videoID uuid.UUID) (*models.Metric, error) {
	qctx, cancel := queryContext(ctx)
	defer cancel()

	var m models.Metric
	err := db.conn.QueryRowContext(qctx,
		`SELECT `+metricColumns+` FROM metrics
		 WHERE video_id = ? ORDER BY measured_at DESC LIMIT 1`, videoID).
		Scan(&m.ID, &m.VideoID, &m.ViewCount, &m.LikeCount, &m.CommentCount,
			&m.SaveCount, &m.FollowersCount, &m.MeasuredAt, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest metric for video %s: %w", videoID, err)
	}
	return &m, nil
}

// MetricsForVideo returns a video's samples in measurement order, oldest
// first, capped at limit (0 means no cap).
func (db *DB) MetricsForVideo(ctx context.Context, videoID uuid.UUID, limit int) ([]models.Metric, error) {
	qctx, cancel := queryContext(ctx)
	defer cancel()

	query := `SELECT ` + metricColumns + ` FROM metrics
		WHERE video_id = ? ORDER BY measured_at`
	args := []any{videoID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(qctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics for video %s: %w", videoID, err)
	}
	defer rows.Close()

	var metrics []models.Metric
	for rows.Next() {
		var m models.Metric
		if err := rows.Scan(&m.ID, &m.VideoID, &m.ViewCount, &m.LikeCount, &m.CommentCount,
			&m.SaveCount, &m.FollowersCount, &m.MeasuredAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating metrics: %w", err)
	}
	return metrics, nil
}
