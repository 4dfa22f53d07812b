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

const videoColumns = `id, video_id, shortcode, account_id, video_url, audio_url,
	audio_file_path, transcription, caption, duration_seconds,
	published_at, created_at, updated_at`

// InsertVideo inserts a newly discovered video.
//
// Shortcode and video_id carry unique constraints; a conflict means the video
// was discovered before and the insert is silently ignored, keeping the
// discover job idempotent. VideoID (upstream), Shortcode, AccountID and
// PublishedAt are immutable once written. Returns true if a row was inserted.
func (db *DB) InsertVideo(ctx context.Context, video *models.Video) (bool, error) {
	if video.ID == uuid.Nil {
		video.ID = uuid.New()
	}
	now := time.Now().UTC()
	if video.CreatedAt.IsZero() {
		video.CreatedAt = now
	}
	video.UpdatedAt = now

	query := `INSERT INTO videos (` + videoColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (shortcode) DO NOTHING`

	var inserted bool
	err := withRetry(ctx, "insert_video", func() error {
		qctx, cancel := queryContext(ctx)
		defer cancel()

		result, err := db.conn.ExecContext(qctx, query,
			video.ID, video.VideoID, video.Shortcode, video.AccountID,
			video.VideoURL, video.AudioURL, video.AudioFilePath, video.Transcription,
			video.Caption, video.DurationSeconds,
			video.PublishedAt, video.CreatedAt, video.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert video %s: %w", video.Shortcode, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected for video %s: %w", video.Shortcode, err)
		}
		inserted = affected > 0
		return nil
	})
	return inserted, err
}

// SetVideoEnrichment fills enrichment columns that are still NULL.
// A value already present is never overwritten, so a retried enrichment pass
// completes only the missing half.
func (db *DB) SetVideoEnrichment(ctx context.Context, id uuid.UUID, audioFilePath, transcription *string) error {
	query := `UPDATE videos SET
		audio_file_path = COALESCE(audio_file_path, ?),
		transcription = COALESCE(transcription, ?),
		updated_at = ?
		WHERE id = ?`

	return withRetry(ctx, "set_video_enrichment", func() error {
		qctx, cancel := queryContext(ctx)
		defer cancel()
		if _, err := db.conn.ExecContext(qctx, query, audioFilePath, transcription, time.Now().UTC(), id); err != nil {
			return fmt.Errorf("failed to set enrichment for video %s: %w", id, err)
		}
		return nil
	})
}

// GetVideo retrieves one video by its surrogate id.
// Returns ErrNotFound if the video does not exist.
func (db *DB) GetVideo(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	qctx, cancel := queryContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(qctx,
		`SELECT `+videoColumns+` FROM videos WHERE id = ?`, id)
	return scanVideo(row)
}

// GetVideoByShortcode retrieves one video by its upstream shortcode.
// Returns ErrNotFound if the video does not exist.
func (db *DB) GetVideoByShortcode(ctx context.Context, shortcode string) (*models.Video, error) {
	qctx, cancel := queryContext(ctx)
	defer cancel()

	row := db.conn.QueryRowContext(qctx,
		`SELECT `+videoColumns+` FROM videos WHERE shortcode = ?`, shortcode)
	return scanVideo(row)
}

// scanVideo scans a single video row, mapping no-rows to ErrNotFound
func scanVideo(row *sql.Row) (*models.Video, error) {
	var v models.Video
	err := row.Scan(
		&v.ID, &v.VideoID, &v.Shortcode, &v.AccountID,
		&v.VideoURL, &v.AudioURL, &v.AudioFilePath, &v.Transcription,
		&v.Caption, &v.DurationSeconds,
		&v.PublishedAt, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan video: %w", err)
	}
	return &v, nil
}

// ListRecentVideos returns the newest videos by publish time, each paired
// with its latest metric sample (nil when no sample has been taken yet).
func (db *DB) ListRecentVideos(ctx context.Context, limit int) ([]models.VideoWithMetric, error) {
	qctx, cancel := queryContext(ctx)
	defer cancel()

	query := `SELECT
		v.id, v.video_id, v.shortcode, v.account_id, v.video_url, v.audio_url,
		v.audio_file_path, v.transcription, v.caption, v.duration_seconds,
		v.published_at, v.created_at, v.updated_at,
		m.id, m.view_count, m.like_count, m.comment_count, m.save_count,
		m.followers_count, m.measured_at, m.created_at
	FROM videos v
	LEFT JOIN (
		SELECT *, ROW_NUMBER() OVER (PARTITION BY video_id ORDER BY measured_at DESC) AS rn
		FROM metrics
	) m ON m.video_id = v.id AND m.rn = 1
	ORDER BY v.published_at DESC
	LIMIT ?`

	rows, err := db.conn.QueryContext(qctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent videos: %w", err)
	}
	defer rows.Close()

	var out []models.VideoWithMetric
	for rows.Next() {
		var vm models.VideoWithMetric
		var (
			metricID       *uuid.UUID
			viewCount      *int64
			likeCount      *int64
			commentCount   *int64
			saveCount      *int64
			followersCount *int64
			measuredAt     *time.Time
			createdAt      *time.Time
		)
		err := rows.Scan(
			&vm.ID, &vm.VideoID, &vm.Shortcode, &vm.AccountID,
			&vm.VideoURL, &vm.AudioURL, &vm.AudioFilePath, &vm.Transcription,
			&vm.Caption, &vm.DurationSeconds,
			&vm.PublishedAt, &vm.CreatedAt, &vm.UpdatedAt,
			&metricID, &viewCount, &likeCount, &commentCount, &saveCount,
			&followersCount, &measuredAt, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recent video: %w", err)
		}
		if metricID != nil {
			vm.LatestMetric = &models.Metric{
				ID:             *metricID,
				VideoID:        vm.ID,
				ViewCount:      *viewCount,
				LikeCount:      *likeCount,
				CommentCount:   *commentCount,
				SaveCount:      saveCount,
				FollowersCount: *followersCount,
				MeasuredAt:     *measuredAt,
				CreatedAt:      *createdAt,
			}
		}
		out = append(out, vm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recent videos: %w", err)
	}
	return out, nil
}
