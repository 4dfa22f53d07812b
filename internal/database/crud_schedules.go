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
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/reeltrack/internal/models"
)

const scheduleColumns = `id, video_id, next_due_at, last_run_at, interval_seconds,
	status, created_at, updated_at`

// ClaimedSchedule is a schedule row claimed by a dispatch tick, joined with
// the video it drives.
type ClaimedSchedule struct {
	Schedule models.MetricSchedule
	Video    models.Video
}

// ScheduleWithPublish pairs an idle schedule with its video's publish time,
// which the reschedule pass needs to recompute the cadence.
type ScheduleWithPublish struct {
	Schedule    models.MetricSchedule
	PublishedAt time.Time
}

// CreateSchedule creates the schedule row for a newly discovered video.
// One row exists per video; a conflict means the row is already there and the
// insert is silently ignored.
func (db *DB) CreateSchedule(ctx context.Context, schedule *models.MetricSchedule) error {
	if schedule.ID == uuid.Nil {
		schedule.ID = uuid.New()
	}
	if schedule.Status == "" {
		schedule.Status = models.ScheduleIdle
	}
	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	query := `INSERT INTO metric_schedules (` + scheduleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (video_id) DO NOTHING`

	return withRetry(ctx, "create_schedule", func() error {
		qctx, cancel := queryContext(ctx)
		defer cancel()
		if _, err := db.conn.ExecContext(qctx, query,
			schedule.ID, schedule.VideoID, schedule.NextDueAt, schedule.LastRunAt,
			schedule.IntervalSeconds, schedule.Status, schedule.CreatedAt, schedule.UpdatedAt); err != nil {
			return fmt.Errorf("failed to create schedule for video %s: %w", schedule.VideoID, err)
		}
		return nil
	})
}

// ScheduleForVideo retrieves the schedule row for one video.
// Returns ErrNotFound if no schedule exists.
func (db *DB) ScheduleForVideo(ctx context.Context, videoID uuid.UUID) (*models.MetricSchedule, error) {
	qctx, cancel := queryContext(ctx)
	defer cancel()

	var s models.MetricSchedule
	err := db.conn.QueryRowContext(qctx,
		`SELECT `+scheduleColumns+` FROM metric_schedules WHERE video_id = ?`, videoID).
		Scan(&s.ID, &s.VideoID, &s.NextDueAt, &s.LastRunAt, &s.IntervalSeconds,
			&s.Status, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule for video %s: %w", videoID, err)
	}
	return &s, nil
}

// ListIdleSchedules returns all idle schedules joined with their videos'
// publish times, for the reschedule pass. Running and disabled rows are
// never touched by rescheduling.
func (db *DB) ListIdleSchedules(ctx context.Context) ([]ScheduleWithPublish, error) {
	qctx, cancel := queryContext(ctx)
	defer cancel()

	query := `SELECT s.id, s.video_id, s.next_due_at, s.last_run_at, s.interval_seconds,
		s.status, s.created_at, s.updated_at, v.published_at
	FROM metric_schedules s
	JOIN videos v ON v.id = s.video_id
	WHERE s.status = 'idle'
	ORDER BY s.next_due_at`

	rows, err := db.conn.QueryContext(qctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query idle schedules: %w", err)
	}
	defer rows.Close()

	var out []ScheduleWithPublish
	for rows.Next() {
		var sp ScheduleWithPublish
		s := &sp.Schedule
		if err := rows.Scan(&s.ID, &s.VideoID, &s.NextDueAt, &s.LastRunAt, &s.IntervalSeconds,
			&s.Status, &s.CreatedAt, &s.UpdatedAt, &sp.PublishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan idle schedule: %w", err)
		}
		out = append(out, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating idle schedules: %w", err)
	}
	return out, nil
}

// RescheduleIdle rewrites next_due_at and interval_seconds for a schedule,
// but only while it is still idle. Returns false if the row was claimed or
// disabled in the meantime.
func (db *DB) RescheduleIdle(ctx context.Context, id uuid.UUID, nextDueAt time.Time, intervalSeconds int64) (bool, error) {
	qctx, cancel := queryContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(qctx,
		`UPDATE metric_schedules SET next_due_at = ?, interval_seconds = ?, updated_at = ?
		 WHERE id = ? AND status = 'idle'`,
		nextDueAt, intervalSeconds, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("failed to reschedule %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for reschedule %s: %w", id, err)
	}
	return affected > 0, nil
}

// ClaimDueSchedules atomically claims up to limit due idle schedules.
//
// The claim is a single UPDATE over a subselect inside a transaction, so two
// concurrent dispatchers can never claim the same row: the status flip from
// idle to running is the lease. Claimed rows come back joined with their
// videos, oldest due first.
func (db *DB) ClaimDueSchedules(ctx context.Context, now time.Time, limit int) ([]ClaimedSchedule, error) {
	qctx, cancel := queryContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(qctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // No-op after commit
	}()

	claimQuery := `UPDATE metric_schedules SET status = 'running', updated_at = ?
		WHERE id IN (
			SELECT id FROM metric_schedules
			WHERE status = 'idle' AND next_due_at <= ?
			ORDER BY next_due_at
			LIMIT ?
		)
		RETURNING ` + scheduleColumns

	rows, err := tx.QueryContext(qctx, claimQuery, now.UTC(), now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due schedules: %w", err)
	}

	var schedules []models.MetricSchedule
	for rows.Next() {
		var s models.MetricSchedule
		if err := rows.Scan(&s.ID, &s.VideoID, &s.NextDueAt, &s.LastRunAt, &s.IntervalSeconds,
			&s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			closeQuietly(rows)
			return nil, fmt.Errorf("failed to scan claimed schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		closeQuietly(rows)
		return nil, fmt.Errorf("error iterating claimed schedules: %w", err)
	}
	closeQuietly(rows)

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim transaction: %w", err)
	}

	if len(schedules) == 0 {
		return nil, nil
	}

	videos, err := db.videosByID(ctx, scheduleVideoIDs(schedules))
	if err != nil {
		return nil, err
	}

	claimed := make([]ClaimedSchedule, 0, len(schedules))
	for _, s := range schedules {
		v, ok := videos[s.VideoID]
		if !ok {
			// Orphan schedule; should not happen, but never block the batch.
			continue
		}
		claimed = append(claimed, ClaimedSchedule{Schedule: s, Video: v})
	}
	return claimed, nil
}

// scheduleVideoIDs collects the video ids of a claimed batch
func scheduleVideoIDs(schedules []models.MetricSchedule) []uuid.UUID {
	ids := make([]uuid.UUID, len(schedules))
	for i, s := range schedules {
		ids[i] = s.VideoID
	}
	return ids
}

// videosByID fetches videos for a set of ids, keyed by id
func (db *DB) videosByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Video, error) {
	qctx, cancel := queryContext(ctx)
	defer cancel()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := db.conn.QueryContext(qctx,
		`SELECT `+videoColumns+` FROM videos WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query videos for claim batch: %w", err)
	}
	defer rows.Close()

	videos := make(map[uuid.UUID]models.Video, len(ids))
	for rows.Next() {
		var v models.Video
		if err := rows.Scan(
			&v.ID, &v.VideoID, &v.Shortcode, &v.AccountID,
			&v.VideoURL, &v.AudioURL, &v.AudioFilePath, &v.Transcription,
			&v.Caption, &v.DurationSeconds,
			&v.PublishedAt, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan video for claim batch: %w", err)
		}
		videos[v.ID] = v
	}
	return videos, rows.Err()
}

// ReleaseSchedule returns a claimed schedule to idle with its next due time.
// lastRunAt is set when the sample succeeded and left untouched otherwise.
func (db *DB) ReleaseSchedule(ctx context.Context, id uuid.UUID, nextDueAt time.Time, intervalSeconds int64, lastRunAt *time.Time) error {
	query := `UPDATE metric_schedules SET
		status = 'idle',
		next_due_at = ?,
		interval_seconds = ?,
		last_run_at = COALESCE(?, last_run_at),
		updated_at = ?
		WHERE id = ?`

	return withRetry(ctx, "release_schedule", func() error {
		qctx, cancel := queryContext(ctx)
		defer cancel()
		if _, err := db.conn.ExecContext(qctx, query,
			nextDueAt, intervalSeconds, lastRunAt, time.Now().UTC(), id); err != nil {
			return fmt.Errorf("failed to release schedule %s: %w", id, err)
		}
		return nil
	})
}

// DisableSchedule marks a schedule disabled. Disabled is terminal: the
// dispatcher claims only idle rows, so the video is never sampled again.
func (db *DB) DisableSchedule(ctx context.Context, id uuid.UUID) error {
	return withRetry(ctx, "disable_schedule", func() error {
		qctx, cancel := queryContext(ctx)
		defer cancel()
		if _, err := db.conn.ExecContext(qctx,
			`UPDATE metric_schedules SET status = 'disabled', updated_at = ? WHERE id = ?`,
			time.Now().UTC(), id); err != nil {
			return fmt.Errorf("failed to disable schedule %s: %w", id, err)
		}
		return nil
	})
}

// ReapStaleSchedules returns leases abandoned by a crashed worker to idle.
// A running row whose updated_at predates the cutoff lost its dispatcher.
// Returns the number of schedules reaped.
func (db *DB) ReapStaleSchedules(ctx context.Context, cutoff time.Time) (int64, error) {
	qctx, cancel := queryContext(ctx)
	defer cancel()

	result, err := db.conn.ExecContext(qctx,
		`UPDATE metric_schedules SET status = 'idle', updated_at = ?
		 WHERE status = 'running' AND updated_at < ?`,
		time.Now().UTC(), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to reap stale schedules: %w", err)
	}
	reaped, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for reap: %w", err)
	}
	return reaped, nil
}
