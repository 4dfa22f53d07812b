// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

// Package models defines the persistent entities of Reeltrack and the
// response envelopes of the admin API.
//
// Ownership forms a simple tree: an Account owns its Videos; a Video owns its
// Metrics and its single MetricSchedule. Deletion is not exercised by the
// worker; if added later it cascades Account -> Video -> (Metric,
// MetricSchedule).
package models

import (
	"time"

	"github.com/google/uuid"
)

// ScheduleStatus is the state of a MetricSchedule row.
type ScheduleStatus string

const (
	// ScheduleIdle means the schedule is waiting for its next_due_at.
	ScheduleIdle ScheduleStatus = "idle"
	// ScheduleRunning means exactly one dispatcher holds the lease on this row.
	ScheduleRunning ScheduleStatus = "running"
	// ScheduleDisabled is terminal: the upstream reported the media gone.
	ScheduleDisabled ScheduleStatus = "disabled"
)

// WorkerStatus is the self-reported state of a worker heartbeat row.
type WorkerStatus string

const (
	WorkerRunning WorkerStatus = "running"
	WorkerStopped WorkerStatus = "stopped"
)

// Account is a tracked profile on the upstream platform.
//
// ID is the upstream's own stable numeric user key, used verbatim as the
// primary key. The worker hits per-account upstream endpoints with this id,
// so a locally generated surrogate would silently break discovery.
type Account struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	ProfileURL     *string   `json:"profile_url,omitempty"`
	FollowersCount int64     `json:"followers_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Video is a piece of media owned by one Account.
//
// VideoID and Shortcode are the upstream identifiers and are globally unique.
// AudioFilePath and Transcription are nullable: enrichment may partially
// fail, and a later retry fills them in only while they are null.
type Video struct {
	ID              uuid.UUID `json:"id"`
	VideoID         int64     `json:"video_id"`
	Shortcode       string    `json:"shortcode"`
	AccountID       int64     `json:"account_id"`
	VideoURL        *string   `json:"video_url,omitempty"`
	AudioURL        *string   `json:"audio_url,omitempty"`
	AudioFilePath   *string   `json:"audio_file_path,omitempty"`
	Transcription   *string   `json:"transcription,omitempty"`
	Caption         *string   `json:"caption,omitempty"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
	PublishedAt     time.Time `json:"published_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Metric is an immutable engagement observation of a Video at an instant.
// Rows are append-only and strictly ordered by MeasuredAt per video.
type Metric struct {
	ID             uuid.UUID `json:"id"`
	VideoID        uuid.UUID `json:"video_id"`
	ViewCount      int64     `json:"view_count"`
	LikeCount      int64     `json:"like_count"`
	CommentCount   int64     `json:"comment_count"`
	SaveCount      *int64    `json:"save_count,omitempty"`
	FollowersCount int64     `json:"followers_count"`
	MeasuredAt     time.Time `json:"measured_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// MetricSchedule is the control-plane row driving dispatch-due.
// At most one row exists per Video. Status `running` is a lease held by
// exactly one dispatcher; IntervalSeconds is advisory and recomputed from the
// video's age on every reschedule.
type MetricSchedule struct {
	ID              uuid.UUID      `json:"id"`
	VideoID         uuid.UUID      `json:"video_id"`
	NextDueAt       time.Time      `json:"next_due_at"`
	LastRunAt       *time.Time     `json:"last_run_at,omitempty"`
	IntervalSeconds int64          `json:"interval_seconds"`
	Status          ScheduleStatus `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// WorkerHeartbeat is the liveness record upserted by the scheduler and read
// by the admin API.
type WorkerHeartbeat struct {
	WorkerName    string       `json:"worker_name"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
	Status        WorkerStatus `json:"status"`
	PID           int          `json:"pid"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}
