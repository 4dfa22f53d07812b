// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

package models

import "time"

// APIResponse is the standard envelope for all admin API responses.
type APIResponse struct {
	Status   string    `json:"status"` // "success" or "error"
	Data     any       `json:"data"`
	Metadata Metadata  `json:"metadata"`
	Error    *APIError `json:"error,omitempty"`
}

// Metadata carries response metadata common to all endpoints.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int       `json:"count,omitempty"`
}

// APIError describes a failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AccountSummary is an Account together with its tracked-video count,
// as returned by GET /api/v1/accounts.
type AccountSummary struct {
	Account
	VideoCount int64 `json:"video_count"`
}

// VideoWithMetric is a Video together with its most recent Metric row (nil
// if no sample has been taken yet), as returned by GET /api/v1/videos/recent.
type VideoWithMetric struct {
	Video
	LatestMetric *Metric `json:"latest_metric,omitempty"`
}

// WorkerStatusView is the derived liveness view of the worker.
// Status is "running" while the heartbeat is fresh, "stale" once it exceeds
// twice the heartbeat interval, and "stopped" when the worker said so or the
// heartbeat is older than the reaper window.
type WorkerStatusView struct {
	Status        string     `json:"status"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
	PID           *int       `json:"pid,omitempty"`
}

// SeedRecord is one entry of the bulk account seed payload.
// UserPK may be null, in which case the importer resolves the username via
// the upstream client before insert; records whose UserPK remains null are
// rejected.
type SeedRecord struct {
	Username string `json:"username" validate:"required"`
	UserPK   *int64 `json:"user_pk"`
}

// SeedResult reports the outcome of a bulk account seed.
type SeedResult struct {
	Inserted int      `json:"inserted"`
	Skipped  int      `json:"skipped"`
	Rejected []string `json:"rejected,omitempty"`
}
