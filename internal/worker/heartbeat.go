// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

package worker

import (
	"context"
	"os"

	"github.com/tomtom215/reeltrack/internal/metrics"
)

// runHeartbeat upserts the liveness row. The admin API derives the worker's
// visible state from how fresh this row is.
func (w *Worker) runHeartbeat(ctx context.Context) error {
	if err := w.db.UpsertHeartbeat(ctx, WorkerName, os.Getpid()); err != nil {
		return err
	}
	metrics.HeartbeatTimestamp.SetToCurrentTime()
	return nil
}
