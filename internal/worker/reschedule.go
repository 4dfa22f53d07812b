// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

package worker

import (
	"context"
	"time"

	"github.com/tomtom215/reeltrack/internal/logging"
	"github.com/tomtom215/reeltrack/internal/schedule"
)

// runReschedule moves idle schedules onto the cadence for their video's
// current age. Only schedules whose cadence bucket actually changed are
// rewritten; touching unchanged rows would push their due time forever and
// starve the dispatcher. Running and disabled rows are never rescheduled.
func (w *Worker) runReschedule(ctx context.Context) error {
	idle, err := w.db.ListIdleSchedules(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	updated := 0
	for _, sp := range idle {
		interval := schedule.Interval(now.Sub(sp.PublishedAt))
		seconds := int64(interval.Seconds())
		if seconds == sp.Schedule.IntervalSeconds {
			continue
		}

		ok, err := w.db.RescheduleIdle(ctx, sp.Schedule.ID, schedule.NextDue(sp.PublishedAt, now), seconds)
		if err != nil {
			return err
		}
		if ok {
			updated++
		}
		// !ok means a dispatcher claimed the row mid-pass; it will be
		// rescheduled on release.
	}

	if updated > 0 {
		logging.Info().Int("updated", updated).Msg("Rescheduled videos onto new cadence")
	}
	return nil
}
