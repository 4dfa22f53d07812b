// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

package worker

import (
	"context"
	"time"

	"github.com/tomtom215/reeltrack/internal/database"
	"github.com/tomtom215/reeltrack/internal/instagram"
	"github.com/tomtom215/reeltrack/internal/logging"
	"github.com/tomtom215/reeltrack/internal/metrics"
	"github.com/tomtom215/reeltrack/internal/models"
	"github.com/tomtom215/reeltrack/internal/schedule"
)

// transientRetryDelay is how far out a schedule is pushed when its sample
// failed for a retryable reason.
const transientRetryDelay = time.Minute

// runDispatch claims due schedules and samples each claimed video once.
//
// The claim flips the rows to running, which is the at-most-once lease: a
// second dispatcher cannot claim them, and a crash leaves them for the
// startup reaper. Every claimed row is released back to idle on every
// outcome except media-gone, which disables the schedule for good.
func (w *Worker) runDispatch(ctx context.Context) error {
	now := time.Now().UTC()
	claimed, err := w.db.ClaimDueSchedules(ctx, now, w.cfg.DispatchBatchSize)
	if err != nil {
		return err
	}
	metrics.SchedulesClaimed.Observe(float64(len(claimed)))
	if len(claimed) == 0 {
		return nil
	}

	logging.Debug().Int("claimed", len(claimed)).Msg("Dispatching due schedules")

	var firstErr error
	for i, c := range claimed {
		if i > 0 {
			if err := sleepCtx(ctx, w.cfg.InterMetricDelay()); err != nil {
				w.releaseBatch(ctx, claimed[i:], time.Now().UTC().Add(transientRetryDelay))
				return err
			}
		}

		err := w.sampleOne(ctx, c)
		if err == nil {
			continue
		}
		if retryAfter, ok := instagram.IsRateLimit(err); ok {
			// The whole identity is throttled; pushing on burns goodwill.
			resumeAt := time.Now().UTC().Add(retryAfter)
			w.releaseBatch(ctx, claimed[i:], resumeAt)
			logging.Warn().Dur("retry_after", retryAfter).Int("deferred", len(claimed)-i).
				Msg("Rate limited during dispatch, deferring remaining samples")
			return err
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// sampleOne fetches fresh metrics for one claimed video and settles its
// schedule.
func (w *Worker) sampleOne(ctx context.Context, c database.ClaimedSchedule) error {
	m, err := w.api.MediaMetrics(ctx, c.Video.VideoID)
	now := time.Now().UTC()

	switch {
	case err == nil:
		// Appended below.
	case instagram.IsNotFound(err):
		// Media deleted or made private upstream. Terminal for sampling.
		metrics.MetricsSampled.WithLabelValues("not_found").Inc()
		logging.Info().Str("shortcode", c.Video.Shortcode).Msg("Media gone upstream, disabling schedule")
		return w.db.DisableSchedule(ctx, c.Schedule.ID)
	default:
		if _, ok := instagram.IsRateLimit(err); ok {
			metrics.MetricsSampled.WithLabelValues("rate_limited").Inc()
			return err // Caller releases this row and the rest of the batch
		}
		metrics.MetricsSampled.WithLabelValues("error").Inc()
		logging.Error().Err(err).Str("shortcode", c.Video.Shortcode).Msg("Metric sample failed")
		if relErr := w.db.ReleaseSchedule(ctx, c.Schedule.ID,
			now.Add(transientRetryDelay), c.Schedule.IntervalSeconds, nil); relErr != nil {
			logging.Error().Err(relErr).Str("schedule_id", c.Schedule.ID.String()).Msg("Failed to release schedule")
		}
		return err
	}

	metric := &models.Metric{
		VideoID:        c.Video.ID,
		ViewCount:      m.ViewCount,
		LikeCount:      m.LikeCount,
		CommentCount:   m.CommentCount,
		SaveCount:      m.SaveCount,
		FollowersCount: m.FollowersCount,
		MeasuredAt:     now,
	}
	if err := w.db.AppendMetric(ctx, metric); err != nil {
		metrics.MetricsSampled.WithLabelValues("error").Inc()
		if relErr := w.db.ReleaseSchedule(ctx, c.Schedule.ID,
			now.Add(transientRetryDelay), c.Schedule.IntervalSeconds, nil); relErr != nil {
			logging.Error().Err(relErr).Str("schedule_id", c.Schedule.ID.String()).Msg("Failed to release schedule")
		}
		return err
	}

	interval := schedule.Interval(now.Sub(c.Video.PublishedAt))
	if err := w.db.ReleaseSchedule(ctx, c.Schedule.ID,
		schedule.NextDue(c.Video.PublishedAt, now), int64(interval.Seconds()), &now); err != nil {
		return err
	}

	metrics.MetricsSampled.WithLabelValues("ok").Inc()
	return nil
}

// releaseBatch returns still-claimed schedules to idle with a deferred due
// time, keeping their cadence and leaving last_run_at alone.
func (w *Worker) releaseBatch(ctx context.Context, claimed []database.ClaimedSchedule, nextDueAt time.Time) {
	for _, c := range claimed {
		if err := w.db.ReleaseSchedule(ctx, c.Schedule.ID, nextDueAt, c.Schedule.IntervalSeconds, nil); err != nil {
			logging.Error().Err(err).Str("schedule_id", c.Schedule.ID.String()).Msg("Failed to release deferred schedule")
		}
	}
}
