// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/reeltrack/internal/instagram"
	"github.com/tomtom215/reeltrack/internal/logging"
	"github.com/tomtom215/reeltrack/internal/metrics"
	"github.com/tomtom215/reeltrack/internal/models"
	"github.com/tomtom215/reeltrack/internal/schedule"
)

// runDiscover walks every tracked account and persists its new videos.
//
// Accounts are processed strictly one at a time with a pause between them.
// An account whose feed is gone upstream is skipped; an auth failure or a
// rate limit aborts the whole tick, since every remaining account would hit
// the same wall.
func (w *Worker) runDiscover(ctx context.Context) error {
	accounts, err := w.db.ListAccounts(ctx)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		logging.Debug().Msg("No accounts to discover")
		return nil
	}

	var firstErr error
	for i, account := range accounts {
		if i > 0 {
			if err := sleepCtx(ctx, w.cfg.InterAccountDelay()); err != nil {
				return err
			}
		}

		err := w.discoverAccount(ctx, account)
		switch {
		case err == nil:
		case instagram.IsNotFound(err):
			logging.Warn().Str("username", account.Username).Msg("Account feed not found upstream, skipping")
		case instagram.IsAuth(err):
			return err
		default:
			if retryAfter, ok := instagram.IsRateLimit(err); ok {
				logging.Warn().Dur("retry_after", retryAfter).Msg("Rate limited during discovery, aborting tick")
				return err
			}
			logging.Error().Err(err).Str("username", account.Username).Msg("Discovery failed for account")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// discoverAccount fetches one account's recent media, newest first, and
// persists anything unseen. Without FullScan the walk stops at the first
// already-known shortcode; everything behind it is older and known.
func (w *Worker) discoverAccount(ctx context.Context, account models.Account) error {
	items, err := w.api.RecentMedia(ctx, account.ID, w.cfg.ReelsLimit)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(items))
	discovered := 0
	followers := account.FollowersCount

	for _, item := range items {
		if item.Shortcode == "" || seen[item.Shortcode] {
			continue
		}
		seen[item.Shortcode] = true
		if item.FollowersCount > 0 {
			followers = item.FollowersCount
		}

		video := newVideoFromSummary(account.ID, item)
		inserted, err := w.db.InsertVideo(ctx, video)
		if err != nil {
			return err
		}
		if !inserted {
			if w.cfg.FullScan {
				continue
			}
			break
		}

		discovered++
		metrics.VideosDiscovered.Inc()
		logging.Info().
			Str("username", account.Username).
			Str("shortcode", item.Shortcode).
			Time("published_at", item.PublishedAt).
			Msg("Discovered new video")

		w.enrichVideo(ctx, video, item)
		w.recordBaseline(ctx, video, item)

		if err := w.scheduleVideo(ctx, video); err != nil {
			return err
		}
	}

	if discovered > 0 || followers != account.FollowersCount {
		account.FollowersCount = followers
		if err := w.db.UpsertAccount(ctx, &account); err != nil {
			logging.Error().Err(err).Str("username", account.Username).Msg("Failed to refresh account")
		}
	}
	return nil
}

// newVideoFromSummary maps a feed item to a Video row
func newVideoFromSummary(accountID int64, item instagram.MediaSummary) *models.Video {
	v := &models.Video{
		ID:          uuid.New(),
		VideoID:     item.VideoID,
		Shortcode:   item.Shortcode,
		AccountID:   accountID,
		PublishedAt: item.PublishedAt,
	}
	if item.VideoURL != "" {
		v.VideoURL = &item.VideoURL
	}
	if item.AudioURL != "" {
		v.AudioURL = &item.AudioURL
	}
	if item.Caption != "" {
		v.Caption = &item.Caption
	}
	if item.DurationSeconds > 0 {
		v.DurationSeconds = &item.DurationSeconds
	}
	return v
}

// enrichVideo runs best-effort audio extraction and transcription. Failures
// are already logged inside the enricher and never fail discovery.
func (w *Worker) enrichVideo(ctx context.Context, video *models.Video, item instagram.MediaSummary) {
	if w.enricher == nil {
		return
	}

	mediaURL := item.VideoURL
	if mediaURL == "" {
		mediaURL = item.AudioURL
	}

	audioPath, transcription := w.enricher.Enrich(ctx, video.Shortcode, mediaURL)
	if audioPath == nil && transcription == nil {
		return
	}
	if err := w.db.SetVideoEnrichment(ctx, video.ID, audioPath, transcription); err != nil {
		logging.Error().Err(err).Str("shortcode", video.Shortcode).Msg("Failed to store enrichment")
	}
}

// recordBaseline appends the engagement counts observed in the feed listing
// as the video's first metric sample.
func (w *Worker) recordBaseline(ctx context.Context, video *models.Video, item instagram.MediaSummary) {
	metric := &models.Metric{
		VideoID:        video.ID,
		ViewCount:      item.ViewCount,
		LikeCount:      item.LikeCount,
		CommentCount:   item.CommentCount,
		FollowersCount: item.FollowersCount,
		MeasuredAt:     time.Now().UTC(),
	}
	if err := w.db.AppendMetric(ctx, metric); err != nil {
		logging.Error().Err(err).Str("shortcode", video.Shortcode).Msg("Failed to record baseline metric")
	}
}

// scheduleVideo creates the metric schedule for a newly discovered video.
// Cadence comes from the video's age; the first sample is one interval out.
func (w *Worker) scheduleVideo(ctx context.Context, video *models.Video) error {
	now := time.Now().UTC()
	interval := schedule.Interval(now.Sub(video.PublishedAt))

	return w.db.CreateSchedule(ctx, &models.MetricSchedule{
		VideoID:         video.ID,
		NextDueAt:       schedule.NextDue(video.PublishedAt, now),
		IntervalSeconds: int64(interval.Seconds()),
		Status:          models.ScheduleIdle,
	})
}
