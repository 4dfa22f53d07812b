// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

package worker

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/reeltrack/internal/config"
	"github.com/tomtom215/reeltrack/internal/database"
	"github.com/tomtom215/reeltrack/internal/enrich"
	"github.com/tomtom215/reeltrack/internal/instagram"
	"github.com/tomtom215/reeltrack/internal/models"
)

// fakeAPI is a canned upstream for worker tests.
type fakeAPI struct {
	media        map[int64][]instagram.MediaSummary
	mediaErr     error
	metricsByID  map[int64]*instagram.MediaMetrics
	metricsErr   error
	metricsCalls atomic.Int32
}

func (f *fakeAPI) Authenticate(_ context.Context) error { return nil }

func (f *fakeAPI) ResolveUsername(_ context.Context, username string) (*instagram.UserInfo, error) {
	return nil, &instagram.NotFoundError{Resource: "user " + username}
}

func (f *fakeAPI) RecentMedia(_ context.Context, userPK int64, _ int) ([]instagram.MediaSummary, error) {
	if f.mediaErr != nil {
		return nil, f.mediaErr
	}
	items, ok := f.media[userPK]
	if !ok {
		return nil, &instagram.NotFoundError{Resource: "feed"}
	}
	return items, nil
}

func (f *fakeAPI) MediaMetrics(_ context.Context, mediaID int64) (*instagram.MediaMetrics, error) {
	f.metricsCalls.Add(1)
	if f.metricsErr != nil {
		return nil, f.metricsErr
	}
	m, ok := f.metricsByID[mediaID]
	if !ok {
		return nil, &instagram.NotFoundError{Resource: "media"}
	}
	return m, nil
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{URL: ":memory:", MaxOpenConns: 2})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})
	return db
}

func testWorkerConfig(t *testing.T) *config.WorkerConfig {
	t.Helper()
	return &config.WorkerConfig{
		IntervalHours:     6,
		ReelsLimit:        50,
		AudioDir:          t.TempDir(),
		DispatchBatchSize: 25,
		TestMode:          true,
	}
}

func seedAccount(t *testing.T, db *database.DB, id int64, username string) models.Account {
	t.Helper()
	a := models.Account{ID: id, Username: username, FollowersCount: 1000}
	if err := db.UpsertAccount(context.Background(), &a); err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}
	return a
}

func seedVideoWithSchedule(t *testing.T, db *database.DB, accountID int64, shortcode string, publishedAt, nextDueAt time.Time) *models.Video {
	t.Helper()
	ctx := context.Background()
	v := &models.Video{
		VideoID:     int64(uuid.New().ID()),
		Shortcode:   shortcode,
		AccountID:   accountID,
		PublishedAt: publishedAt,
	}
	if _, err := db.InsertVideo(ctx, v); err != nil {
		t.Fatalf("failed to seed video: %v", err)
	}
	err := db.CreateSchedule(ctx, &models.MetricSchedule{
		VideoID:         v.ID,
		NextDueAt:       nextDueAt,
		IntervalSeconds: 3600,
	})
	if err != nil {
		t.Fatalf("failed to seed schedule: %v", err)
	}
	return v
}

func mediaSummary(shortcode string, publishedAt time.Time) instagram.MediaSummary {
	return instagram.MediaSummary{
		VideoID:         int64(uuid.New().ID()),
		Shortcode:       shortcode,
		VideoURL:        "https://cdn.example/" + shortcode + ".mp4",
		Caption:         "caption for " + shortcode,
		DurationSeconds: 14.5,
		PublishedAt:     publishedAt,
		ViewCount:       100,
		LikeCount:       10,
		CommentCount:    2,
		FollowersCount:  5000,
	}
}

func TestDiscoverPersistsNewVideos(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	account := seedAccount(t, db, 42, "creator")

	now := time.Now().UTC()
	api := &fakeAPI{media: map[int64][]instagram.MediaSummary{
		account.ID: {
			mediaSummary("SCNEW", now.Add(-30*time.Minute)),
			mediaSummary("SCOLD", now.Add(-48*time.Hour)),
		},
	}}
	w := New(db, api, nil, testWorkerConfig(t))

	if err := w.runDiscover(ctx); err != nil {
		t.Fatalf("runDiscover failed: %v", err)
	}

	fresh, err := db.GetVideoByShortcode(ctx, "SCNEW")
	if err != nil {
		t.Fatalf("new video not persisted: %v", err)
	}
	if fresh.Caption == nil || *fresh.Caption != "caption for SCNEW" {
		t.Errorf("caption = %v, want caption for SCNEW", fresh.Caption)
	}
	old, err := db.GetVideoByShortcode(ctx, "SCOLD")
	if err != nil {
		t.Fatalf("older video not persisted: %v", err)
	}

	// Fresh video gets the tightest cadence, two-day-old video the loosest
	freshSched, err := db.ScheduleForVideo(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("no schedule for fresh video: %v", err)
	}
	if freshSched.IntervalSeconds != 3600 {
		t.Errorf("fresh interval = %d, want 3600", freshSched.IntervalSeconds)
	}
	oldSched, err := db.ScheduleForVideo(ctx, old.ID)
	if err != nil {
		t.Fatalf("no schedule for old video: %v", err)
	}
	if oldSched.IntervalSeconds != 86400 {
		t.Errorf("old interval = %d, want 86400", oldSched.IntervalSeconds)
	}
	if oldSched.Status != models.ScheduleIdle {
		t.Errorf("schedule status = %s, want idle", oldSched.Status)
	}

	// Baseline metric from the listing counts
	baseline, err := db.LatestMetricForVideo(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("no baseline metric: %v", err)
	}
	if baseline.ViewCount != 100 || baseline.LikeCount != 10 {
		t.Errorf("baseline = %d views %d likes, want 100/10", baseline.ViewCount, baseline.LikeCount)
	}
	if baseline.SaveCount != nil {
		t.Errorf("baseline save count = %v, want nil (listing does not carry it)", baseline.SaveCount)
	}

	// Follower count refreshed from the feed
	refreshed, err := db.GetAccount(ctx, account.ID)
	if err != nil {
		t.Fatalf("GetAccount failed: %v", err)
	}
	if refreshed.FollowersCount != 5000 {
		t.Errorf("followers = %d, want 5000", refreshed.FollowersCount)
	}
}

func TestDiscoverStopsAtKnownShortcode(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	account := seedAccount(t, db, 42, "creator")

	now := time.Now().UTC()
	known := mediaSummary("SCKNOWN", now.Add(-2*time.Hour))
	seedVideoWithSchedule(t, db, account.ID, known.Shortcode, known.PublishedAt, now.Add(time.Hour))

	api := &fakeAPI{media: map[int64][]instagram.MediaSummary{
		account.ID: {
			mediaSummary("SCNEW", now.Add(-time.Hour)),
			known,
			mediaSummary("SCBEHIND", now.Add(-3*time.Hour)),
		},
	}}
	w := New(db, api, nil, testWorkerConfig(t))

	if err := w.runDiscover(ctx); err != nil {
		t.Fatalf("runDiscover failed: %v", err)
	}

	if _, err := db.GetVideoByShortcode(ctx, "SCNEW"); err != nil {
		t.Errorf("video before the known shortcode not persisted: %v", err)
	}
	if _, err := db.GetVideoByShortcode(ctx, "SCBEHIND"); err == nil {
		t.Errorf("video behind the known shortcode persisted; walk should have stopped")
	}
}

func TestDiscoverFullScanWalksPastKnown(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	account := seedAccount(t, db, 42, "creator")

	now := time.Now().UTC()
	known := mediaSummary("SCKNOWN", now.Add(-2*time.Hour))
	seedVideoWithSchedule(t, db, account.ID, known.Shortcode, known.PublishedAt, now.Add(time.Hour))

	api := &fakeAPI{media: map[int64][]instagram.MediaSummary{
		account.ID: {
			mediaSummary("SCNEW", now.Add(-time.Hour)),
			known,
			mediaSummary("SCBEHIND", now.Add(-3*time.Hour)),
		},
	}}
	cfg := testWorkerConfig(t)
	cfg.FullScan = true
	w := New(db, api, nil, cfg)

	if err := w.runDiscover(ctx); err != nil {
		t.Fatalf("runDiscover failed: %v", err)
	}

	if _, err := db.GetVideoByShortcode(ctx, "SCBEHIND"); err != nil {
		t.Errorf("full scan should persist videos behind a known shortcode: %v", err)
	}
}

// discoverExtractor writes canned audio bytes
type discoverExtractor struct{}

func (discoverExtractor) Extract(_ context.Context, _, outPath string) error {
	return os.WriteFile(outPath, []byte("mp3"), 0o600)
}

// discoverTranscriber returns canned text
type discoverTranscriber struct{}

func (discoverTranscriber) Transcribe(_ context.Context, _ string) (string, error) {
	return "transcribed words", nil
}

func TestDiscoverEnrichesNewVideos(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	account := seedAccount(t, db, 42, "creator")

	api := &fakeAPI{media: map[int64][]instagram.MediaSummary{
		account.ID: {mediaSummary("SCENR", time.Now().UTC().Add(-time.Hour))},
	}}
	cfg := testWorkerConfig(t)
	enricher, err := enrich.New(cfg.AudioDir, discoverExtractor{}, discoverTranscriber{})
	if err != nil {
		t.Fatalf("enrich.New failed: %v", err)
	}
	w := New(db, api, enricher, cfg)

	if err := w.runDiscover(ctx); err != nil {
		t.Fatalf("runDiscover failed: %v", err)
	}

	v, err := db.GetVideoByShortcode(ctx, "SCENR")
	if err != nil {
		t.Fatalf("video not persisted: %v", err)
	}
	if v.AudioFilePath == nil || *v.AudioFilePath != enricher.AudioPath("SCENR") {
		t.Errorf("audio_file_path = %v, want %q", v.AudioFilePath, enricher.AudioPath("SCENR"))
	}
	if v.Transcription == nil || *v.Transcription != "transcribed words" {
		t.Errorf("transcription = %v, want transcribed words", v.Transcription)
	}
}

func TestDispatchSamplesDueSchedule(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	account := seedAccount(t, db, 42, "creator")

	now := time.Now().UTC()
	v := seedVideoWithSchedule(t, db, account.ID, "SCDUE", now.Add(-48*time.Hour), now.Add(-time.Minute))

	saves := int64(7)
	api := &fakeAPI{metricsByID: map[int64]*instagram.MediaMetrics{
		v.VideoID: {ViewCount: 500, LikeCount: 50, CommentCount: 5, SaveCount: &saves, FollowersCount: 6000},
	}}
	w := New(db, api, nil, testWorkerConfig(t))

	if err := w.runDispatch(ctx); err != nil {
		t.Fatalf("runDispatch failed: %v", err)
	}

	m, err := db.LatestMetricForVideo(ctx, v.ID)
	if err != nil {
		t.Fatalf("no metric appended: %v", err)
	}
	if m.ViewCount != 500 || m.SaveCount == nil || *m.SaveCount != 7 {
		t.Errorf("metric = %d views, saves %v, want 500 views 7 saves", m.ViewCount, m.SaveCount)
	}

	s, err := db.ScheduleForVideo(ctx, v.ID)
	if err != nil {
		t.Fatalf("ScheduleForVideo failed: %v", err)
	}
	if s.Status != models.ScheduleIdle {
		t.Errorf("status = %s, want idle after release", s.Status)
	}
	if s.IntervalSeconds != 86400 {
		t.Errorf("interval = %d, want 86400 for a two-day-old video", s.IntervalSeconds)
	}
	if s.NextDueAt.Before(now.Add(23 * time.Hour)) {
		t.Errorf("next_due_at = %s, want roughly a day out", s.NextDueAt)
	}
	if s.LastRunAt == nil || s.LastRunAt.Before(now.Add(-time.Minute)) {
		t.Errorf("last_run_at = %v, want the sample time", s.LastRunAt)
	}
}

func TestDispatchDisablesGoneMedia(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	account := seedAccount(t, db, 42, "creator")

	now := time.Now().UTC()
	v := seedVideoWithSchedule(t, db, account.ID, "SCGONE", now.Add(-2*time.Hour), now.Add(-time.Minute))

	api := &fakeAPI{metricsErr: &instagram.NotFoundError{Resource: "media"}}
	w := New(db, api, nil, testWorkerConfig(t))

	if err := w.runDispatch(ctx); err != nil {
		t.Fatalf("runDispatch failed: %v", err)
	}

	s, err := db.ScheduleForVideo(ctx, v.ID)
	if err != nil {
		t.Fatalf("ScheduleForVideo failed: %v", err)
	}
	if s.Status != models.ScheduleDisabled {
		t.Errorf("status = %s, want disabled for gone media", s.Status)
	}
	if _, err := db.LatestMetricForVideo(ctx, v.ID); err == nil {
		t.Errorf("metric appended for gone media")
	}
}

func TestDispatchRateLimitDefersBatch(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	account := seedAccount(t, db, 42, "creator")

	now := time.Now().UTC()
	v1 := seedVideoWithSchedule(t, db, account.ID, "SCRL1", now.Add(-2*time.Hour), now.Add(-2*time.Minute))
	v2 := seedVideoWithSchedule(t, db, account.ID, "SCRL2", now.Add(-2*time.Hour), now.Add(-time.Minute))

	api := &fakeAPI{metricsErr: &instagram.RateLimitError{RetryAfter: 90 * time.Second}}
	w := New(db, api, nil, testWorkerConfig(t))

	err := w.runDispatch(ctx)
	if _, ok := instagram.IsRateLimit(err); !ok {
		t.Fatalf("runDispatch error = %v, want rate limit", err)
	}

	// One upstream call, then the whole batch deferred
	if calls := api.metricsCalls.Load(); calls != 1 {
		t.Errorf("upstream calls = %d, want 1", calls)
	}
	for _, v := range []*models.Video{v1, v2} {
		s, err := db.ScheduleForVideo(ctx, v.ID)
		if err != nil {
			t.Fatalf("ScheduleForVideo failed: %v", err)
		}
		if s.Status != models.ScheduleIdle {
			t.Errorf("%s status = %s, want idle", v.Shortcode, s.Status)
		}
		if s.NextDueAt.Before(now.Add(85 * time.Second)) {
			t.Errorf("%s next_due_at = %s, want deferred past the retry window", v.Shortcode, s.NextDueAt)
		}
		if s.LastRunAt != nil {
			t.Errorf("%s last_run_at = %v, want nil (no successful sample)", v.Shortcode, s.LastRunAt)
		}
	}
}

func TestRescheduleMovesAgedVideoToLooserCadence(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	account := seedAccount(t, db, 42, "creator")

	now := time.Now().UTC()
	// Ten hours old but still carrying the one-hour cadence
	aged := seedVideoWithSchedule(t, db, account.ID, "SCAGED", now.Add(-10*time.Hour), now.Add(30*time.Minute))
	// Two hours old; the two-hour cadence is still correct
	settled := seedVideoWithSchedule(t, db, account.ID, "SCSET", now.Add(-2*time.Hour), now.Add(45*time.Minute))
	if _, err := db.RescheduleIdle(ctx, mustSchedule(t, db, settled.ID).ID, now.Add(45*time.Minute), 7200); err != nil {
		t.Fatalf("failed to settle schedule: %v", err)
	}

	w := New(db, &fakeAPI{}, nil, testWorkerConfig(t))
	if err := w.runReschedule(ctx); err != nil {
		t.Fatalf("runReschedule failed: %v", err)
	}

	agedSched := mustSchedule(t, db, aged.ID)
	if agedSched.IntervalSeconds != 43200 {
		t.Errorf("aged interval = %d, want 43200", agedSched.IntervalSeconds)
	}
	if agedSched.NextDueAt.Before(now.Add(11 * time.Hour)) {
		t.Errorf("aged next_due_at = %s, want pushed about twelve hours out", agedSched.NextDueAt)
	}

	settledSched := mustSchedule(t, db, settled.ID)
	if settledSched.IntervalSeconds != 7200 {
		t.Errorf("settled interval = %d, want unchanged 7200", settledSched.IntervalSeconds)
	}
	if !settledSched.NextDueAt.Truncate(time.Second).Equal(now.Add(45 * time.Minute).Truncate(time.Second)) {
		t.Errorf("settled next_due_at = %s, want untouched", settledSched.NextDueAt)
	}
}

func mustSchedule(t *testing.T, db *database.DB, videoID uuid.UUID) *models.MetricSchedule {
	t.Helper()
	s, err := db.ScheduleForVideo(context.Background(), videoID)
	if err != nil {
		t.Fatalf("ScheduleForVideo failed: %v", err)
	}
	return s
}

func TestHeartbeatUpserts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	w := New(db, &fakeAPI{}, nil, testWorkerConfig(t))
	if err := w.runHeartbeat(ctx); err != nil {
		t.Fatalf("runHeartbeat failed: %v", err)
	}

	hb, err := db.GetHeartbeat(ctx, WorkerName)
	if err != nil {
		t.Fatalf("GetHeartbeat failed: %v", err)
	}
	if hb.Status != models.WorkerRunning {
		t.Errorf("status = %s, want running", hb.Status)
	}
	if hb.PID != os.Getpid() {
		t.Errorf("pid = %d, want %d", hb.PID, os.Getpid())
	}
}

func TestDiscoverSkipsMissingAccountFeed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedAccount(t, db, 41, "aaa_gone")
	live := seedAccount(t, db, 42, "bbb_live")

	now := time.Now().UTC()
	api := &fakeAPI{media: map[int64][]instagram.MediaSummary{
		live.ID: {mediaSummary("SCLIVE", now.Add(-time.Hour))},
	}}

	w := New(db, api, nil, testWorkerConfig(t))

	if err := w.runDiscover(ctx); err != nil {
		t.Fatalf("runDiscover failed: %v", err)
	}
	if _, err := db.GetVideoByShortcode(ctx, "SCLIVE"); err != nil {
		t.Errorf("surviving account not discovered after a missing feed: %v", err)
	}
}
