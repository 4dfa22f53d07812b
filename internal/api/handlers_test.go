// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/reeltrack/internal/config"
	"github.com/tomtom215/reeltrack/internal/database"
	"github.com/tomtom215/reeltrack/internal/instagram"
	"github.com/tomtom215/reeltrack/internal/models"
	"github.com/tomtom215/reeltrack/internal/worker"
)

// envelope mirrors models.APIResponse with raw data for per-test decoding
type envelope struct {
	Status   string          `json:"status"`
	Data     json.RawMessage `json:"data"`
	Metadata struct {
		Count int `json:"count"`
	} `json:"metadata"`
	Error *models.APIError `json:"error"`
}

// fakeResolver resolves a fixed set of usernames for seed tests
type fakeResolver struct {
	users map[string]*instagram.UserInfo
}

func (f *fakeResolver) Authenticate(_ context.Context) error { return nil }

func (f *fakeResolver) ResolveUsername(_ context.Context, username string) (*instagram.UserInfo, error) {
	if u, ok := f.users[username]; ok {
		return u, nil
	}
	return nil, &instagram.NotFoundError{Resource: "user " + username}
}

func (f *fakeResolver) RecentMedia(_ context.Context, _ int64, _ int) ([]instagram.MediaSummary, error) {
	return nil, &instagram.NotFoundError{Resource: "feed"}
}

func (f *fakeResolver) MediaMetrics(_ context.Context, _ int64) (*instagram.MediaMetrics, error) {
	return nil, &instagram.NotFoundError{Resource: "media"}
}

func newTestAPI(t *testing.T, upstream instagram.API) (*database.DB, http.Handler) {
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
	workerCfg := &config.WorkerConfig{
		IntervalHours:     6,
		ReelsLimit:        50,
		AudioDir:          t.TempDir(),
		DispatchBatchSize: 25,
		TestMode:          true,
	}
	return db, NewRouter(NewHandler(db, upstream, workerCfg))
}

func doRequest(t *testing.T, router http.Handler, method, path string, body []byte) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("response is not an API envelope: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, env
}

func TestHealthEndpoints(t *testing.T) {
	_, router := newTestAPI(t, nil)

	rec, env := doRequest(t, router, http.MethodGet, "/api/v1/health/live", nil)
	if rec.Code != http.StatusOK || env.Status != "success" {
		t.Errorf("live: code=%d status=%s, want 200 success", rec.Code, env.Status)
	}

	rec, env = doRequest(t, router, http.MethodGet, "/api/v1/health/ready", nil)
	if rec.Code != http.StatusOK || env.Status != "success" {
		t.Errorf("ready: code=%d status=%s, want 200 success", rec.Code, env.Status)
	}
}

func TestAccountsWithVideoCounts(t *testing.T) {
	db, router := newTestAPI(t, nil)
	ctx := context.Background()

	a := models.Account{ID: 42, Username: "creator", FollowersCount: 1000}
	if err := db.UpsertAccount(ctx, &a); err != nil {
		t.Fatalf("UpsertAccount failed: %v", err)
	}
	for _, sc := range []string{"SC1", "SC2"} {
		v := &models.Video{
			VideoID:     int64(uuid.New().ID()),
			Shortcode:   sc,
			AccountID:   a.ID,
			PublishedAt: time.Now().UTC().Add(-time.Hour),
		}
		if _, err := db.InsertVideo(ctx, v); err != nil {
			t.Fatalf("InsertVideo failed: %v", err)
		}
	}

	rec, env := doRequest(t, router, http.MethodGet, "/api/v1/accounts", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var summaries []models.AccountSummary
	if err := json.Unmarshal(env.Data, &summaries); err != nil {
		t.Fatalf("failed to decode summaries: %v", err)
	}
	if len(summaries) != 1 || env.Metadata.Count != 1 {
		t.Fatalf("got %d summaries (count %d), want 1", len(summaries), env.Metadata.Count)
	}
	if summaries[0].VideoCount != 2 {
		t.Errorf("video_count = %d, want 2", summaries[0].VideoCount)
	}
}

func TestRecentVideosRejectsBadLimit(t *testing.T) {
	_, router := newTestAPI(t, nil)

	rec, env := doRequest(t, router, http.MethodGet, "/api/v1/videos/recent?limit=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "invalid_limit" {
		t.Errorf("error = %+v, want invalid_limit", env.Error)
	}
}

func TestRecentVideosWithLatestMetric(t *testing.T) {
	db, router := newTestAPI(t, nil)
	ctx := context.Background()

	a := models.Account{ID: 42, Username: "creator"}
	if err := db.UpsertAccount(ctx, &a); err != nil {
		t.Fatalf("UpsertAccount failed: %v", err)
	}
	v := &models.Video{
		VideoID:     int64(uuid.New().ID()),
		Shortcode:   "SC1",
		AccountID:   a.ID,
		PublishedAt: time.Now().UTC().Add(-time.Hour),
	}
	if _, err := db.InsertVideo(ctx, v); err != nil {
		t.Fatalf("InsertVideo failed: %v", err)
	}
	err := db.AppendMetric(ctx, &models.Metric{VideoID: v.ID, ViewCount: 123, LikeCount: 7})
	if err != nil {
		t.Fatalf("AppendMetric failed: %v", err)
	}

	rec, env := doRequest(t, router, http.MethodGet, "/api/v1/videos/recent", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var videos []models.VideoWithMetric
	if err := json.Unmarshal(env.Data, &videos); err != nil {
		t.Fatalf("failed to decode videos: %v", err)
	}
	if len(videos) != 1 {
		t.Fatalf("got %d videos, want 1", len(videos))
	}
	if videos[0].LatestMetric == nil || videos[0].LatestMetric.ViewCount != 123 {
		t.Errorf("latest_metric = %+v, want view_count 123", videos[0].LatestMetric)
	}
}

func TestWorkerStatusDerivation(t *testing.T) {
	db, router := newTestAPI(t, nil)

	// No heartbeat at all
	rec, env := doRequest(t, router, http.MethodGet, "/api/v1/worker/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var view models.WorkerStatusView
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("failed to decode view: %v", err)
	}
	if view.Status != "stopped" {
		t.Errorf("status without heartbeat = %s, want stopped", view.Status)
	}

	// Fresh heartbeat
	if err := db.UpsertHeartbeat(context.Background(), worker.WorkerName, 1234); err != nil {
		t.Fatalf("UpsertHeartbeat failed: %v", err)
	}
	_, env = doRequest(t, router, http.MethodGet, "/api/v1/worker/status", nil)
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("failed to decode view: %v", err)
	}
	if view.Status != "running" {
		t.Errorf("status with fresh heartbeat = %s, want running", view.Status)
	}
	if view.PID == nil || *view.PID != 1234 {
		t.Errorf("pid = %v, want 1234", view.PID)
	}
}

func TestSeedAccounts(t *testing.T) {
	db, router := newTestAPI(t, &fakeResolver{users: map[string]*instagram.UserInfo{
		"resolvable": {UserPK: 77, Username: "resolvable", FollowersCount: 900},
	}})

	// One pre-existing account to exercise the skip path
	existing := models.Account{ID: 42, Username: "known"}
	if err := db.UpsertAccount(context.Background(), &existing); err != nil {
		t.Fatalf("UpsertAccount failed: %v", err)
	}

	pk := int64(42)
	newPK := int64(55)
	body, err := json.Marshal([]models.SeedRecord{
		{Username: "known", UserPK: &pk},       // skipped, already present
		{Username: "fresh", UserPK: &newPK},    // inserted as-is
		{Username: "resolvable"},               // resolved then inserted
		{Username: "ghost"},                    // unresolvable, rejected
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	rec, env := doRequest(t, router, http.MethodPost, "/api/v1/accounts/seed", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var result models.SeedResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.Inserted != 2 || result.Skipped != 1 {
		t.Errorf("inserted=%d skipped=%d, want 2/1", result.Inserted, result.Skipped)
	}
	if len(result.Rejected) != 1 || result.Rejected[0] != "ghost" {
		t.Errorf("rejected = %v, want [ghost]", result.Rejected)
	}

	resolved, err := db.GetAccount(context.Background(), 77)
	if err != nil {
		t.Fatalf("resolved account not inserted: %v", err)
	}
	if resolved.FollowersCount != 900 {
		t.Errorf("resolved followers = %d, want 900", resolved.FollowersCount)
	}
}

func TestSeedAccountsRejectsBadBody(t *testing.T) {
	_, router := newTestAPI(t, nil)

	rec, env := doRequest(t, router, http.MethodPost, "/api/v1/accounts/seed", []byte("{not json"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "invalid_json" {
		t.Errorf("error = %+v, want invalid_json", env.Error)
	}

	rec, env = doRequest(t, router, http.MethodPost, "/api/v1/accounts/seed", []byte("[]"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty seed code = %d, want 400", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "empty_seed" {
		t.Errorf("error = %+v, want empty_seed", env.Error)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, router := newTestAPI(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, want 200", rec.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	_, router := newTestAPI(t, nil)

	rec, _ := doRequest(t, router, http.MethodGet, "/api/v1/health/live", nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Errorf("missing X-Request-ID response header")
	}
}
