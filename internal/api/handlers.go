// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

// Package api provides the read-mostly admin HTTP API.
//
// All endpoints live under /api/v1 and return the models.APIResponse
// envelope. The only write is the bulk account seed; everything else reads
// the store the worker maintains.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/reeltrack/internal/config"
	"github.com/tomtom215/reeltrack/internal/database"
	"github.com/tomtom215/reeltrack/internal/instagram"
	"github.com/tomtom215/reeltrack/internal/logging"
	"github.com/tomtom215/reeltrack/internal/models"
	"github.com/tomtom215/reeltrack/internal/worker"
)

// Query and payload bounds
const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
	maxSeedBodySize    = 1 << 20 // 1MB
	maxSeedRecords     = 500
)

// Handler serves the admin API endpoints.
type Handler struct {
	db        *database.DB
	upstream  instagram.API
	workerCfg *config.WorkerConfig
}

// NewHandler creates the handler. upstream is used only to resolve usernames
// during account seeding and may be nil to disable resolution.
func NewHandler(db *database.DB, upstream instagram.API, workerCfg *config.WorkerConfig) *Handler {
	return &Handler{
		db:        db,
		upstream:  upstream,
		workerCfg: workerCfg,
	}
}

// HealthLive reports process liveness. Always 200 while the process serves.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, map[string]string{"status": "alive"}, 0)
}

// HealthReady reports readiness: the store must answer a ping.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		logging.Error().Err(err).Msg("Readiness check failed")
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", "database ping failed")
		return
	}
	respondSuccess(w, map[string]string{"status": "ready"}, 0)
}

// Accounts returns all tracked accounts with their video counts.
func (h *Handler) Accounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accounts, err := h.db.ListAccounts(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list accounts")
		respondError(w, http.StatusInternalServerError, "query_failed", "failed to list accounts")
		return
	}
	counts, err := h.db.CountVideosByAccount(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to count videos")
		respondError(w, http.StatusInternalServerError, "query_failed", "failed to count videos")
		return
	}

	summaries := make([]models.AccountSummary, len(accounts))
	for i, a := range accounts {
		summaries[i] = models.AccountSummary{Account: a, VideoCount: counts[a.ID]}
	}
	respondSuccess(w, summaries, len(summaries))
}

// RecentVideos returns the most recently published videos with their latest
// metric sample. ?limit caps the page size.
func (h *Handler) RecentVideos(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		if parsed > maxRecentLimit {
			parsed = maxRecentLimit
		}
		limit = parsed
	}

	videos, err := h.db.ListRecentVideos(r.Context(), limit)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to list recent videos")
		respondError(w, http.StatusInternalServerError, "query_failed", "failed to list videos")
		return
	}
	respondSuccess(w, videos, len(videos))
}

// WorkerStatus derives the worker's liveness from its heartbeat row.
func (h *Handler) WorkerStatus(w http.ResponseWriter, r *http.Request) {
	hb, err := h.db.GetHeartbeat(r.Context(), worker.WorkerName)
	if errors.Is(err, database.ErrNotFound) {
		respondSuccess(w, models.WorkerStatusView{Status: "stopped"}, 0)
		return
	}
	if err != nil {
		logging.Error().Err(err).Msg("Failed to read heartbeat")
		respondError(w, http.StatusInternalServerError, "query_failed", "failed to read heartbeat")
		return
	}

	view := models.WorkerStatusView{
		Status:        h.deriveWorkerStatus(hb),
		LastHeartbeat: &hb.LastHeartbeat,
		PID:           &hb.PID,
	}
	respondSuccess(w, view, 0)
}

// deriveWorkerStatus classifies a heartbeat row. A clean shutdown or a
// heartbeat older than the lease window both count as stopped; anything past
// two missed beats is stale.
func (h *Handler) deriveWorkerStatus(hb *models.WorkerHeartbeat) string {
	if hb.Status == models.WorkerStopped {
		return "stopped"
	}
	age := time.Since(hb.LastHeartbeat)
	switch {
	case age > h.workerCfg.LeaseTimeout():
		return "stopped"
	case age > 2*h.workerCfg.HeartbeatInterval():
		return "stale"
	default:
		return "running"
	}
}

// SeedAccounts bulk-imports tracked accounts.
//
// Records without a user_pk are resolved against the upstream; records that
// still have no pk afterwards are rejected by username. Existing accounts
// are skipped, never overwritten.
func (h *Handler) SeedAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxSeedBodySize))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "failed to read request body")
		return
	}
	var records []models.SeedRecord
	if err := json.Unmarshal(body, &records); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", "body must be a JSON array of seed records")
		return
	}
	if len(records) == 0 {
		respondError(w, http.StatusBadRequest, "empty_seed", "no records to seed")
		return
	}
	if len(records) > maxSeedRecords {
		respondError(w, http.StatusBadRequest, "too_many_records", "at most 500 records per request")
		return
	}

	var accounts []models.Account
	var rejected []string
	for _, rec := range records {
		if rec.Username == "" {
			rejected = append(rejected, "(missing username)")
			continue
		}
		account, ok := h.resolveSeedRecord(ctx, rec)
		if !ok {
			rejected = append(rejected, rec.Username)
			continue
		}
		accounts = append(accounts, account)
	}

	inserted, skipped := 0, 0
	if len(accounts) > 0 {
		inserted, skipped, err = h.db.SeedAccounts(ctx, accounts)
		if err != nil {
			logging.Error().Err(err).Msg("Account seed failed")
			respondError(w, http.StatusInternalServerError, "seed_failed", "failed to insert accounts")
			return
		}
	}

	logging.Info().Int("inserted", inserted).Int("skipped", skipped).Int("rejected", len(rejected)).
		Msg("Account seed completed")
	respondSuccess(w, models.SeedResult{
		Inserted: inserted,
		Skipped:  skipped,
		Rejected: rejected,
	}, inserted)
}

// resolveSeedRecord turns a seed record into an insertable account,
// resolving the username upstream when no pk was supplied.
func (h *Handler) resolveSeedRecord(ctx context.Context, rec models.SeedRecord) (models.Account, bool) {
	if rec.UserPK != nil {
		return models.Account{ID: *rec.UserPK, Username: rec.Username}, true
	}
	if h.upstream == nil {
		return models.Account{}, false
	}

	info, err := h.upstream.ResolveUsername(ctx, rec.Username)
	if err != nil {
		logging.Warn().Err(err).Str("username", rec.Username).Msg("Failed to resolve seed username")
		return models.Account{}, false
	}

	account := models.Account{
		ID:             info.UserPK,
		Username:       info.Username,
		FollowersCount: info.FollowersCount,
	}
	if info.ProfileURL != "" {
		account.ProfileURL = &info.ProfileURL
	}
	return account, true
}
