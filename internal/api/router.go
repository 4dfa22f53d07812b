// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/reeltrack/internal/middleware"
)

// Rate limits per client IP
const (
	healthRateLimit = 1000 // per minute, monitoring probes are chatty
	apiRateLimit    = 300  // per minute
	seedRateLimit   = 10   // per minute, seeding is rare and hits the upstream
)

// NewRouter wires the admin API routes with their middleware stacks.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(healthRateLimit, time.Minute))
		r.Get("/live", handler.HealthLive)
		r.Get("/ready", handler.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(apiRateLimit, time.Minute))
		r.Use(middleware.Prometheus)

		r.Get("/accounts", handler.Accounts)
		r.Get("/videos/recent", handler.RecentVideos)
		r.Get("/worker/status", handler.WorkerStatus)

		r.With(httprate.LimitByIP(seedRateLimit, time.Minute)).
			Post("/accounts/seed", handler.SeedAccounts)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
