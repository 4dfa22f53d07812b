// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

// Package worker implements the unified scheduling worker.
//
// One Worker runs four periodic jobs, each on its own ticker:
//
//   - discover:   pull recent media for every tracked account, persist new
//     videos, enrich them and create their metric schedules
//   - reschedule: recompute the sampling cadence of idle schedules as their
//     videos age across cadence buckets
//   - dispatch:   claim due schedules and append a fresh metric sample per
//     claimed video
//   - heartbeat:  upsert the liveness row the admin API reads
//
// Every job runs once at startup and then on its interval. A job that fails
// more than maxConsecutiveFailures times in a row pauses for one interval
// before trying again, so a broken upstream cannot melt the logs.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/reeltrack/internal/config"
	"github.com/tomtom215/reeltrack/internal/database"
	"github.com/tomtom215/reeltrack/internal/enrich"
	"github.com/tomtom215/reeltrack/internal/instagram"
	"github.com/tomtom215/reeltrack/internal/logging"
	"github.com/tomtom215/reeltrack/internal/metrics"
)

// WorkerName identifies this process in the worker_heartbeats table.
const WorkerName = "unified_worker"

// maxConsecutiveFailures is how many back-to-back failures a job tolerates
// before pausing for one interval.
const maxConsecutiveFailures = 5

// Worker owns the four scheduler jobs and their shared dependencies.
//
// Thread Safety: safe to Serve from one goroutine; each job runs in its own
// goroutine with a per-job reentrancy guard.
type Worker struct {
	db       *database.DB
	api      instagram.API
	enricher *enrich.Enricher
	cfg      *config.WorkerConfig
}

// job is one periodic task with its failure-tracking state.
// failures and pausedUntil are touched only by the goroutine that holds busy.
type job struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error

	busy        atomic.Bool
	failures    int
	pausedUntil time.Time
}

// New creates a worker. The enricher may be nil, in which case discovered
// videos are stored without audio or transcription.
func New(db *database.DB, api instagram.API, enricher *enrich.Enricher, cfg *config.WorkerConfig) *Worker {
	return &Worker{
		db:       db,
		api:      api,
		enricher: enricher,
		cfg:      cfg,
	}
}

// Serve implements suture.Service. It reaps leases abandoned by a previous
// crash, starts the four job loops and blocks until the context is canceled.
func (w *Worker) Serve(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-w.cfg.LeaseTimeout())
	reaped, err := w.db.ReapStaleSchedules(ctx, cutoff)
	if err != nil {
		return err
	}
	if reaped > 0 {
		metrics.SchedulesReaped.Add(float64(reaped))
		logging.Warn().Int64("count", reaped).Msg("Reaped stale schedule leases from previous run")
	}

	jobs := []*job{
		{name: "discover", interval: w.cfg.DiscoverInterval(), run: w.runDiscover},
		{name: "reschedule", interval: w.cfg.RescheduleInterval(), run: w.runReschedule},
		{name: "dispatch", interval: w.cfg.DispatchInterval(), run: w.runDispatch},
		{name: "heartbeat", interval: w.cfg.HeartbeatInterval(), run: w.runHeartbeat},
	}

	logging.Info().
		Dur("discover_interval", w.cfg.DiscoverInterval()).
		Dur("dispatch_interval", w.cfg.DispatchInterval()).
		Bool("test_mode", w.cfg.TestMode).
		Msg("Starting unified worker")

	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j *job) {
			defer wg.Done()
			w.runLoop(ctx, j)
		}(j)
	}
	wg.Wait()

	logging.Info().Msg("Unified worker stopped")
	return ctx.Err()
}

// runLoop runs a job once immediately, then on its ticker until shutdown.
func (w *Worker) runLoop(ctx context.Context, j *job) {
	w.tick(ctx, j)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx, j)
		}
	}
}

// tick runs one job iteration with reentrancy guard, pause handling and
// failure accounting.
func (w *Worker) tick(ctx context.Context, j *job) {
	if !j.busy.CompareAndSwap(false, true) {
		metrics.JobRuns.WithLabelValues(j.name, "skipped").Inc()
		logging.Info().Str("job", j.name).Msg("Previous run still in progress, skipping tick")
		return
	}
	defer j.busy.Store(false)

	if now := time.Now(); now.Before(j.pausedUntil) {
		metrics.JobRuns.WithLabelValues(j.name, "skipped").Inc()
		logging.Debug().Str("job", j.name).Time("until", j.pausedUntil).Msg("Job paused after repeated failures")
		return
	}

	start := time.Now()
	err := j.run(ctx)
	metrics.JobDuration.WithLabelValues(j.name).Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			return // Shutdown, not a job failure
		}
		j.failures++
		metrics.JobRuns.WithLabelValues(j.name, "error").Inc()
		metrics.JobConsecutiveFailures.WithLabelValues(j.name).Set(float64(j.failures))
		logging.Error().Err(err).Str("job", j.name).Int("consecutive_failures", j.failures).Msg("Job run failed")

		if j.failures > maxConsecutiveFailures {
			j.pausedUntil = time.Now().Add(j.interval)
			logging.Warn().Str("job", j.name).Dur("pause", j.interval).Msg("Pausing job after repeated failures")
		}
		return
	}

	j.failures = 0
	j.pausedUntil = time.Time{}
	metrics.JobRuns.WithLabelValues(j.name, "ok").Inc()
	metrics.JobConsecutiveFailures.WithLabelValues(j.name).Set(0)
}

// sleepCtx pauses for d or until the context is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
