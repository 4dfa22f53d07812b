// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

// Package metrics provides Prometheus instrumentation for Reeltrack:
// scheduler job outcomes, upstream call health, enrichment results and
// admin API traffic.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scheduler job metrics
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_job_runs_total",
			Help: "Total number of scheduler job ticks by outcome",
		},
		[]string{"job", "outcome"}, // outcome: "ok", "error", "skipped"
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worker_job_duration_seconds",
			Help:    "Duration of scheduler job ticks in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"job"},
	)

	JobConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_job_consecutive_failures",
			Help: "Consecutive failures of a scheduler job; the job pauses above 5",
		},
		[]string{"job"},
	)

	// Discovery and dispatch metrics
	VideosDiscovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_videos_discovered_total",
			Help: "Total number of new videos discovered",
		},
	)

	MetricsSampled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_metrics_sampled_total",
			Help: "Total number of metric samples by outcome",
		},
		[]string{"outcome"}, // "ok", "not_found", "rate_limited", "error"
	)

	SchedulesClaimed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "worker_schedules_claimed_per_tick",
			Help:    "Number of due schedules claimed per dispatch tick",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
		},
	)

	SchedulesReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worker_schedules_reaped_total",
			Help: "Total number of abandoned schedule leases returned to idle",
		},
	)

	// Enrichment metrics
	EnrichmentResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_enrichment_results_total",
			Help: "Total number of enrichment attempts by result",
		},
		[]string{"stage", "result"}, // stage: "extract", "transcribe"; result: "ok", "skipped", "failed"
	)

	// Upstream client metrics
	UpstreamCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_calls_total",
			Help: "Total number of upstream API calls by resource and status",
		},
		[]string{"resource", "status"},
	)

	UpstreamCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_call_duration_seconds",
			Help:    "Duration of upstream API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "upstream_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Admin API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of admin API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of admin API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of in-flight admin API requests",
		},
	)

	// Heartbeat metrics
	HeartbeatTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_last_heartbeat_timestamp_seconds",
			Help: "Unix timestamp of the last successful heartbeat upsert",
		},
	)
)

// RecordAPIRequest records one completed admin API request
func RecordAPIRequest(method, path, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, path, status).Inc()
	APIRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge
func TrackActiveRequest(start bool) {
	if start {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
