// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

package instagram

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/reeltrack/internal/logging"
	"github.com/tomtom215/reeltrack/internal/metrics"
)

// BreakerClient wraps an API with a circuit breaker so a broken or
// throttling upstream stops consuming the worker's call budget.
//
// Rate-limit responses do not count as failures: they carry their own
// backoff signal and opening the circuit on them would hide the advisory
// retry-after from the dispatcher.
type BreakerClient struct {
	inner API
	cb    *gobreaker.CircuitBreaker[any]
	name  string
}

// NewBreakerClient wraps inner with circuit breaker protection.
// The circuit opens after a 60% failure rate over at least 10 requests,
// stays open for 2 minutes, then allows 3 probe requests.
func NewBreakerClient(inner API) *BreakerClient {
	cbName := "upstream-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("Opening upstream circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Upstream circuit state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},

		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Deterministic outcomes are not upstream health signals
			if _, ok := IsRateLimit(err); ok {
				return true
			}
			return IsNotFound(err)
		},
	})

	return &BreakerClient{inner: inner, cb: cb, name: cbName}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// execute runs fn through the breaker, mapping open-circuit rejections to
// the transient taxonomy so job loops treat them like any other outage
func (b *BreakerClient) execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if err != nil && (errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)) {
		return nil, &TransientError{Err: err}
	}
	return result, err
}

// Authenticate implements API
func (b *BreakerClient) Authenticate(ctx context.Context) error {
	_, err := b.execute(func() (any, error) {
		return nil, b.inner.Authenticate(ctx)
	})
	return err
}

// ResolveUsername implements API
func (b *BreakerClient) ResolveUsername(ctx context.Context, username string) (*UserInfo, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.ResolveUsername(ctx, username)
	})
	if err != nil {
		return nil, err
	}
	return result.(*UserInfo), nil
}

// RecentMedia implements API
func (b *BreakerClient) RecentMedia(ctx context.Context, userPK int64, limit int) ([]MediaSummary, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.RecentMedia(ctx, userPK, limit)
	})
	if err != nil {
		return nil, err
	}
	return result.([]MediaSummary), nil
}

// MediaMetrics implements API
func (b *BreakerClient) MediaMetrics(ctx context.Context, mediaID int64) (*MediaMetrics, error) {
	result, err := b.execute(func() (any, error) {
		return b.inner.MediaMetrics(ctx, mediaID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*MediaMetrics), nil
}
