// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

package database

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/tomtom215/reeltrack/internal/logging"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// closeQuietly closes a resource and explicitly ignores any error
// Use this for cleanup operations in error paths where Close() errors are not actionable
func closeQuietly(closer io.Closer) {
	if closer != nil {
		_ = closer.Close() // Explicitly ignore error - cleanup is best-effort
	}
}

// retryDelays are the backoff steps for transient store errors.
var retryDelays = []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}

// isTransientErr reports whether a store error is worth retrying.
// Constraint violations and not-found are deterministic and never retried.
func isTransientErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, ErrNotFound) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "constraint") || strings.Contains(msg, "duplicate") {
		return false
	}
	// DuckDB reports write-write conflicts and lock contention as
	// TransactionContext or IO errors; both clear on retry.
	return strings.Contains(msg, "conflict") ||
		strings.Contains(msg, "lock") ||
		strings.Contains(msg, "busy") ||
		strings.Contains(msg, "io error") ||
		strings.Contains(msg, "database is closed")
}

// withRetry runs op, retrying transient errors with fixed backoff.
// Non-transient errors and context cancellation return immediately.
func withRetry(ctx context.Context, name string, op func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = op()
		if err == nil || !isTransientErr(err) {
			return err
		}
		if attempt >= len(retryDelays) {
			return err
		}

		logging.Warn().
			Err(err).
			Str("op", name).
			Int("attempt", attempt+1).
			Msg("Transient store error, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelays[attempt]):
		}
	}
}
