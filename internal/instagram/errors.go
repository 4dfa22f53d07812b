// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

package instagram

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// AuthError means credentials are invalid or the upstream demands a
// challenge. Fatal for the current job tick, not for the worker.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// NotFoundError means the media or account is gone or private.
// Callers disable the affected schedule rather than retrying.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Resource)
}

// RateLimitError means the upstream throttled us. RetryAfter is advisory;
// zero means the upstream gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// TransientError wraps network-level failures worth retrying.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient upstream error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsAuth reports whether err is an AuthError
func IsAuth(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsRateLimit reports whether err is a RateLimitError, returning the
// advisory retry-after if so
func IsRateLimit(err error) (time.Duration, bool) {
	var target *RateLimitError
	if errors.As(err, &target) {
		return target.RetryAfter, true
	}
	return 0, false
}

// IsTransient reports whether err is a TransientError
func IsTransient(err error) bool {
	var target *TransientError
	return errors.As(err, &target)
}

// statusToError maps an unexpected HTTP status to the error taxonomy.
// resource names what was being fetched, for log context.
func statusToError(resp *http.Response, resource string) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{Reason: fmt.Sprintf("upstream returned %d for %s", resp.StatusCode, resource)}
	case http.StatusNotFound, http.StatusGone:
		return &NotFoundError{Resource: resource}
	case http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: parseRetryAfter(resp)}
	default:
		if resp.StatusCode >= 500 {
			return &TransientError{Err: fmt.Errorf("upstream returned %d for %s", resp.StatusCode, resource)}
		}
		return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, resource)
	}
}

// parseRetryAfter reads the Retry-After header (RFC 6585), seconds form only
func parseRetryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
