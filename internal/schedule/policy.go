// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

// Package schedule implements the age-decaying metric sampling policy.
//
// Young videos accumulate engagement fast, so they are sampled hourly; as a
// video ages the sampling interval stretches out to daily. The policy is a
// pure function of (published_at, now) with no state, so reschedule passes
// are idempotent and the advisory interval_seconds column can always be
// recomputed from it.
package schedule

import "time"

// Age bucket boundaries. Buckets are half-open on the right: a video aged
// exactly 1h falls into the second bucket and gets the 2h interval.
const (
	youngCutoff = 1 * time.Hour
	midCutoff   = 7 * time.Hour
	oldCutoff   = 31 * time.Hour
)

// Interval returns the sampling interval for a video of the given age.
// Negative ages (clock skew, future publish timestamps) are treated as zero.
func Interval(age time.Duration) time.Duration {
	switch {
	case age < youngCutoff:
		return 1 * time.Hour
	case age < midCutoff:
		return 2 * time.Hour
	case age < oldCutoff:
		return 12 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// NextDue returns when the video should next be sampled.
// The next due time is always anchored at now, never at published_at, so a
// video discovered long after publication is not flooded with catch-up
// samples.
func NextDue(publishedAt, now time.Time) time.Time {
	age := now.Sub(publishedAt)
	if age < 0 {
		age = 0
	}
	return now.Add(Interval(age))
}
