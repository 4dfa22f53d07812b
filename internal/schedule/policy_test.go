// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

package schedule

import (
	"testing"
	"time"
)

func TestInterval(t *testing.T) {
	tests := []struct {
		name string
		age  time.Duration
		want time.Duration
	}{
		{"just published", 0, 1 * time.Hour},
		{"59 minutes", 59 * time.Minute, 1 * time.Hour},
		{"exactly 1h goes to larger bucket", 1 * time.Hour, 2 * time.Hour},
		{"6h59m", 6*time.Hour + 59*time.Minute, 2 * time.Hour},
		{"exactly 7h goes to larger bucket", 7 * time.Hour, 12 * time.Hour},
		{"30h", 30 * time.Hour, 12 * time.Hour},
		{"exactly 31h goes to larger bucket", 31 * time.Hour, 24 * time.Hour},
		{"one week", 7 * 24 * time.Hour, 24 * time.Hour},
		{"negative age treated as young", -time.Minute, 1 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Interval(tt.age); got != tt.want {
				t.Errorf("Interval(%v) = %v, want %v", tt.age, got, tt.want)
			}
		})
	}
}

func TestNextDueAnchoredAtNow(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	// Discovered long after publication: one sample a day from now, no
	// catch-up flood from published_at.
	published := now.Add(-90 * 24 * time.Hour)
	if got, want := NextDue(published, now), now.Add(24*time.Hour); !got.Equal(want) {
		t.Errorf("NextDue(old video) = %v, want %v", got, want)
	}

	// Fresh video: sampled an hour from now
	published = now.Add(-10 * time.Minute)
	if got, want := NextDue(published, now), now.Add(time.Hour); !got.Equal(want) {
		t.Errorf("NextDue(fresh video) = %v, want %v", got, want)
	}

	// Future publish timestamp never yields a due time in the past
	published = now.Add(30 * time.Minute)
	if got := NextDue(published, now); got.Before(now) {
		t.Errorf("NextDue(future publish) = %v, before now %v", got, now)
	}
}

// TestNextDueMonotone verifies that advancing now never moves next_due
// backwards, which rescheduling relies on.
func TestNextDueMonotone(t *testing.T) {
	published := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

	prev := NextDue(published, published)
	for offset := time.Hour; offset <= 48*time.Hour; offset += time.Hour {
		now := published.Add(offset)
		next := NextDue(published, now)
		if next.Before(prev) {
			t.Fatalf("NextDue went backwards at age %v: %v -> %v", offset, prev, next)
		}
		prev = next
	}
}
