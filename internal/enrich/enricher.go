// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

// Package enrich downloads a video's audio track and transcribes it.
//
// Enrichment is best-effort by contract: extractor and transcriber failures
// are logged and swallowed, never propagated to the scheduler. Partial
// output (audio present, transcription missing) is valid; a later pass
// reuses the mp3 and re-attempts only the missing transcription.
//
// Audio files land at a deterministic path, <audio_dir>/<shortcode>.mp3, so
// repeated enrichment of the same shortcode is naturally idempotent.
package enrich

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/semaphore"

	"github.com/tomtom215/reeltrack/internal/logging"
	"github.com/tomtom215/reeltrack/internal/metrics"
)

// maxConcurrentTranscriptions bounds the transcription pool. Transcription
// is CPU-heavy; audio extraction is network-bound and already serialized by
// the discover loop.
const maxConcurrentTranscriptions = 2

// Extractor downloads the audio track of a media URL to a local file.
type Extractor interface {
	Extract(ctx context.Context, mediaURL, outPath string) error
}

// Transcriber converts a local audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Enricher coordinates extraction and transcription for discovered videos.
type Enricher struct {
	audioDir    string
	extractor   Extractor
	transcriber Transcriber
	sem         *semaphore.Weighted
}

// New creates an enricher writing mp3 files under audioDir.
// The directory is created if missing.
func New(audioDir string, extractor Extractor, transcriber Transcriber) (*Enricher, error) {
	if err := os.MkdirAll(audioDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create audio directory %s: %w", audioDir, err)
	}
	return &Enricher{
		audioDir:    audioDir,
		extractor:   extractor,
		transcriber: transcriber,
		sem:         semaphore.NewWeighted(maxConcurrentTranscriptions),
	}, nil
}

// AudioPath returns the deterministic mp3 location for a shortcode
func (e *Enricher) AudioPath(shortcode string) string {
	return filepath.Join(e.audioDir, shortcode+".mp3")
}

// Enrich produces (audio path, transcription) for a video. Either or both
// may be nil; errors never surface. An existing non-empty mp3 skips
// extraction, and transcription runs only when the audio is present.
func (e *Enricher) Enrich(ctx context.Context, shortcode, mediaURL string) (audioPath, transcription *string) {
	path := e.AudioPath(shortcode)

	if hasNonEmptyFile(path) {
		metrics.EnrichmentResults.WithLabelValues("extract", "skipped").Inc()
	} else {
		if mediaURL == "" {
			logging.Warn().Str("shortcode", shortcode).Msg("No media URL, skipping enrichment")
			return nil, nil
		}
		if err := e.extractor.Extract(ctx, mediaURL, path); err != nil {
			metrics.EnrichmentResults.WithLabelValues("extract", "failed").Inc()
			logging.Error().Err(err).Str("shortcode", shortcode).Msg("Audio extraction failed")
			return nil, nil
		}
		if !hasNonEmptyFile(path) {
			metrics.EnrichmentResults.WithLabelValues("extract", "failed").Inc()
			logging.Error().Str("shortcode", shortcode).Msg("Extractor produced no audio file")
			return nil, nil
		}
		metrics.EnrichmentResults.WithLabelValues("extract", "ok").Inc()
	}
	audioPath = &path

	if err := e.sem.Acquire(ctx, 1); err != nil {
		logging.Warn().Err(err).Str("shortcode", shortcode).Msg("Transcription pool wait canceled")
		return audioPath, nil
	}
	defer e.sem.Release(1)

	text, err := e.transcriber.Transcribe(ctx, path)
	if err != nil {
		metrics.EnrichmentResults.WithLabelValues("transcribe", "failed").Inc()
		logging.Error().Err(err).Str("shortcode", shortcode).Msg("Transcription failed")
		return audioPath, nil
	}
	if text == "" {
		metrics.EnrichmentResults.WithLabelValues("transcribe", "failed").Inc()
		logging.Warn().Str("shortcode", shortcode).Msg("Transcriber returned empty text")
		return audioPath, nil
	}

	metrics.EnrichmentResults.WithLabelValues("transcribe", "ok").Inc()
	transcription = &text
	return audioPath, transcription
}

// hasNonEmptyFile reports whether path exists with content
func hasNonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
