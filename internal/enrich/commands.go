// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

package enrich

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Command timeouts. Extraction is a bounded download; transcription of a
// short-form clip finishes well inside ten minutes even on CPU.
const (
	extractTimeout    = 5 * time.Minute
	transcribeTimeout = 10 * time.Minute
)

// YtDlpExtractor shells out to yt-dlp for audio extraction.
// Deliberately bypasses the platform proxy: media CDN URLs are public and
// routing bulk downloads through the authenticated proxy burns its quota.
type YtDlpExtractor struct {
	// Binary overrides the yt-dlp executable name (tests, packaging).
	Binary string
}

// Extract implements Extractor
func (y *YtDlpExtractor) Extract(ctx context.Context, mediaURL, outPath string) error {
	binary := y.Binary
	if binary == "" {
		binary = "yt-dlp"
	}

	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	// yt-dlp appends the extension itself, so strip ours from the template
	template := strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".%(ext)s"

	cmd := exec.CommandContext(ctx, binary,
		"--extract-audio",
		"--audio-format", "mp3",
		"--no-playlist",
		"--quiet",
		"--output", template,
		mediaURL,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("yt-dlp failed: %w: %s", err, truncate(stderr.String(), 512))
	}
	return nil
}

// WhisperTranscriber shells out to the whisper CLI for speech-to-text.
type WhisperTranscriber struct {
	// Binary overrides the whisper executable name.
	Binary string
	// Model selects the whisper model size. Default: base
	Model string
}

// Transcribe implements Transcriber. Whisper writes <stem>.txt next to its
// output dir; the text is read back and the sidecar file removed.
func (w *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	binary := w.Binary
	if binary == "" {
		binary = "whisper"
	}
	model := w.Model
	if model == "" {
		model = "base"
	}

	ctx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()

	outDir := filepath.Dir(audioPath)
	cmd := exec.CommandContext(ctx, binary,
		audioPath,
		"--model", model,
		"--output_format", "txt",
		"--output_dir", outDir,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("whisper failed: %w: %s", err, truncate(stderr.String(), 512))
	}

	stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	txtPath := filepath.Join(outDir, stem+".txt")
	data, err := os.ReadFile(txtPath) //nolint:gosec // Path derives from our own audio dir
	if err != nil {
		return "", fmt.Errorf("failed to read transcription output: %w", err)
	}
	_ = os.Remove(txtPath) // Sidecar no longer needed; text lives in the store

	return strings.TrimSpace(string(data)), nil
}

// truncate caps s at n bytes for error messages
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
