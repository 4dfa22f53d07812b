// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

package instagram

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/renameio/v2"
)

// sessionBlob is the persisted session state. The tokens are opaque; the
// blob exists so a restart can skip the password login path entirely.
type sessionBlob struct {
	SessionToken string    `json:"session_token"`
	CSRFToken    string    `json:"csrf_token"`
	SavedAt      time.Time `json:"saved_at"`
}

// loadSessionBlob reads a persisted session from path.
// A missing file is not an error: the caller falls through to the next
// credential mode.
func loadSessionBlob(path string) (*sessionBlob, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path comes from operator config
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file %s: %w", path, err)
	}

	var blob sessionBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", path, err)
	}
	if blob.SessionToken == "" {
		return nil, nil
	}
	return &blob, nil
}

// persistSessionBlob writes the session atomically so a crash mid-write
// never leaves a truncated blob that would poison the next startup.
func persistSessionBlob(path string, blob *sessionBlob) error {
	blob.SavedAt = time.Now().UTC()
	data, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session blob: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to persist session file %s: %w", path, err)
	}
	return nil
}
