// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/reeltrack/internal/models"
)

// UpsertAccount inserts an account or refreshes its mutable fields.
//
// The primary key is the upstream numeric user id, so re-discovering a known
// account updates username (handles renames), profile URL and follower count
// in place. CreatedAt is preserved on conflict.
func (db *DB) UpsertAccount(ctx context.Context, account *models.Account) error {
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	query := `INSERT INTO accounts (id, username, profile_url, followers_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			profile_url = excluded.profile_url,
			followers_count = excluded.followers_count,
			updated_at = excluded.updated_at`

	return withRetry(ctx, "upsert_account", func() error {
		qctx, cancel := queryContext(ctx)
		defer cancel()
		if _, err := db.conn.ExecContext(qctx, query,
			account.ID, account.Username, account.ProfileURL,
			account.FollowersCount, account.CreatedAt, account.UpdatedAt); err != nil {
			return fmt.Errorf("failed to upsert account %d: %w", account.ID, err)
		}
		return nil
	})
}

// GetAccount retrieves one account by its upstream user id.
// Returns ErrNotFound if the account does not exist.
func (db *DB) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	qctx, cancel := queryContext(ctx)
	defer cancel()

	var a models.Account
	err := db.conn.QueryRowContext(qctx,
		`SELECT id, username, profile_url, followers_count, created_at, updated_at
		 FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.Username, &a.ProfileURL, &a.FollowersCount, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %d: %w", id, err)
	}
	return &a, nil
}

// ListAccounts returns all tracked accounts ordered by username
func (db *DB) ListAccounts(ctx context.Context) ([]models.Account, error) {
	qctx, cancel := queryContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(qctx,
		`SELECT id, username, profile_url, followers_count, created_at, updated_at
		 FROM accounts ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.Username, &a.ProfileURL, &a.FollowersCount, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

// SeedAccounts inserts new accounts in bulk, skipping ones that already exist.
// Returns the number inserted and the number skipped as duplicates.
func (db *DB) SeedAccounts(ctx context.Context, accounts []models.Account) (inserted, skipped int, err error) {
	qctx, cancel := queryContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	query := `INSERT INTO accounts (id, username, profile_url, followers_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`

	for i := range accounts {
		a := &accounts[i]
		result, execErr := db.conn.ExecContext(qctx, query,
			a.ID, a.Username, a.ProfileURL, a.FollowersCount, now, now)
		if execErr != nil {
			return inserted, skipped, fmt.Errorf("failed to seed account %s: %w", a.Username, execErr)
		}
		affected, raErr := result.RowsAffected()
		if raErr != nil {
			return inserted, skipped, fmt.Errorf("failed to get rows affected for %s: %w", a.Username, raErr)
		}
		if affected > 0 {
			inserted++
		} else {
			skipped++
		}
	}
	return inserted, skipped, nil
}

// CountVideosByAccount returns tracked-video counts keyed by account id
func (db *DB) CountVideosByAccount(ctx context.Context) (map[int64]int64, error) {
	qctx, cancel := queryContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(qctx,
		`SELECT account_id, COUNT(*) FROM videos GROUP BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to count videos by account: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int64)
	for rows.Next() {
		var accountID, count int64
		if err := rows.Scan(&accountID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan video count: %w", err)
		}
		counts[accountID] = count
	}
	return counts, rows.Err()
}
