// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

// Package instagram provides the authenticated, rate-limited client for the
// upstream platform.
//
// The upstream strongly dislikes parallel authenticated requests from one
// identity, so the client serializes everything through a single-concurrency
// gate and inserts a jittered 0.5-2.0s delay between calls. An optional
// proxy applies to all platform calls but deliberately not to audio
// extraction, which runs through the enricher's own tooling.
//
// Failure taxonomy: AuthError, NotFoundError, RateLimitError and
// TransientError; see errors.go. Transient failures are retried internally
// up to the configured retry budget; everything else surfaces to the caller.
package instagram

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/reeltrack/internal/config"
	"github.com/tomtom215/reeltrack/internal/logging"
	"github.com/tomtom215/reeltrack/internal/metrics"
)

// defaultBaseURL is the upstream API origin. Overridable for tests.
const defaultBaseURL = "https://i.instagram.com"

const userAgent = "Reeltrack/1.0"

// maxErrorBodySize limits how much of an error response body is read
const maxErrorBodySize = 64 * 1024 // 64KB

// Jittered inter-call delay bounds
const (
	minCallDelay = 500 * time.Millisecond
	maxCallDelay = 2 * time.Second
)

// API is the capability set the worker depends on. Implemented by Client
// for production and by fakes in tests.
type API interface {
	Authenticate(ctx context.Context) error
	ResolveUsername(ctx context.Context, username string) (*UserInfo, error)
	RecentMedia(ctx context.Context, userPK int64, limit int) ([]MediaSummary, error)
	MediaMetrics(ctx context.Context, mediaID int64) (*MediaMetrics, error)
}

// Client talks to the upstream platform API.
//
// Thread Safety: safe for concurrent use; the gate serializes all requests.
type Client struct {
	baseURL     string
	cfg         *config.InstagramConfig
	client      *http.Client
	limiter     *rate.Limiter
	gate        chan struct{}
	retryBudget int

	// Session state, written only while the gate is held
	sessionToken string
	csrfToken    string
	lastCall     time.Time
}

// NewClient builds a client from configuration. The proxy URL, when set,
// is wired into the HTTP transport; socks5h is normalized to socks5 since
// Go's SOCKS5 dialer already resolves DNS remotely.
func NewClient(cfg *config.InstagramConfig) (*Client, error) {
	transport := &http.Transport{
		MaxIdleConns:        4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		if proxyURL.Scheme == "socks5h" {
			proxyURL.Scheme = "socks5"
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		cfg:     cfg,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		limiter:      rate.NewLimiter(rate.Every(minCallDelay), 1),
		gate:         make(chan struct{}, 1),
		retryBudget:  cfg.RetryBudget,
		sessionToken: cfg.SessionToken,
		csrfToken:    cfg.CSRFToken,
	}, nil
}

// acquire takes the single-concurrency gate and waits out the jittered
// inter-call delay. Callers must invoke the returned release function.
func (c *Client) acquire(ctx context.Context) (func(), error) {
	select {
	case c.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	release := func() {
		c.lastCall = time.Now()
		<-c.gate
	}

	if err := c.limiter.Wait(ctx); err != nil {
		release()
		return nil, err
	}

	if !c.lastCall.IsZero() {
		delay := minCallDelay + rand.N(maxCallDelay-minCallDelay)
		if elapsed := time.Since(c.lastCall); elapsed < delay {
			select {
			case <-time.After(delay - elapsed):
			case <-ctx.Done():
				release()
				return nil, ctx.Err()
			}
		}
	}

	return release, nil
}

// doJSON performs one authenticated request and decodes the response.
// Transient failures are retried with exponential backoff (1s, 2s, 4s) up
// to the retry budget; auth, not-found and rate-limit errors never retry.
func (c *Client) doJSON(ctx context.Context, method, path, resource string, body io.Reader, out any) error {
	release, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	var lastErr error
	for attempt := 0; attempt <= c.retryBudget; attempt++ {
		if attempt > 0 {
			delay := time.Second * time.Duration(1<<uint(attempt-1))
			logging.Warn().
				Err(lastErr).
				Str("resource", resource).
				Int("attempt", attempt).
				Msg("Retrying upstream request")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = c.doJSONOnce(ctx, method, path, resource, body, out)
		if lastErr == nil || !IsTransient(lastErr) {
			return lastErr
		}
		if body != nil {
			// Request bodies are not replayable; do not retry writes.
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) doJSONOnce(ctx context.Context, method, path, resource string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request for %s: %w", resource, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.sessionToken != "" {
		req.Header.Set("Cookie", fmt.Sprintf("sessionid=%s; csrftoken=%s", c.sessionToken, c.csrfToken))
	}
	if c.csrfToken != "" {
		req.Header.Set("X-CSRFToken", c.csrfToken)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues(resource, "network_error").Inc()
		return &TransientError{Err: err}
	}
	defer closeBody(resp.Body)

	metrics.UpstreamCallDuration.WithLabelValues(resource).Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		metrics.UpstreamCalls.WithLabelValues(resource, fmt.Sprintf("%d", resp.StatusCode)).Inc()
		return statusToError(resp, resource)
	}
	metrics.UpstreamCalls.WithLabelValues(resource, "ok").Inc()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return &TransientError{Err: fmt.Errorf("failed to read %s response: %w", resource, err)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", resource, err)
	}
	return nil
}

func closeBody(body io.ReadCloser) {
	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxErrorBodySize))
	_ = body.Close()
}

// Authenticate establishes a usable session. Credential precedence:
//
//  1. Persisted session blob at SessionFile
//  2. Configured session token (+ optional CSRF token)
//  3. Username + password login; on success the resulting session is
//     persisted so the next start takes path 1
//
// A stale blob or token falls through to the next mode when login
// credentials are available; otherwise the AuthError surfaces.
func (c *Client) Authenticate(ctx context.Context) error {
	if c.cfg.SessionFile != "" {
		blob, err := loadSessionBlob(c.cfg.SessionFile)
		if err != nil {
			logging.Warn().Err(err).Msg("Ignoring unreadable session file")
		}
		if blob != nil {
			c.sessionToken = blob.SessionToken
			c.csrfToken = blob.CSRFToken
			if err := c.verifySession(ctx); err == nil {
				logging.Info().Msg("Authenticated from persisted session")
				return nil
			} else if !IsAuth(err) {
				return err
			}
			logging.Warn().Msg("Persisted session rejected, falling through")
		}
	}

	if c.cfg.SessionToken != "" {
		c.sessionToken = c.cfg.SessionToken
		c.csrfToken = c.cfg.CSRFToken
		err := c.verifySession(ctx)
		if err == nil {
			logging.Info().Msg("Authenticated from configured session token")
			return nil
		}
		if !IsAuth(err) {
			return err
		}
		if c.cfg.Username == "" || c.cfg.Password == "" {
			return err
		}
		logging.Warn().Msg("Configured session token rejected, falling through to login")
	}

	if c.cfg.Username != "" && c.cfg.Password != "" {
		return c.login(ctx)
	}

	return &AuthError{Reason: "no usable credentials"}
}

// verifySession checks the current tokens against the identity endpoint
func (c *Client) verifySession(ctx context.Context) error {
	if c.sessionToken == "" {
		return &AuthError{Reason: "no session token"}
	}
	var resp userResponse
	return c.doJSON(ctx, http.MethodGet, "/api/v1/accounts/current_user/", "current_user", nil, &resp)
}

// login performs a password login and persists the resulting session blob
func (c *Client) login(ctx context.Context) error {
	payload, err := json.Marshal(map[string]string{
		"username": c.cfg.Username,
		"password": c.cfg.Password,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal login payload: %w", err)
	}

	var resp loginResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/accounts/login/", "login", strings.NewReader(string(payload)), &resp); err != nil {
		return err
	}
	if resp.SessionToken == "" {
		return &AuthError{Reason: "login response carried no session token"}
	}

	c.sessionToken = resp.SessionToken
	c.csrfToken = resp.CSRFToken

	if c.cfg.SessionFile != "" {
		blob := &sessionBlob{SessionToken: resp.SessionToken, CSRFToken: resp.CSRFToken}
		if err := persistSessionBlob(c.cfg.SessionFile, blob); err != nil {
			// Session works even if persistence failed; next start logs in again.
			logging.Warn().Err(err).Msg("Failed to persist session blob")
		}
	}

	logging.Info().Str("username", c.cfg.Username).Msg("Authenticated via password login")
	return nil
}

// ResolveUsername maps a username to its stable upstream identity
func (c *Client) ResolveUsername(ctx context.Context, username string) (*UserInfo, error) {
	var resp userResponse
	path := "/api/v1/users/lookup/?username=" + url.QueryEscape(username)
	if err := c.doJSON(ctx, http.MethodGet, path, "resolve_username", nil, &resp); err != nil {
		return nil, err
	}
	if resp.User.PK == 0 {
		return nil, &NotFoundError{Resource: "user " + username}
	}
	return &UserInfo{
		UserPK:         resp.User.PK,
		Username:       resp.User.Username,
		ProfileURL:     resp.User.ProfileURL,
		FollowersCount: resp.User.FollowerCount,
	}, nil
}

// RecentMedia lists an account's most recent video posts, newest first
func (c *Client) RecentMedia(ctx context.Context, userPK int64, limit int) ([]MediaSummary, error) {
	var resp feedResponse
	path := fmt.Sprintf("/api/v1/feed/user/%d/?count=%d", userPK, limit)
	if err := c.doJSON(ctx, http.MethodGet, path, "recent_media", nil, &resp); err != nil {
		return nil, err
	}

	media := make([]MediaSummary, 0, len(resp.Items))
	for _, item := range resp.Items {
		m := MediaSummary{
			VideoID:         item.PK,
			Shortcode:       item.Code,
			VideoURL:        item.VideoURL,
			AudioURL:        item.AudioURL,
			DurationSeconds: item.VideoDuration,
			PublishedAt:     time.Unix(item.TakenAt, 0).UTC(),
			ViewCount:       item.PlayCount,
			LikeCount:       item.LikeCount,
			CommentCount:    item.CommentCount,
			FollowersCount:  item.User.FollowerCount,
		}
		if item.Caption != nil {
			m.Caption = item.Caption.Text
		}
		media = append(media, m)
	}
	return media, nil
}

// MediaMetrics fetches a fresh engagement reading for one media item
func (c *Client) MediaMetrics(ctx context.Context, mediaID int64) (*MediaMetrics, error) {
	var resp mediaInfoResponse
	path := fmt.Sprintf("/api/v1/media/%d/info/", mediaID)
	if err := c.doJSON(ctx, http.MethodGet, path, "media_metrics", nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, &NotFoundError{Resource: fmt.Sprintf("media %d", mediaID)}
	}

	item := resp.Items[0]
	return &MediaMetrics{
		ViewCount:      item.PlayCount,
		LikeCount:      item.LikeCount,
		CommentCount:   item.CommentCount,
		SaveCount:      item.SaveCount,
		FollowersCount: item.User.FollowerCount,
	}, nil
}
