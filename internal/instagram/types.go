// Reeltrack - Short-Form Video Tracking and Transcription
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reeltrack

package instagram

import "time"

// UserInfo is the resolved identity of a tracked account.
type UserInfo struct {
	UserPK         int64
	Username       string
	ProfileURL     string
	FollowersCount int64
}

// MediaSummary is one item of an account's recent-media listing,
// newest first. Counts are the values observed at listing time.
type MediaSummary struct {
	VideoID         int64
	Shortcode       string
	VideoURL        string
	AudioURL        string
	Caption         string
	DurationSeconds float64
	PublishedAt     time.Time
	ViewCount       int64
	LikeCount       int64
	CommentCount    int64
	FollowersCount  int64
}

// MediaMetrics is a fresh engagement reading for one media item.
// SaveCount is nil when the upstream withholds it.
type MediaMetrics struct {
	ViewCount      int64
	LikeCount      int64
	CommentCount   int64
	SaveCount      *int64
	FollowersCount int64
}

// userPayload is the wire shape of a user object
type userPayload struct {
	PK             int64  `json:"pk"`
	Username       string `json:"username"`
	ProfileURL     string `json:"profile_url"`
	FollowerCount  int64  `json:"follower_count"`
	IsPrivate      bool   `json:"is_private"`
	HasAnonProfile bool   `json:"has_anonymous_profile_picture"`
}

// userResponse wraps a single-user endpoint response
type userResponse struct {
	User   userPayload `json:"user"`
	Status string      `json:"status"`
}

// mediaItem is the wire shape of one feed item
type mediaItem struct {
	PK      int64  `json:"pk"`
	Code    string `json:"code"`
	TakenAt int64  `json:"taken_at"`
	Caption *struct {
		Text string `json:"text"`
	} `json:"caption"`
	VideoURL      string  `json:"video_url"`
	AudioURL      string  `json:"audio_url"`
	VideoDuration float64 `json:"video_duration"`
	PlayCount     int64   `json:"play_count"`
	LikeCount     int64   `json:"like_count"`
	CommentCount  int64   `json:"comment_count"`
	User          struct {
		FollowerCount int64 `json:"follower_count"`
	} `json:"user"`
}

// feedResponse wraps a recent-media feed page
type feedResponse struct {
	Items  []mediaItem `json:"items"`
	Status string      `json:"status"`
}

// mediaInfoResponse wraps a per-media metrics lookup
type mediaInfoResponse struct {
	Items []struct {
		PK           int64  `json:"pk"`
		PlayCount    int64  `json:"play_count"`
		LikeCount    int64  `json:"like_count"`
		CommentCount int64  `json:"comment_count"`
		SaveCount    *int64 `json:"save_count"`
		User         struct {
			FollowerCount int64 `json:"follower_count"`
		} `json:"user"`
	} `json:"items"`
	Status string `json:"status"`
}

// loginResponse is the wire shape of a password login
type loginResponse struct {
	SessionToken string `json:"session_token"`
	CSRFToken    string `json:"csrf_token"`
	Status       string `json:"status"`
}
