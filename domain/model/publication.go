package model

import "time"

// PublicationRecord states that an account published a link. Unique on
// (account_username, video_link).
type PublicationRecord struct {
	ID              int64     `json:"id"`
	AccountUsername string    `json:"account_username"`
	VideoLink       string    `json:"video_link"`
	CreatedAt       time.Time `json:"created_at"`
}

// MediaRef identifies a published item on the target platform.
type MediaRef struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Session is an authenticated platform session. Blob is opaque to everything
// but the platform client that produced it.
type Session struct {
	Username  string
	Blob      []byte
	ExpiresAt time.Time
	Proxy     *ProxyConfig
}
