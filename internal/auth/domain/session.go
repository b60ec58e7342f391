package domain

import "time"

// Session is the stored record behind an opaque bearer cookie. The raw token
// is never persisted, only its SHA-256 fingerprint.
type Session struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}
