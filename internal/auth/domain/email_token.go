package domain

import "time"

// EmailVerificationToken is a one-shot proof-of-email-ownership token.
// Consuming it deletes the record; expired tokens are rejected at consume
// time and swept by housekeeping.
type EmailVerificationToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}
