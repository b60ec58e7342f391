package domain

import "time"

type User struct {
	ID              string
	Email           string // normalized: trimmed, lowercased
	PasswordHash    string // argon2 encoded; empty for OAuth-only accounts
	DisplayName     string
	EmailVerified   bool
	Admin           bool
	WalletAccountID string // set once wallet onboarding completes; empty otherwise
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
