package domain

import "time"

// OAuthState is the CSRF binding for one federation attempt. The row ID is
// the state parameter itself; it is consumed (deleted) at callback time.
type OAuthState struct {
	ID          string
	Provider    string
	RedirectURI string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// OAuthIdentity links a (provider, subject) pair to a local user, recording
// the email the provider last reported.
type OAuthIdentity struct {
	Provider  string
	Subject   string
	UserID    string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
