package domain

import "time"

// Passkey ceremony flow types. A challenge minted for one flow cannot be
// consumed by the other.
const (
	PasskeyFlowRegistration   = "registration"
	PasskeyFlowAuthentication = "authentication"
)

// PasskeyCredential is a WebAuthn public-key credential owned by a user.
// ID is the base64url-encoded credential ID assigned by the authenticator.
type PasskeyCredential struct {
	ID              string
	UserID          string
	PublicKey       []byte // COSE format
	AttestationType string
	Transports      []string
	SignCount       uint32
	BackupEligible  bool
	BackupState     bool
	AAGUID          []byte
	CreatedAt       time.Time
	LastUsedAt      *time.Time
}

// PasskeyChallenge is a one-shot ceremony challenge. SessionData carries the
// serialized library session state (challenge bytes, allowed credentials,
// user verification requirement).
type PasskeyChallenge struct {
	ID          string
	UserID      string // empty for discoverable authentication
	Flow        string // PasskeyFlowRegistration | PasskeyFlowAuthentication
	SessionData []byte
	ExpiresAt   time.Time
	CreatedAt   time.Time
}
