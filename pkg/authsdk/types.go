package authsdk

import (
	"encoding/json"
	"time"
)

// ============================================================================
// Accounts & Sessions
// ============================================================================

// SignupRequest registers a password account.
type SignupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
}

// LoginRequest authenticates with email and password.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	DisplayName     string    `json:"display_name,omitempty"`
	EmailVerified   bool      `json:"email_verified"`
	Admin           bool      `json:"admin,omitempty"`
	WalletAccountID string    `json:"wallet_account_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// SessionResponse is returned by login-like endpoints. Token is also set as
// the session cookie; native clients may present it as a bearer instead.
type SessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// ResendVerificationRequest asks for a fresh verification email. The
// endpoint reports success regardless of whether the address has an account.
type ResendVerificationRequest struct {
	Email string `json:"email"`
}

// ============================================================================
// OAuth Federation
// ============================================================================

// MobileCompleteRequest redeems a one-shot hand-off token obtained from the
// native redirect for a real session.
type MobileCompleteRequest struct {
	Token string `json:"token"`
}

// ============================================================================
// Passkeys
// ============================================================================

// PasskeyLoginOptionsRequest scopes the ceremony to an account. An empty
// email requests a discoverable-credential ceremony.
type PasskeyLoginOptionsRequest struct {
	Email string `json:"email,omitempty"`
}

// PasskeyOptionsResponse carries a ceremony's challenge id and the
// publicKey options to pass to the browser credentials API verbatim.
type PasskeyOptionsResponse struct {
	ChallengeID string          `json:"challenge_id"`
	Options     json.RawMessage `json:"options"`
}

// PasskeyVerifyRequest finishes a ceremony. Credential is the JSON-encoded
// browser response (attestation or assertion, by endpoint).
type PasskeyVerifyRequest struct {
	ChallengeID string          `json:"challenge_id"`
	Credential  json.RawMessage `json:"credential"`
}

// PasskeyCredentialResponse describes a registered passkey.
type PasskeyCredentialResponse struct {
	ID             string     `json:"id"`
	Transports     []string   `json:"transports,omitempty"`
	BackupEligible bool       `json:"backup_eligible"`
	BackupState    bool       `json:"backup_state"`
	CreatedAt      time.Time  `json:"created_at"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
}

// PasskeyListResponse wraps the credential list.
type PasskeyListResponse struct {
	Credentials []PasskeyCredentialResponse `json:"credentials"`
}

// ============================================================================
// Node Trust
// ============================================================================

// NodeEnrollRequest bootstraps trust for a device. Kind is "agent" or
// "coordinator"; DeviceID is an optional stable hardware alias.
type NodeEnrollRequest struct {
	NodeID   string `json:"node_id"`
	Kind     string `json:"kind"`
	DeviceID string `json:"device_id,omitempty"`
}

// NodeEnrollResponse returns the enrollment state and the raw registration
// token. The token is shown exactly once; only its hash is stored.
type NodeEnrollResponse struct {
	NodeID            string `json:"node_id"`
	Kind              string `json:"kind"`
	RegistrationToken string `json:"registration_token"`
	EmailVerified     bool   `json:"email_verified"`
	Approved          bool   `json:"approved"`
	Active            bool   `json:"active"`
	BlockedReason     string `json:"blocked_reason,omitempty"`
}

// NodeValidateRequest is the device-presented connect/heartbeat check.
type NodeValidateRequest struct {
	NodeID            string `json:"node_id"`
	Kind              string `json:"kind"`
	RegistrationToken string `json:"registration_token"`
	DeviceID          string `json:"device_id,omitempty"`
	SourceIP          string `json:"source_ip,omitempty"`
}

// NodeValidateResponse is the trust verdict for a device.
type NodeValidateResponse struct {
	NodeID        string `json:"node_id"`
	Kind          string `json:"kind"`
	Active        bool   `json:"active"`
	EmailVerified bool   `json:"email_verified"`
	Approved      bool   `json:"approved"`
	BlockedReason string `json:"blocked_reason,omitempty"`
}

// NodeApprovalRequest toggles the approval gate.
type NodeApprovalRequest struct {
	Approved bool `json:"approved"`
}

// NodeResponse is the owner's view of an enrollment.
type NodeResponse struct {
	NodeID        string     `json:"node_id"`
	DeviceID      string     `json:"device_id,omitempty"`
	Kind          string     `json:"kind"`
	EmailVerified bool       `json:"email_verified"`
	Approved      bool       `json:"approved"`
	Active        bool       `json:"active"`
	BlockedReason string     `json:"blocked_reason,omitempty"`
	LastSeenIP    string     `json:"last_seen_ip,omitempty"`
	LastSeenGeo   string     `json:"last_seen_geo,omitempty"`
	LastSeenVPN   bool       `json:"last_seen_vpn,omitempty"`
	LastSeenAt    *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NodeListResponse wraps the enrollment list.
type NodeListResponse struct {
	Nodes []NodeResponse `json:"nodes"`
}

// NodeApprovalResponse reports the outcome of an approval toggle. Deleted is
// true when rejecting a never-approved node removed the enrollment.
type NodeApprovalResponse struct {
	NodeID   string `json:"node_id"`
	Approved bool   `json:"approved"`
	Active   bool   `json:"active"`
	Deleted  bool   `json:"deleted,omitempty"`
}

// ============================================================================
// Wallet Send MFA
// ============================================================================

// WalletSendStartRequest opens a two-factor send authorization.
type WalletSendStartRequest struct {
	Destination string `json:"destination"`
	Amount      int64  `json:"amount"`
	Note        string `json:"note,omitempty"`
}

// WalletSendStartResponse carries the challenge id and the UV-required
// assertion options. The 6-digit code arrives by email.
type WalletSendStartResponse struct {
	ChallengeID      string          `json:"challenge_id"`
	AssertionOptions json.RawMessage `json:"assertion_options"`
	ExpiresInSeconds int             `json:"expires_in_seconds"`
}

// WalletSendConfirmRequest presents both factors.
type WalletSendConfirmRequest struct {
	ChallengeID string          `json:"challenge_id"`
	Code        string          `json:"code"`
	Assertion   json.RawMessage `json:"assertion"`
}

// WalletSendRequestResponse is a created (or listed) send request.
type WalletSendRequestResponse struct {
	ID          string    `json:"id"`
	Destination string    `json:"destination"`
	Amount      int64     `json:"amount"`
	Note        string    `json:"note,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// WalletSendListResponse wraps the send request list.
type WalletSendListResponse struct {
	Requests []WalletSendRequestResponse `json:"requests"`
}

// ============================================================================
// Misc
// ============================================================================

// HealthResponse is returned by the health probes.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports per-dependency readiness.
type HealthChecks struct {
	Database string `json:"database"`
}

// StatusResponse is a generic acknowledgement body.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the wire format of APIError.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}
