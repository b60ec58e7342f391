package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a typed client for the EdgeAuth service. Login-like calls store
// the session token on the client; subsequent calls present it as a bearer.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// InternalToken authorizes the /internal/ endpoints when set.
	InternalToken string

	sessionToken string
}

// NewClient creates a client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetSessionToken installs an existing session token (e.g. one redeemed via
// the mobile hand-off).
func (c *Client) SetSessionToken(token string) { c.sessionToken = token }

// SessionToken returns the current session token, if any.
func (c *Client) SessionToken() string { return c.sessionToken }

// ============================================================================
// Accounts & Sessions
// ============================================================================

// Signup registers a password account and starts a session.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (*SessionResponse, error) {
	var out SessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/signup", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	c.sessionToken = out.Token
	return &out, nil
}

// Login authenticates with email and password.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*SessionResponse, error) {
	var out SessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	c.sessionToken = out.Token
	return &out, nil
}

// Logout destroys the current session.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodPost, "/auth/logout", nil, nil, http.StatusNoContent); err != nil {
		return err
	}
	c.sessionToken = ""
	return nil
}

// Me returns the current account.
func (c *Client) Me(ctx context.Context) (*UserResponse, error) {
	var out UserResponse
	if err := c.doJSON(ctx, http.MethodGet, "/auth/me", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyEmail redeems a verification token from a mailed link.
func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	path := "/auth/verify-email?token=" + token
	return c.doJSON(ctx, http.MethodGet, path, nil, nil, http.StatusOK)
}

// ResendVerification requests a fresh verification email.
func (c *Client) ResendVerification(ctx context.Context, email string) error {
	req := ResendVerificationRequest{Email: email}
	return c.doJSON(ctx, http.MethodPost, "/auth/resend-verification", req, nil, http.StatusAccepted)
}

// CompleteMobileOAuth redeems a hand-off token for a session.
func (c *Client) CompleteMobileOAuth(ctx context.Context, handoffToken string) (*SessionResponse, error) {
	var out SessionResponse
	req := MobileCompleteRequest{Token: handoffToken}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/oauth/mobile/complete", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	c.sessionToken = out.Token
	return &out, nil
}

// ============================================================================
// Passkeys
// ============================================================================

// PasskeyRegisterOptions begins a registration ceremony.
func (c *Client) PasskeyRegisterOptions(ctx context.Context) (*PasskeyOptionsResponse, error) {
	var out PasskeyOptionsResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/passkey/register/options", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// PasskeyRegisterVerify finishes a registration ceremony.
func (c *Client) PasskeyRegisterVerify(ctx context.Context, req PasskeyVerifyRequest) (*PasskeyCredentialResponse, error) {
	var out PasskeyCredentialResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/passkey/register/verify", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// PasskeyLoginOptions begins an authentication ceremony.
func (c *Client) PasskeyLoginOptions(ctx context.Context, email string) (*PasskeyOptionsResponse, error) {
	var out PasskeyOptionsResponse
	req := PasskeyLoginOptionsRequest{Email: email}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/passkey/login/options", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// PasskeyLoginVerify finishes an authentication ceremony and starts a session.
func (c *Client) PasskeyLoginVerify(ctx context.Context, req PasskeyVerifyRequest) (*SessionResponse, error) {
	var out SessionResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/passkey/login/verify", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	c.sessionToken = out.Token
	return &out, nil
}

// ListPasskeys returns the account's registered passkeys.
func (c *Client) ListPasskeys(ctx context.Context) (*PasskeyListResponse, error) {
	var out PasskeyListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/auth/passkeys", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeletePasskey removes one of the account's passkeys.
func (c *Client) DeletePasskey(ctx context.Context, credentialID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/auth/passkeys/"+credentialID, nil, nil, http.StatusNoContent)
}

// ============================================================================
// Node Trust
// ============================================================================

// EnrollNode enrolls a device under the current account.
func (c *Client) EnrollNode(ctx context.Context, req NodeEnrollRequest) (*NodeEnrollResponse, error) {
	var out NodeEnrollResponse
	if err := c.doJSON(ctx, http.MethodPost, "/nodes/enroll", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListNodes returns the account's enrollments.
func (c *Client) ListNodes(ctx context.Context) (*NodeListResponse, error) {
	var out NodeListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/nodes", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteNode removes an enrollment owned by the account (or any, as admin).
func (c *Client) DeleteNode(ctx context.Context, nodeID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/nodes/"+nodeID, nil, nil, http.StatusNoContent)
}

// ValidateNode performs the device-presented trust check. Requires the
// internal service token.
func (c *Client) ValidateNode(ctx context.Context, req NodeValidateRequest) (*NodeValidateResponse, error) {
	var out NodeValidateResponse
	if err := c.doJSON(ctx, http.MethodPost, "/internal/nodes/validate", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetNodeApproval toggles the approval gate. Requires the internal service
// token.
func (c *Client) SetNodeApproval(ctx context.Context, nodeID string, approved bool) (*NodeApprovalResponse, error) {
	var out NodeApprovalResponse
	req := NodeApprovalRequest{Approved: approved}
	if err := c.doJSON(ctx, http.MethodPost, "/internal/nodes/"+nodeID+"/approval", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ============================================================================
// Wallet Send MFA
// ============================================================================

// WalletSendStart opens a two-factor send authorization.
func (c *Client) WalletSendStart(ctx context.Context, req WalletSendStartRequest) (*WalletSendStartResponse, error) {
	var out WalletSendStartResponse
	if err := c.doJSON(ctx, http.MethodPost, "/wallet/send/mfa/start", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// WalletSendConfirm presents both factors.
func (c *Client) WalletSendConfirm(ctx context.Context, req WalletSendConfirmRequest) (*WalletSendRequestResponse, error) {
	var out WalletSendRequestResponse
	if err := c.doJSON(ctx, http.MethodPost, "/wallet/send/mfa/confirm", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListWalletSendRequests returns the account's send requests, newest first.
func (c *Client) ListWalletSendRequests(ctx context.Context) (*WalletSendListResponse, error) {
	var out WalletSendListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/wallet/send/requests", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ============================================================================
// Health
// ============================================================================

// Livez reports process liveness.
func (c *Client) Livez(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/livez", nil, nil, http.StatusOK)
}

// Readyz reports readiness including database connectivity.
func (c *Client) Readyz(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/readyz", nil, nil, http.StatusOK)
}

// ============================================================================
// Internals
// ============================================================================

// doJSON performs a JSON request/response roundtrip. A nil target skips
// decoding; non-matching status codes come back as *APIError.
func (c *Client) doJSON(ctx context.Context, method, path string, body, target any, expectedStatus int) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.sessionToken)
	}
	if c.InternalToken != "" && strings.HasPrefix(path, "/internal/") {
		req.Header.Set("X-Internal-Token", c.InternalToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != expectedStatus {
		return parseErrorResponse(resp, bodyBytes)
	}

	if target != nil {
		if err := json.Unmarshal(bodyBytes, target); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
