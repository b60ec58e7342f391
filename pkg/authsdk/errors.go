package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/edgecoder/edgeauth/pkg/httpx"
)

// ============================================================================
// API Error Codes
// ============================================================================

const (
	ErrorCodeValidation       = "validation_error"
	ErrorCodeUnauthenticated  = "unauthenticated"
	ErrorCodeConflict         = "conflict"
	ErrorCodeForbidden        = "forbidden"
	ErrorCodeNotFound         = "not_found"
	ErrorCodeChallengeInvalid = "challenge_invalid"
	ErrorCodeMFAFailed        = "mfa_failed"
	ErrorCodeUpstream         = "upstream_error"
	ErrorCodeConfiguration    = "configuration_error"
	ErrorCodeRateLimited      = "rate_limit_exceeded"
	ErrorCodeServerError      = "server_error"
)

// ============================================================================
// APIError
// ============================================================================

// APIError is the wire error format of the service. It implements the error
// interface so the server can write HTTP responses with it and the SDK client
// can return it from calls.
type APIError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code classifies the error (e.g. "validation_error", "unauthenticated")
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes this APIError to an HTTP response writer.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":             e.Code,
		"error_description": e.Description,
	})
}

// NewAPIError creates a custom APIError.
func NewAPIError(statusCode int, code, description string) *APIError {
	return &APIError{
		StatusCode:  statusCode,
		Code:        code,
		Description: description,
	}
}

// ============================================================================
// Predefined Errors
// ============================================================================

var (
	// ErrValidation is returned when the request body is malformed or missing
	// required fields; no state change has occurred.
	ErrValidation = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeValidation,
		Description: "the request is malformed or missing required parameters",
	}

	// ErrUnauthenticated is returned when no valid session accompanies the
	// request, or when credentials do not match. The description never
	// distinguishes unknown accounts from wrong passwords.
	ErrUnauthenticated = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeUnauthenticated,
		Description: "invalid credentials or session",
	}

	// ErrConflict is returned for duplicate registrations.
	ErrConflict = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeConflict,
		Description: "the resource already exists",
	}

	// ErrForbidden is returned on ownership or role mismatch.
	ErrForbidden = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeForbidden,
		Description: "you do not have access to this resource",
	}

	// ErrNotFound is returned for unknown resource ids.
	ErrNotFound = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeNotFound,
		Description: "the requested resource does not exist",
	}

	// ErrChallengeInvalid folds unknown, expired, consumed and
	// cryptographically failed challenges into one response.
	ErrChallengeInvalid = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeChallengeInvalid,
		Description: "the challenge is invalid or has expired",
	}

	// ErrMFAFailed is returned when a wallet-send factor check fails. Code
	// and assertion failures are indistinguishable.
	ErrMFAFailed = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeMFAFailed,
		Description: "multi-factor authorization failed",
	}

	// ErrUpstream is returned when an identity provider or the mail delivery
	// service fails; the caller may retry.
	ErrUpstream = &APIError{
		StatusCode:  http.StatusBadGateway,
		Code:        ErrorCodeUpstream,
		Description: "an upstream service failed, please retry",
	}

	// ErrConfiguration is returned when a required secret or URL is missing.
	ErrConfiguration = &APIError{
		StatusCode:  http.StatusServiceUnavailable,
		Code:        ErrorCodeConfiguration,
		Description: "the service is not configured for this operation",
	}

	// ErrServerError is the fallback for unexpected failures.
	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}
)

// ============================================================================
// Error Parsing
// ============================================================================

// parseErrorResponse turns a non-2xx HTTP response into a typed *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
