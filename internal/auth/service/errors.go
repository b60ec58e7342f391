package service

import "errors"

// Service-level sentinel errors. HTTP handlers translate these to API error
// codes; the wording never leaks which internal check failed.
var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrEmailTaken         = errors.New("email_taken")
	ErrNoSession          = errors.New("no_session")
	ErrTokenInvalid       = errors.New("token_invalid")
	ErrChallengeInvalid   = errors.New("challenge_invalid")
	ErrMFAFailed          = errors.New("mfa_failed")
	ErrProviderUnknown    = errors.New("provider_unknown")
	ErrStateInvalid       = errors.New("state_invalid")
	ErrRedirectNotAllowed = errors.New("redirect_not_allowed")
	ErrHandoffInvalid     = errors.New("handoff_invalid")
	ErrEmailNotVerified   = errors.New("email_not_verified")
	ErrWalletNotOnboarded = errors.New("wallet_not_onboarded")
	ErrUpstream           = errors.New("upstream_error")
	ErrNotFound           = errors.New("not_found")
	ErrForbidden          = errors.New("forbidden")
)
