package http

import (
	"encoding/json"
	"net/http"

	"github.com/edgecoder/edgeauth/internal/auth/service"
	"github.com/edgecoder/edgeauth/pkg/authsdk"
	"github.com/edgecoder/edgeauth/pkg/httpx"
)

// EmailVerificationHandler serves the verification link and resend endpoint.
type EmailVerificationHandler struct {
	EmailVerify *service.EmailVerificationService
}

// HandleVerify handles GET /auth/verify-email
//
//	@Summary		Verify an email address
//	@Description	Redeems a one-shot verification token from a mailed link. Consumed and expired tokens are rejected identically.
//	@Tags			Email
//	@Produce		json
//	@Param			token	query		string					true	"Verification token"
//	@Success		200		{object}	authsdk.StatusResponse	"Email verified"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid or expired token"
//	@Router			/auth/verify-email [get].
func (h *EmailVerificationHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		authsdk.ErrValidation.WriteError(w)
		return
	}

	if err := h.EmailVerify.Consume(r.Context(), token); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.StatusResponse{Status: "verified"})
}

// HandleResend handles POST /auth/resend-verification
//
//	@Summary		Resend the verification email
//	@Description	Issues a fresh token for an unverified account. Always reports accepted, to avoid account enumeration.
//	@Tags			Email
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.ResendVerificationRequest	true	"Account email"
//	@Success		202		{object}	authsdk.StatusResponse				"Accepted"
//	@Failure		400		{object}	authsdk.ErrorResponse				"Malformed request"
//	@Router			/auth/resend-verification [post].
func (h *EmailVerificationHandler) HandleResend(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ResendVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		authsdk.ErrValidation.WriteError(w)
		return
	}

	if err := h.EmailVerify.Resend(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusAccepted, authsdk.StatusResponse{Status: "accepted"})
}
