package http

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/edgecoder/edgeauth/internal/auth/domain"
	"github.com/edgecoder/edgeauth/internal/auth/service"
	"github.com/edgecoder/edgeauth/pkg/authsdk"
	"github.com/edgecoder/edgeauth/pkg/httpx"
)

// WalletHandler serves the two-factor send authorization endpoints.
type WalletHandler struct {
	Wallet *service.WalletService
}

func walletRequestResponse(req domain.WalletSendRequest) authsdk.WalletSendRequestResponse {
	return authsdk.WalletSendRequestResponse{
		ID:          req.ID,
		Destination: req.Destination,
		Amount:      req.Amount,
		Note:        req.Note,
		Status:      req.Status,
		CreatedAt:   req.CreatedAt,
	}
}

// HandleStart handles POST /wallet/send/mfa/start
//
//	@Summary		Start a send authorization
//	@Description	Opens a two-factor challenge: a 6-digit code is mailed to the account and a
//	@Description	user-verification-required passkey ceremony is returned for the authenticator.
//	@Tags			Wallet
//	@Security		SessionAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.WalletSendStartRequest	true	"Transfer details"
//	@Success		200		{object}	authsdk.WalletSendStartResponse	"Challenge id and assertion options"
//	@Failure		400		{object}	authsdk.ErrorResponse			"Not onboarded or no passkeys"
//	@Failure		502		{object}	authsdk.ErrorResponse			"Code delivery failed"
//	@Router			/wallet/send/mfa/start [post].
func (h *WalletHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		authsdk.ErrUnauthenticated.WriteError(w)
		return
	}

	var req authsdk.WalletSendStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrValidation.WriteError(w)
		return
	}
	if req.Destination == "" || req.Amount <= 0 {
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeValidation,
			"destination is required and amount must be positive").WriteError(w)
		return
	}

	result, err := h.Wallet.StartSend(r.Context(), user, req.Destination, req.Amount, req.Note)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	raw, err := json.Marshal(result.AssertionOptions)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.WalletSendStartResponse{
		ChallengeID:      result.ChallengeID,
		AssertionOptions: raw,
		ExpiresInSeconds: int(h.Wallet.ChallengeTTL.Seconds()),
	})
}

// HandleConfirm handles POST /wallet/send/mfa/confirm
//
//	@Summary		Confirm a send authorization
//	@Description	Presents both factors. The challenge is consumed on the first attempt, pass or
//	@Description	fail; a failure requires starting over. On success a send request enters manual review.
//	@Tags			Wallet
//	@Security		SessionAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.WalletSendConfirmRequest	true	"Code and assertion"
//	@Success		201		{object}	authsdk.WalletSendRequestResponse	"Created send request"
//	@Failure		400		{object}	authsdk.ErrorResponse				"Invalid or expired challenge"
//	@Failure		403		{object}	authsdk.ErrorResponse				"Factor verification failed"
//	@Router			/wallet/send/mfa/confirm [post].
func (h *WalletHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		authsdk.ErrUnauthenticated.WriteError(w)
		return
	}

	var req authsdk.WalletSendConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChallengeID == "" || req.Code == "" {
		authsdk.ErrValidation.WriteError(w)
		return
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(req.Assertion))
	if err != nil {
		authsdk.ErrChallengeInvalid.WriteError(w)
		return
	}

	request, err := h.Wallet.ConfirmSend(r.Context(), user, req.ChallengeID, req.Code, parsed)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, walletRequestResponse(request))
}

// HandleListRequests handles GET /wallet/send/requests
//
//	@Summary		List send requests
//	@Description	Returns the account's send requests, newest first.
//	@Tags			Wallet
//	@Security		SessionAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.WalletSendListResponse	"Send requests"
//	@Failure		401	{object}	authsdk.ErrorResponse			"No valid session"
//	@Router			/wallet/send/requests [get].
func (h *WalletHandler) HandleListRequests(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		authsdk.ErrUnauthenticated.WriteError(w)
		return
	}

	requests, err := h.Wallet.ListSendRequests(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := authsdk.WalletSendListResponse{
		Requests: make([]authsdk.WalletSendRequestResponse, 0, len(requests)),
	}
	for _, req := range requests {
		out.Requests = append(out.Requests, walletRequestResponse(req))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
