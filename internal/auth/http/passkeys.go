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

// PasskeyHandler serves WebAuthn registration and login ceremonies.
type PasskeyHandler struct {
	Passkeys     *service.PasskeyService
	Sessions     *service.SessionService
	CookieSecure bool
}

func passkeyResponse(c domain.PasskeyCredential) authsdk.PasskeyCredentialResponse {
	return authsdk.PasskeyCredentialResponse{
		ID:             c.ID,
		Transports:     c.Transports,
		BackupEligible: c.BackupEligible,
		BackupState:    c.BackupState,
		CreatedAt:      c.CreatedAt,
		LastUsedAt:     c.LastUsedAt,
	}
}

// optionsResponse packs ceremony options for the browser credentials API.
func optionsResponse(w http.ResponseWriter, r *http.Request, challengeID string, options any) {
	raw, err := json.Marshal(options)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.PasskeyOptionsResponse{
		ChallengeID: challengeID,
		Options:     raw,
	})
}

// HandleRegisterOptions handles POST /auth/passkey/register/options
//
//	@Summary		Begin passkey registration
//	@Description	Mints a one-shot registration ceremony for the logged-in account.
//	@Tags			Passkeys
//	@Security		SessionAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.PasskeyOptionsResponse	"Ceremony options"
//	@Failure		401	{object}	authsdk.ErrorResponse			"No valid session"
//	@Router			/auth/passkey/register/options [post].
func (h *PasskeyHandler) HandleRegisterOptions(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		authsdk.ErrUnauthenticated.WriteError(w)
		return
	}

	challengeID, options, err := h.Passkeys.BeginRegistration(r.Context(), user)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	optionsResponse(w, r, challengeID, options)
}

// HandleRegisterVerify handles POST /auth/passkey/register/verify
//
//	@Summary		Finish passkey registration
//	@Description	Verifies the attestation and stores the credential. The challenge is consumed either way.
//	@Tags			Passkeys
//	@Security		SessionAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.PasskeyVerifyRequest		true	"Challenge id and attestation"
//	@Success		201		{object}	authsdk.PasskeyCredentialResponse	"Registered credential"
//	@Failure		400		{object}	authsdk.ErrorResponse				"Invalid challenge or attestation"
//	@Router			/auth/passkey/register/verify [post].
func (h *PasskeyHandler) HandleRegisterVerify(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		authsdk.ErrUnauthenticated.WriteError(w)
		return
	}

	var req authsdk.PasskeyVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChallengeID == "" {
		authsdk.ErrValidation.WriteError(w)
		return
	}

	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(req.Credential))
	if err != nil {
		authsdk.ErrChallengeInvalid.WriteError(w)
		return
	}

	cred, err := h.Passkeys.FinishRegistration(r.Context(), user, req.ChallengeID, parsed)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, passkeyResponse(cred))
}

// HandleLoginOptions handles POST /auth/passkey/login/options
//
//	@Summary		Begin passkey login
//	@Description	Mints an assertion ceremony. An empty email requests a discoverable-credential ceremony.
//	@Tags			Passkeys
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.PasskeyLoginOptionsRequest	true	"Optional account email"
//	@Success		200		{object}	authsdk.PasskeyOptionsResponse		"Ceremony options"
//	@Failure		404		{object}	authsdk.ErrorResponse				"Unknown account"
//	@Router			/auth/passkey/login/options [post].
func (h *PasskeyHandler) HandleLoginOptions(w http.ResponseWriter, r *http.Request) {
	var req authsdk.PasskeyLoginOptionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrValidation.WriteError(w)
		return
	}

	challengeID, options, err := h.Passkeys.BeginLogin(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	optionsResponse(w, r, challengeID, options)
}

// HandleLoginVerify handles POST /auth/passkey/login/verify
//
//	@Summary		Finish passkey login
//	@Description	Verifies the assertion and starts a session.
//	@Tags			Passkeys
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.PasskeyVerifyRequest	true	"Challenge id and assertion"
//	@Success		200		{object}	authsdk.SessionResponse			"Session and account"
//	@Failure		400		{object}	authsdk.ErrorResponse			"Invalid challenge or assertion"
//	@Router			/auth/passkey/login/verify [post].
func (h *PasskeyHandler) HandleLoginVerify(w http.ResponseWriter, r *http.Request) {
	var req authsdk.PasskeyVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ChallengeID == "" {
		authsdk.ErrValidation.WriteError(w)
		return
	}

	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(req.Credential))
	if err != nil {
		authsdk.ErrChallengeInvalid.WriteError(w)
		return
	}

	user, err := h.Passkeys.FinishLogin(r.Context(), req.ChallengeID, parsed)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	startSession(w, r, h.Sessions, user, h.CookieSecure, http.StatusOK)
}

// HandleList handles GET /auth/passkeys
//
//	@Summary		List passkeys
//	@Description	Returns the account's registered passkeys.
//	@Tags			Passkeys
//	@Security		SessionAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.PasskeyListResponse	"Credentials"
//	@Failure		401	{object}	authsdk.ErrorResponse		"No valid session"
//	@Router			/auth/passkeys [get].
func (h *PasskeyHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		authsdk.ErrUnauthenticated.WriteError(w)
		return
	}

	creds, err := h.Passkeys.ListCredentials(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := authsdk.PasskeyListResponse{
		Credentials: make([]authsdk.PasskeyCredentialResponse, 0, len(creds)),
	}
	for _, c := range creds {
		out.Credentials = append(out.Credentials, passkeyResponse(c))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleDelete handles DELETE /auth/passkeys/{credentialID}
//
//	@Summary		Delete a passkey
//	@Description	Removes a credential owned by the logged-in account.
//	@Tags			Passkeys
//	@Security		SessionAuth
//	@Param			credentialID	path	string	true	"Credential id"
//	@Success		204	"Credential removed"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Credential belongs to another account"
//	@Failure		404	{object}	authsdk.ErrorResponse	"Unknown credential"
//	@Router			/auth/passkeys/{credentialID} [delete].
func (h *PasskeyHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		authsdk.ErrUnauthenticated.WriteError(w)
		return
	}

	if err := h.Passkeys.DeleteCredential(r.Context(), user.ID, r.PathValue("credentialID")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
