package http

import (
	"encoding/json"
	"net/http"

	"github.com/edgecoder/edgeauth/internal/auth/service"
	"github.com/edgecoder/edgeauth/pkg/authsdk"
	"github.com/edgecoder/edgeauth/pkg/httpx"
)

// OAuthHandler serves the federation handshake endpoints.
type OAuthHandler struct {
	OAuth        *service.OAuthService
	CookieSecure bool
}

// HandleStart handles GET|POST /auth/oauth/{provider}/start
//
//	@Summary		Start an OAuth login
//	@Description	Mints a one-shot CSRF state and redirects to the provider's authorization page.
//	@Description	A redirect_uri with the native app scheme routes the eventual callback through the hand-off bridge.
//	@Tags			OAuth
//	@Param			provider		path	string	true	"Provider name"
//	@Param			redirect_uri	query	string	false	"Native app redirect URI"
//	@Success		302	"Redirect to the provider"
//	@Failure		400	{object}	authsdk.ErrorResponse	"Unknown provider or disallowed redirect"
//	@Router			/auth/oauth/{provider}/start [get].
func (h *OAuthHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	// FormValue covers both the query string and POSTed form bodies.
	nativeRedirect := r.FormValue("redirect_uri")

	authURL, err := h.OAuth.Start(r.Context(), provider, nativeRedirect)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback handles GET|POST /auth/oauth/{provider}/callback
//
//	@Summary		OAuth provider callback
//	@Description	Consumes the state, exchanges the code and completes the login. Browser flows
//	@Description	receive a session cookie; native flows are redirected to the app with a one-shot
//	@Description	hand-off token in the query string.
//	@Tags			OAuth
//	@Produce		json
//	@Param			provider	path		string	true	"Provider name"
//	@Param			code		query		string	true	"Authorization code"
//	@Param			state		query		string	true	"CSRF state"
//	@Success		200			{object}	authsdk.SessionResponse	"Session (browser flow)"
//	@Success		302			"Redirect to the native app (hand-off flow)"
//	@Failure		400			{object}	authsdk.ErrorResponse	"Invalid or replayed state"
//	@Failure		502			{object}	authsdk.ErrorResponse	"Provider exchange failed"
//	@Router			/auth/oauth/{provider}/callback [get].
func (h *OAuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")

	// Providers using response_mode=form_post deliver the code and state in
	// a form body rather than the query string; FormValue accepts either.
	if r.FormValue("error") != "" {
		authsdk.NewAPIError(http.StatusBadGateway, authsdk.ErrorCodeUpstream,
			"provider denied the authorization request").WriteError(w)
		return
	}

	result, err := h.OAuth.Callback(r.Context(), provider, r.FormValue("code"), r.FormValue("state"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if result.NativeRedirect != "" {
		http.Redirect(w, r, result.NativeRedirect, http.StatusFound)
		return
	}

	setSessionCookie(w, result.SessionToken, int(h.OAuth.Sessions.TTL.Seconds()), h.CookieSecure)
	httpx.WriteJSON(w, http.StatusOK, authsdk.SessionResponse{
		Token:     result.SessionToken,
		ExpiresAt: result.Session.ExpiresAt,
		User:      userResponse(result.User),
	})
}

// HandleMobileComplete handles POST /auth/oauth/mobile/complete
//
//	@Summary		Redeem a native hand-off token
//	@Description	Exchanges the one-shot token from the native redirect for a real session.
//	@Tags			OAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.MobileCompleteRequest	true	"Hand-off token"
//	@Success		200		{object}	authsdk.SessionResponse			"Session"
//	@Failure		400		{object}	authsdk.ErrorResponse			"Invalid, expired or replayed token"
//	@Router			/auth/oauth/mobile/complete [post].
func (h *OAuthHandler) HandleMobileComplete(w http.ResponseWriter, r *http.Request) {
	var req authsdk.MobileCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		authsdk.ErrValidation.WriteError(w)
		return
	}

	token, sess, user, err := h.OAuth.CompleteMobile(r.Context(), req.Token)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.SessionResponse{
		Token:     token,
		ExpiresAt: sess.ExpiresAt,
		User:      userResponse(user),
	})
}
