package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/edgecoder/edgeauth/internal/auth/domain"
	"github.com/edgecoder/edgeauth/internal/auth/service"
	"github.com/edgecoder/edgeauth/pkg/authsdk"
	"github.com/edgecoder/edgeauth/pkg/httpx"
	"github.com/edgecoder/edgeauth/pkg/slogx"
)

// AccountHandler serves signup, login, logout and the current-account view.
type AccountHandler struct {
	Sessions     *service.SessionService
	Users        *service.UserService
	CookieSecure bool
}

func userResponse(u domain.User) authsdk.UserResponse {
	return authsdk.UserResponse{
		ID:              u.ID,
		Email:           u.Email,
		DisplayName:     u.DisplayName,
		EmailVerified:   u.EmailVerified,
		Admin:           u.Admin,
		WalletAccountID: u.WalletAccountID,
		CreatedAt:       u.CreatedAt,
	}
}

// startSession creates a session, sets the cookie and writes the response.
func startSession(w http.ResponseWriter, r *http.Request, sessions *service.SessionService, user domain.User, secure bool, status int) {
	token, sess, err := sessions.Create(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	setSessionCookie(w, token, int(sessions.TTL.Seconds()), secure)
	httpx.WriteJSON(w, status, authsdk.SessionResponse{
		Token:     token,
		ExpiresAt: sess.ExpiresAt,
		User:      userResponse(user),
	})
}

// HandleSignup handles POST /auth/signup
//
//	@Summary		Register a new account
//	@Description	Creates a password account, sends a verification email and starts a session.
//	@Tags			Accounts
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.SignupRequest	true	"Account details"
//	@Success		201		{object}	authsdk.SessionResponse	"Session and account"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Malformed request"
//	@Failure		409		{object}	authsdk.ErrorResponse	"Email already registered"
//	@Router			/auth/signup [post].
func (h *AccountHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req authsdk.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrValidation.WriteError(w)
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || len(req.Password) < 8 {
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeValidation,
			"email is required and password must be at least 8 characters").WriteError(w)
		return
	}

	user, err := h.Users.Signup(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	startSession(w, r, h.Sessions, user, h.CookieSecure, http.StatusCreated)
}

// HandleLogin handles POST /auth/login
//
//	@Summary		Log in with email and password
//	@Description	Verifies credentials and starts a session. The response never distinguishes unknown accounts from wrong passwords.
//	@Tags			Accounts
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.SessionResponse	"Session and account"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid credentials"
//	@Router			/auth/login [post].
func (h *AccountHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		authsdk.ErrValidation.WriteError(w)
		return
	}
	if req.Email == "" || req.Password == "" {
		authsdk.ErrValidation.WriteError(w)
		return
	}

	user, err := h.Users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	slogx.FromContext(r.Context()).Info("user logged in", "user_id", user.ID)
	startSession(w, r, h.Sessions, user, h.CookieSecure, http.StatusOK)
}

// HandleLogout handles POST /auth/logout
//
//	@Summary		Log out
//	@Description	Destroys the current session and clears the cookie. Succeeds even without a session.
//	@Tags			Accounts
//	@Success		204	"Session destroyed"
//	@Router			/auth/logout [post].
func (h *AccountHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Destroy(r.Context(), sessionToken(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}

	clearSessionCookie(w, h.CookieSecure)
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe handles GET /auth/me
//
//	@Summary		Current account
//	@Description	Returns the account behind the session cookie.
//	@Tags			Accounts
//	@Security		SessionAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.UserResponse	"Account"
//	@Failure		401	{object}	authsdk.ErrorResponse	"No valid session"
//	@Router			/auth/me [get].
func (h *AccountHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		authsdk.ErrUnauthenticated.WriteError(w)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userResponse(user))
}
