package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/edgecoder/edgeauth/internal/auth/domain"
	"github.com/edgecoder/edgeauth/internal/auth/service"
	"github.com/edgecoder/edgeauth/pkg/authsdk"
	"github.com/edgecoder/edgeauth/pkg/httpx"
	"github.com/edgecoder/edgeauth/pkg/slogx"
)

// SessionCookieName is the cookie carrying the opaque session token.
const SessionCookieName = "session"

type userCtxKey struct{}

// sessionToken extracts the raw session token from the cookie or, for native
// clients that cannot hold cookies, from a bearer Authorization header.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// SessionMiddleware resolves the session and rejects the request when there
// is none. Missing, unknown and expired sessions are indistinguishable.
func SessionMiddleware(sessions *service.SessionService) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			user, _, err := sessions.Resolve(ctx, sessionToken(r))
			if err != nil {
				if errors.Is(err, service.ErrNoSession) {
					authsdk.ErrUnauthenticated.WriteError(w)
					return
				}
				slogx.FromContext(ctx).Error("session resolution failed", "error", err)
				authsdk.ErrServerError.WriteError(w)
				return
			}

			ctx = context.WithValue(ctx, userCtxKey{}, user)
			ctx = httpx.WithUserID(ctx, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// userFromContext returns the user resolved by SessionMiddleware.
func userFromContext(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(userCtxKey{}).(domain.User)
	return user, ok
}

// setSessionCookie places the opaque token in an HTTP-only cookie.
func setSessionCookie(w http.ResponseWriter, token string, maxAge int, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie expires the session cookie.
func clearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// writeServiceError maps service sentinels onto the wire error taxonomy.
// Anything unmapped is logged and returned as a generic server error.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrNoSession):
		authsdk.ErrUnauthenticated.WriteError(w)
	case errors.Is(err, service.ErrEmailTaken):
		authsdk.ErrConflict.WriteError(w)
	case errors.Is(err, service.ErrForbidden):
		authsdk.ErrForbidden.WriteError(w)
	case errors.Is(err, service.ErrNotFound):
		authsdk.ErrNotFound.WriteError(w)
	case errors.Is(err, service.ErrTokenInvalid),
		errors.Is(err, service.ErrChallengeInvalid),
		errors.Is(err, service.ErrStateInvalid),
		errors.Is(err, service.ErrHandoffInvalid):
		authsdk.ErrChallengeInvalid.WriteError(w)
	case errors.Is(err, service.ErrMFAFailed):
		authsdk.ErrMFAFailed.WriteError(w)
	case errors.Is(err, service.ErrUpstream):
		authsdk.ErrUpstream.WriteError(w)
	case errors.Is(err, service.ErrProviderUnknown),
		errors.Is(err, service.ErrRedirectNotAllowed),
		errors.Is(err, service.ErrNoCredentials),
		errors.Is(err, service.ErrWalletNotOnboarded),
		errors.Is(err, service.ErrEmailNotVerified):
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeValidation, err.Error()).WriteError(w)
	default:
		slogx.FromContext(r.Context()).Error("request failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
	}
}
