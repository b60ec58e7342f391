package httpx

import (
	"crypto/subtle"
	"net/http"
)

// Middleware wraps an http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares to a handler so that the first middleware in the
// list is the outermost one at request time.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// RequireInternalToken guards service-to-service endpoints behind an exact
// shared-secret header match. When no token is configured the endpoint is
// unavailable rather than open.
func RequireInternalToken(header, token string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"error":             "configuration_error",
					"error_description": "internal endpoint is not configured",
				})
				return
			}

			presented := r.Header.Get(header)
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				WriteJSON(w, http.StatusUnauthorized, map[string]string{
					"error":             "unauthenticated",
					"error_description": "invalid internal service token",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
