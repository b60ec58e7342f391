package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/edgecoder/edgeauth/internal/auth/store/drivers/sqlite"
)

// fakeProvider is an OAuth provider backed by httptest. Its token endpoint
// returns a signed (but never verified) ID token with the given claims, and
// its userinfo endpoint serves the userinfo map when one is set.
type fakeProvider struct {
	srv      *httptest.Server
	claims   jwt.MapClaims
	userinfo map[string]any
}

func newFakeProvider(t *testing.T, claims jwt.MapClaims) *fakeProvider {
	t.Helper()
	p := &fakeProvider{claims: claims}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		idToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, p.claims).SignedString([]byte("test-signing-key"))
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-access-token",
			"token_type":   "bearer",
			"id_token":     idToken,
		})
	})
	mux.HandleFunc("GET /userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-access-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(p.userinfo)
	})

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakeProvider) config(name string) ProviderConfig {
	return ProviderConfig{
		Name:         name,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURL:      p.srv.URL + "/authorize",
		TokenURL:     p.srv.URL + "/token",
		Scopes:       []string{"openid", "email"},
	}
}

func newOAuthTestService(t *testing.T, claims jwt.MapClaims) (*OAuthService, *sqlite.Store) {
	t.Helper()
	st := newTestStore(t)
	sessions := &SessionService{Store: st, TTL: time.Hour}

	provider := newFakeProvider(t, claims)
	svc := NewOAuthService(
		st,
		sessions,
		map[string]ProviderConfig{"test": provider.config("test")},
		"http://localhost:8080",
		"edgecoder://",
	)
	return svc, st
}

// stateFromAuthURL pulls the state parameter out of the authorization URL.
func stateFromAuthURL(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

func TestOAuthBrowserFlow(t *testing.T) {
	ctx := context.Background()
	svc, _ := newOAuthTestService(t, jwt.MapClaims{
		"sub":            "provider-sub-1",
		"email":          "Grace@Example.com",
		"email_verified": true,
		"name":           "Grace",
	})

	authURL, err := svc.Start(ctx, "test", "")
	require.NoError(t, err)
	require.Contains(t, authURL, "/authorize")
	state := stateFromAuthURL(t, authURL)

	result, err := svc.Callback(ctx, "test", "auth-code", state)
	require.NoError(t, err)
	require.Empty(t, result.NativeRedirect)
	require.NotEmpty(t, result.SessionToken)
	require.Equal(t, "grace@example.com", result.User.Email)
	require.True(t, result.User.EmailVerified)

	// The state is one-shot: a replay fails before any provider call.
	_, err = svc.Callback(ctx, "test", "auth-code", state)
	require.ErrorIs(t, err, ErrStateInvalid)
}

func TestOAuthStartValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newOAuthTestService(t, jwt.MapClaims{"sub": "s", "email": "x@example.com"})

	_, err := svc.Start(ctx, "nope", "")
	require.ErrorIs(t, err, ErrProviderUnknown)

	_, err = svc.Start(ctx, "test", "https://evil.example.com/steal")
	require.ErrorIs(t, err, ErrRedirectNotAllowed)

	_, err = svc.Start(ctx, "test", "othersheme://login")
	require.ErrorIs(t, err, ErrRedirectNotAllowed)
}

func TestOAuthCallbackRejectsForgedState(t *testing.T) {
	ctx := context.Background()
	svc, _ := newOAuthTestService(t, jwt.MapClaims{"sub": "s", "email": "x@example.com"})

	_, err := svc.Callback(ctx, "test", "code", "never-issued-state")
	require.ErrorIs(t, err, ErrStateInvalid)

	_, err = svc.Callback(ctx, "test", "", "")
	require.ErrorIs(t, err, ErrStateInvalid)
}

func TestOAuthNativeHandoff(t *testing.T) {
	ctx := context.Background()
	svc, _ := newOAuthTestService(t, jwt.MapClaims{
		"sub":            "provider-sub-2",
		"email":          "heidi@example.com",
		"email_verified": true,
	})

	authURL, err := svc.Start(ctx, "test", "edgecoder://oauth-done")
	require.NoError(t, err)
	state := stateFromAuthURL(t, authURL)

	result, err := svc.Callback(ctx, "test", "auth-code", state)
	require.NoError(t, err)

	// Native flows get a redirect carrying a hand-off token, no session yet.
	require.Empty(t, result.SessionToken)
	require.True(t, strings.HasPrefix(result.NativeRedirect, "edgecoder://oauth-done?token="), result.NativeRedirect)

	handoff := strings.TrimPrefix(result.NativeRedirect, "edgecoder://oauth-done?token=")

	token, sess, user, err := svc.CompleteMobile(ctx, handoff)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, result.User.ID, user.ID)
	require.Equal(t, user.ID, sess.UserID)

	// Hand-off tokens are one-shot.
	_, _, _, err = svc.CompleteMobile(ctx, handoff)
	require.ErrorIs(t, err, ErrHandoffInvalid)
}

func TestOAuthFetchesEmailFromUserInfo(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	sessions := &SessionService{Store: st, TTL: time.Hour}

	// GitHub-style provider: the ID token carries the subject but no email
	// claim, which lives behind the userinfo endpoint instead.
	provider := newFakeProvider(t, jwt.MapClaims{"sub": "provider-sub-5"})
	provider.userinfo = map[string]any{
		"sub":            "provider-sub-5",
		"email":          "Kim@Example.com",
		"email_verified": true,
		"name":           "Kim",
	}

	cfg := provider.config("test")
	cfg.UserInfoURL = provider.srv.URL + "/userinfo"

	svc := NewOAuthService(st, sessions,
		map[string]ProviderConfig{"test": cfg},
		"http://localhost:8080", "edgecoder://")

	result := callbackOnce(t, svc)
	require.Equal(t, "kim@example.com", result.User.Email)
	require.Equal(t, "Kim", result.User.DisplayName)
	require.True(t, result.User.EmailVerified)
	require.NotEmpty(t, result.SessionToken)

	// The link keeps the ID token subject.
	ident, err := st.OAuthIdentities().GetOAuthIdentity(ctx, "test", "provider-sub-5")
	require.NoError(t, err)
	require.Equal(t, result.User.ID, ident.UserID)
}

func TestOAuthRejectsEmaillessIdentity(t *testing.T) {
	ctx := context.Background()
	// No email claim and no userinfo endpoint configured: the callback
	// cannot resolve an account and must fail upstream.
	svc, _ := newOAuthTestService(t, jwt.MapClaims{"sub": "provider-sub-6"})

	authURL, err := svc.Start(ctx, "test", "")
	require.NoError(t, err)

	_, err = svc.Callback(ctx, "test", "auth-code", stateFromAuthURL(t, authURL))
	require.ErrorIs(t, err, ErrUpstream)
}

func TestOAuthLinksExistingAccountByEmail(t *testing.T) {
	ctx := context.Background()
	svc, st := newOAuthTestService(t, jwt.MapClaims{
		"sub":            "provider-sub-3",
		"email":          "ivan@example.com",
		"email_verified": true,
	})

	existing := createTestUser(t, st, "ivan@example.com", false)

	authURL, err := svc.Start(ctx, "test", "")
	require.NoError(t, err)

	result, err := svc.Callback(ctx, "test", "auth-code", stateFromAuthURL(t, authURL))
	require.NoError(t, err)
	require.Equal(t, existing.ID, result.User.ID)

	// A provider-verified email upgrades the local flag.
	got, err := svc.Store.Users().GetUserByID(ctx, existing.ID)
	require.NoError(t, err)
	require.True(t, got.EmailVerified)
}

func TestOAuthRepeatLoginReusesLink(t *testing.T) {
	svc, _ := newOAuthTestService(t, jwt.MapClaims{
		"sub":            "provider-sub-4",
		"email":          "judy@example.com",
		"email_verified": true,
	})

	first := callbackOnce(t, svc)
	second := callbackOnce(t, svc)
	require.Equal(t, first.User.ID, second.User.ID)
}

func callbackOnce(t *testing.T, svc *OAuthService) CallbackResult {
	t.Helper()
	ctx := context.Background()

	authURL, err := svc.Start(ctx, "test", "")
	require.NoError(t, err)

	result, err := svc.Callback(ctx, "test", "auth-code", stateFromAuthURL(t, authURL))
	require.NoError(t, err)
	return result
}
