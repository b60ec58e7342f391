package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/edgecoder/edgeauth/internal/auth/domain"
	"github.com/edgecoder/edgeauth/internal/auth/store"
	"github.com/edgecoder/edgeauth/pkg/cryptox"
	"github.com/edgecoder/edgeauth/pkg/idx"
	"github.com/edgecoder/edgeauth/pkg/slogx"
)

// ProviderConfig describes one upstream identity provider.
type ProviderConfig struct {
	Name         string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	Scopes       []string
}

// OAuthService runs the federation handshake: START mints a one-shot state,
// CALLBACK exchanges the code, resolves an identity to a local user, and
// either sets a session or bridges back to a native app.
type OAuthService struct {
	Store    store.Store
	Sessions *SessionService

	Providers map[string]ProviderConfig
	BaseURL   string

	// NativeRedirectScheme is the only accepted native redirect prefix,
	// e.g. "edgecoder://". http(s) redirects are never accepted here.
	NativeRedirectScheme string

	StateTTL        time.Duration
	ExchangeTimeout time.Duration
	HTTPClient      *http.Client

	bridge *oauthBridge
}

func NewOAuthService(st store.Store, sessions *SessionService, providers map[string]ProviderConfig, baseURL, nativeScheme string) *OAuthService {
	return &OAuthService{
		Store:                st,
		Sessions:             sessions,
		Providers:            providers,
		BaseURL:              baseURL,
		NativeRedirectScheme: nativeScheme,
		StateTTL:             10 * time.Minute,
		ExchangeTimeout:      10 * time.Second,
		HTTPClient:           &http.Client{Timeout: 10 * time.Second},
		bridge:               newOAuthBridge(10*time.Minute, 5*time.Minute),
	}
}

// CallbackResult tells the HTTP layer how to finish the handshake: set the
// session cookie, or redirect to the native URI carrying a hand-off token.
type CallbackResult struct {
	User           domain.User
	SessionToken   string
	Session        domain.Session
	NativeRedirect string
}

// Start validates the provider and optional native redirect, persists a
// one-shot state row, and returns the provider authorization URL.
func (s *OAuthService) Start(ctx context.Context, provider, nativeRedirect string) (string, error) {
	p, ok := s.Providers[provider]
	if !ok {
		return "", ErrProviderUnknown
	}

	if nativeRedirect != "" {
		if s.NativeRedirectScheme == "" || !strings.HasPrefix(nativeRedirect, s.NativeRedirectScheme) {
			return "", ErrRedirectNotAllowed
		}
	}

	state, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	if err := s.Store.OAuthStates().CreateOAuthState(ctx, domain.OAuthState{
		ID:          state,
		Provider:    provider,
		RedirectURI: s.callbackURL(provider),
		ExpiresAt:   now.Add(s.StateTTL),
		CreatedAt:   now,
	}); err != nil {
		return "", err
	}

	if nativeRedirect != "" {
		s.bridge.RememberNativeRedirect(state, nativeRedirect)
	}

	return s.oauth2Config(p).AuthCodeURL(state), nil
}

// Callback consumes the state, exchanges the code, resolves the identity and
// completes the login. Replayed or mismatched state fails before any network
// call is made.
func (s *OAuthService) Callback(ctx context.Context, provider, code, state string) (CallbackResult, error) {
	l := slogx.FromContext(ctx)

	p, ok := s.Providers[provider]
	if !ok {
		return CallbackResult{}, ErrProviderUnknown
	}
	if code == "" || state == "" {
		return CallbackResult{}, ErrStateInvalid
	}

	st, err := s.Store.OAuthStates().ConsumeOAuthState(ctx, state)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return CallbackResult{}, ErrStateInvalid
		}
		return CallbackResult{}, err
	}
	if st.Provider != provider || time.Now().UTC().After(st.ExpiresAt) {
		return CallbackResult{}, ErrStateInvalid
	}

	claims, err := s.exchange(ctx, p, code)
	if err != nil {
		l.Info("oauth code exchange failed", slog.String("provider", provider), "error", err)
		return CallbackResult{}, ErrUpstream
	}
	if claims.Subject == "" || claims.Email == "" {
		return CallbackResult{}, ErrUpstream
	}

	user, err := s.resolveIdentity(ctx, provider, claims)
	if err != nil {
		return CallbackResult{}, err
	}

	result := CallbackResult{User: user}

	if nativeURI, pending := s.bridge.TakeNativeRedirect(state); pending {
		handoff, err := s.bridge.IssueHandoff(user.ID)
		if err != nil {
			return CallbackResult{}, err
		}
		sep := "?"
		if strings.Contains(nativeURI, "?") {
			sep = "&"
		}
		result.NativeRedirect = nativeURI + sep + "token=" + handoff
		l.Info("oauth login bridged to native app",
			slog.String("provider", provider), slog.String("user_id", user.ID))
		return result, nil
	}

	token, sess, err := s.Sessions.Create(ctx, user.ID)
	if err != nil {
		return CallbackResult{}, err
	}
	result.SessionToken = token
	result.Session = sess

	l.Info("oauth login completed", slog.String("provider", provider), slog.String("user_id", user.ID))
	return result, nil
}

// CompleteMobile redeems a one-shot hand-off token for a real session.
func (s *OAuthService) CompleteMobile(ctx context.Context, handoffToken string) (string, domain.Session, domain.User, error) {
	if handoffToken == "" {
		return "", domain.Session{}, domain.User{}, ErrHandoffInvalid
	}

	userID, ok := s.bridge.RedeemHandoff(handoffToken)
	if !ok {
		return "", domain.Session{}, domain.User{}, ErrHandoffInvalid
	}

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", domain.Session{}, domain.User{}, ErrHandoffInvalid
		}
		return "", domain.Session{}, domain.User{}, err
	}

	token, sess, err := s.Sessions.Create(ctx, user.ID)
	if err != nil {
		return "", domain.Session{}, domain.User{}, err
	}
	return token, sess, user, nil
}

// providerClaims is the subset of identity claims the handshake needs.
type providerClaims struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// exchange swaps the authorization code for tokens and extracts claims,
// preferring the ID token and falling back to the userinfo endpoint.
func (s *OAuthService) exchange(ctx context.Context, p ProviderConfig, code string) (providerClaims, error) {
	ctx, cancel := context.WithTimeout(ctx, s.ExchangeTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.HTTPClient)

	tok, err := s.oauth2Config(p).Exchange(ctx, code)
	if err != nil {
		return providerClaims{}, err
	}

	var claims providerClaims
	if rawIDToken, ok := tok.Extra("id_token").(string); ok && rawIDToken != "" {
		// The ID token arrived over TLS directly from the token endpoint, so
		// an unverified claim parse is sufficient here.
		if parsed, err := parseIDTokenClaims(rawIDToken); err == nil {
			claims = parsed
		}
	}
	if claims.Subject != "" && claims.Email != "" {
		return claims, nil
	}

	// Some providers omit the ID token or leave out the email claim (GitHub
	// keeps email behind userinfo), so fill the gaps from there. ID token
	// claims win where both carry a value.
	if p.UserInfoURL == "" {
		if claims.Subject != "" && claims.Email == "" {
			return providerClaims{}, fmt.Errorf("provider %s returned no email claim and has no userinfo endpoint", p.Name)
		}
		return providerClaims{}, fmt.Errorf("provider %s returned no usable id_token", p.Name)
	}

	info, err := s.fetchUserInfo(ctx, p, tok.AccessToken)
	if err != nil {
		return providerClaims{}, err
	}
	if claims.Subject == "" {
		claims.Subject = info.Subject
	}
	if claims.Email == "" {
		claims.Email = info.Email
		claims.EmailVerified = info.EmailVerified
	}
	if claims.Name == "" {
		claims.Name = info.Name
	}
	return claims, nil
}

func parseIDTokenClaims(rawIDToken string) (providerClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawIDToken, claims); err != nil {
		return providerClaims{}, err
	}

	out := providerClaims{}
	if sub, ok := claims["sub"].(string); ok {
		out.Subject = sub
	}
	if email, ok := claims["email"].(string); ok {
		out.Email = NormalizeEmail(email)
	}
	if name, ok := claims["name"].(string); ok {
		out.Name = name
	}
	out.EmailVerified = claimBool(claims["email_verified"])
	return out, nil
}

func (s *OAuthService) fetchUserInfo(ctx context.Context, p ProviderConfig, accessToken string) (providerClaims, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return providerClaims{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return providerClaims{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return providerClaims{}, fmt.Errorf("userinfo endpoint returned %d", resp.StatusCode)
	}

	var body struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified any    `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return providerClaims{}, err
	}

	return providerClaims{
		Subject:       body.Sub,
		Email:         NormalizeEmail(body.Email),
		EmailVerified: claimBool(body.EmailVerified),
		Name:          body.Name,
	}, nil
}

// claimBool tolerates providers that encode email_verified as a string.
func claimBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	default:
		return false
	}
}

// resolveIdentity maps provider claims to a local user: existing link first,
// then normalized email match, then a new account. The (provider, subject)
// link is always refreshed with the latest email snapshot.
func (s *OAuthService) resolveIdentity(ctx context.Context, provider string, claims providerClaims) (domain.User, error) {
	var user domain.User

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		now := time.Now().UTC()

		ident, err := tx.OAuthIdentities().GetOAuthIdentity(ctx, provider, claims.Subject)
		switch {
		case err == nil:
			user, err = tx.Users().GetUserByID(ctx, ident.UserID)
			if err != nil {
				return err
			}
		case errors.Is(err, store.ErrNotFound):
			user, err = tx.Users().GetUserByEmail(ctx, claims.Email)
			if errors.Is(err, store.ErrNotFound) {
				user = domain.User{
					ID:            idx.New().String(),
					Email:         claims.Email,
					DisplayName:   claims.Name,
					EmailVerified: claims.EmailVerified,
					CreatedAt:     now,
					UpdatedAt:     now,
				}
				if err := tx.Users().CreateUser(ctx, user); err != nil {
					return err
				}
			} else if err != nil {
				return err
			}
		default:
			return err
		}

		if claims.EmailVerified && !user.EmailVerified {
			if err := markEmailVerified(ctx, tx, user.ID); err != nil {
				return err
			}
			user.EmailVerified = true
		}

		return tx.OAuthIdentities().UpsertOAuthIdentity(ctx, domain.OAuthIdentity{
			Provider:  provider,
			Subject:   claims.Subject,
			UserID:    user.ID,
			Email:     claims.Email,
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (s *OAuthService) callbackURL(provider string) string {
	return fmt.Sprintf("%s/auth/oauth/%s/callback", s.BaseURL, provider)
}

func (s *OAuthService) oauth2Config(p ProviderConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  s.callbackURL(p.Name),
		Scopes:       p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthURL,
			TokenURL: p.TokenURL,
		},
	}
}
