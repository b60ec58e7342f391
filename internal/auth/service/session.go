package service

import (
	"context"
	"errors"
	"time"

	"github.com/edgecoder/edgeauth/internal/auth/domain"
	"github.com/edgecoder/edgeauth/internal/auth/store"
	"github.com/edgecoder/edgeauth/pkg/cryptox"
	"github.com/edgecoder/edgeauth/pkg/idx"
)

// SessionService mints and resolves opaque session tokens. The raw token
// travels only in the cookie; the database sees its SHA-256 fingerprint.
type SessionService struct {
	Store store.Store
	TTL   time.Duration
}

// Create issues a new session for the user and returns the raw token.
func (s *SessionService) Create(ctx context.Context, userID string) (string, domain.Session, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", domain.Session{}, err
	}

	now := time.Now().UTC()
	sess := domain.Session{
		ID:        idx.New().String(),
		UserID:    userID,
		TokenHash: cryptox.FingerprintToken(token),
		ExpiresAt: now.Add(s.TTL),
		CreatedAt: now,
	}
	if err := s.Store.Sessions().CreateSession(ctx, sess); err != nil {
		return "", domain.Session{}, err
	}

	return token, sess, nil
}

// Resolve maps a raw token to its user. Unknown and expired tokens both
// return ErrNoSession so a caller cannot distinguish the two.
func (s *SessionService) Resolve(ctx context.Context, token string) (domain.User, domain.Session, error) {
	if token == "" {
		return domain.User{}, domain.Session{}, ErrNoSession
	}

	sess, err := s.Store.Sessions().GetSessionByTokenHash(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, domain.Session{}, ErrNoSession
		}
		return domain.User{}, domain.Session{}, err
	}

	if time.Now().UTC().After(sess.ExpiresAt) {
		// Drop the dead row now rather than waiting for housekeeping.
		_ = s.Store.Sessions().DeleteSessionByTokenHash(ctx, sess.TokenHash)
		return domain.User{}, domain.Session{}, ErrNoSession
	}

	user, err := s.Store.Users().GetUserByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, domain.Session{}, ErrNoSession
		}
		return domain.User{}, domain.Session{}, err
	}

	return user, sess, nil
}

// Destroy invalidates a session by raw token. Destroying an absent or
// already-destroyed session succeeds.
func (s *SessionService) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.Store.Sessions().DeleteSessionByTokenHash(ctx, cryptox.FingerprintToken(token))
}
