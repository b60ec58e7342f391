package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/edgecoder/edgeauth/internal/auth/domain"
	"github.com/edgecoder/edgeauth/internal/auth/store"
	"github.com/edgecoder/edgeauth/pkg/cryptox"
	"github.com/edgecoder/edgeauth/pkg/idx"
	"github.com/edgecoder/edgeauth/pkg/slogx"
)

type UserService struct {
	Store       store.Store
	EmailVerify *EmailVerificationService
}

// NormalizeEmail is the single place email addresses are canonicalized
// before storage or lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup registers a password account and kicks off email verification.
// Returns ErrEmailTaken when the normalized email already has an account.
func (s *UserService) Signup(ctx context.Context, email, password, displayName string) (domain.User, error) {
	l := slogx.FromContext(ctx)

	email = NormalizeEmail(email)
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(displayName),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, err
	}

	if err := s.EmailVerify.Issue(ctx, user); err != nil {
		// The account exists; the user can request a resend.
		l.Error("failed to issue verification email", slog.String("user_id", user.ID), "error", err)
	}

	l.Info("user signed up", slog.String("user_id", user.ID))
	return user, nil
}

// Login verifies an email/password pair. Every failure mode (unknown email,
// wrong password, OAuth-only account) collapses into ErrInvalidCredentials.
func (s *UserService) Login(ctx context.Context, email, password string) (domain.User, error) {
	user, err := s.Store.Users().GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn comparable time so absent accounts are not distinguishable
			// by response latency.
			_ = cryptox.VerifyPassword(password, dummyPasswordHash())
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}

	if user.PasswordHash == "" {
		_ = cryptox.VerifyPassword(password, dummyPasswordHash())
		return domain.User{}, ErrInvalidCredentials
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}

	return user, nil
}

// GetUserByID fetches a user by id.
func (s *UserService) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, err
	}
	return u, nil
}

// dummyPasswordHash is a throwaway argon2 hash used to equalize verify time
// when the account does not exist. Parameters match HashPassword output.
// Computed lazily so the pepper path is configured before first use.
var dummyPasswordHash = sync.OnceValue(func() string {
	h, err := cryptox.HashPassword("edgeauth-timing-pad")
	if err != nil {
		panic(err)
	}
	return h
})
