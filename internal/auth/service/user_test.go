package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgecoder/edgeauth/internal/auth/domain"
	"github.com/edgecoder/edgeauth/pkg/idx"
)

func TestSignupAndLogin(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	mailer := &recordingMailer{}

	emailVerify := &EmailVerificationService{
		Store:   st,
		Mailer:  mailer,
		BaseURL: "https://auth.example.com",
		TTL:     24 * time.Hour,
	}
	svc := &UserService{Store: st, EmailVerify: emailVerify}

	user, err := svc.Signup(ctx, "  Carol@Example.COM ", "Password123!", "Carol")
	require.NoError(t, err)
	require.Equal(t, "carol@example.com", user.Email)
	require.False(t, user.EmailVerified)

	// Signup mailed a verification link.
	mail := mailer.last(t)
	require.Equal(t, "carol@example.com", mail.To)
	require.Contains(t, mail.Body, "https://auth.example.com/auth/verify-email?token=")

	t.Run("login succeeds with normalized email", func(t *testing.T) {
		got, err := svc.Login(ctx, "CAROL@example.com", "Password123!")
		require.NoError(t, err)
		require.Equal(t, user.ID, got.ID)
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		_, err := svc.Login(ctx, "carol@example.com", "wrong-password")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown email rejected identically", func(t *testing.T) {
		_, err := svc.Login(ctx, "nobody@example.com", "Password123!")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("duplicate email conflicts regardless of case", func(t *testing.T) {
		_, err := svc.Signup(ctx, "CAROL@EXAMPLE.COM", "Password123!", "")
		require.ErrorIs(t, err, ErrEmailTaken)
	})
}

func TestLoginRejectsPasswordlessAccount(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	// An account created through OAuth has no password hash.
	now := time.Now().UTC()
	user := domain.User{
		ID:        idx.New().String(),
		Email:     "oauth-only@example.com",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, st.Users().CreateUser(ctx, user))

	svc := &UserService{Store: st, EmailVerify: &EmailVerificationService{
		Store: st, Mailer: &recordingMailer{}, BaseURL: "https://auth.example.com", TTL: time.Hour,
	}}

	_, err := svc.Login(ctx, "oauth-only@example.com", "anything")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}
