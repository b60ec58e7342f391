package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edgecoder/edgeauth/internal/auth/domain"
	"github.com/edgecoder/edgeauth/internal/auth/store"
	"github.com/edgecoder/edgeauth/pkg/cryptox"
	"github.com/edgecoder/edgeauth/pkg/idx"
	"github.com/edgecoder/edgeauth/pkg/slogx"
)

// EmailVerificationService issues and consumes one-shot email ownership
// proofs. Verification also flips the snapshot carried on the user's node
// enrollments, which is why Consume runs in a transaction.
type EmailVerificationService struct {
	Store   store.Store
	Mailer  Mailer
	BaseURL string
	TTL     time.Duration
}

// Issue mints a fresh verification token for the user and mails the link.
// Older tokens stay valid until consumed or expired.
func (s *EmailVerificationService) Issue(ctx context.Context, user domain.User) error {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	rec := domain.EmailVerificationToken{
		ID:        idx.New().String(),
		UserID:    user.ID,
		TokenHash: cryptox.FingerprintToken(token),
		ExpiresAt: now.Add(s.TTL),
		CreatedAt: now,
	}
	if err := s.Store.EmailVerificationTokens().CreateEmailVerificationToken(ctx, rec); err != nil {
		return err
	}

	link := fmt.Sprintf("%s/auth/verify-email?token=%s", s.BaseURL, token)
	body := fmt.Sprintf("Verify your email address by opening this link:\n\n%s\n\nThe link expires in %s.", link, s.TTL)
	return s.Mailer.Send(ctx, user.Email, "Verify your email address", body)
}

// Consume redeems a raw token. The row is deleted before the expiry check,
// so even an expired token is single-use. Marking the user verified and
// syncing their node snapshots commit together.
func (s *EmailVerificationService) Consume(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return ErrTokenInvalid
	}

	l := slogx.FromContext(ctx)
	hash := cryptox.FingerprintToken(rawToken)

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		rec, err := tx.EmailVerificationTokens().ConsumeEmailVerificationToken(ctx, hash)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrTokenInvalid
			}
			return err
		}

		if time.Now().UTC().After(rec.ExpiresAt) {
			return ErrTokenInvalid
		}

		if err := markEmailVerified(ctx, tx, rec.UserID); err != nil {
			return err
		}

		l.Info("email verified", slog.String("user_id", rec.UserID))
		return nil
	})
}

// Resend issues a new token for an unverified account. It reports success
// regardless of whether the email maps to an account, to avoid enumeration.
func (s *EmailVerificationService) Resend(ctx context.Context, email string) error {
	user, err := s.Store.Users().GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if user.EmailVerified {
		return nil
	}
	return s.Issue(ctx, user)
}

// markEmailVerified flips the user flag and refreshes the enrollment
// snapshots in the same transaction. OAuth identity resolution reuses this
// when a provider reports a verified email.
func markEmailVerified(ctx context.Context, tx store.Tx, userID string) error {
	if err := tx.Users().MarkEmailVerified(ctx, userID); err != nil {
		return err
	}
	return tx.NodeEnrollments().SyncOwnerEmailVerified(ctx, userID, true, time.Now().UTC())
}
