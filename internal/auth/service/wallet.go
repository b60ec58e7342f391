package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/edgecoder/edgeauth/internal/auth/domain"
	"github.com/edgecoder/edgeauth/internal/auth/store"
	"github.com/edgecoder/edgeauth/pkg/cryptox"
	"github.com/edgecoder/edgeauth/pkg/idx"
	"github.com/edgecoder/edgeauth/pkg/slogx"
)

// WalletService gates irreversible fund transfers behind two independent
// factors: a 6-digit code delivered by email and a user-verification-required
// passkey assertion. Both must pass inside one short-lived challenge before a
// WalletSendRequest is created, and even then the request only enters manual
// review; execution is out of scope here.
type WalletService struct {
	Store        store.Store
	Passkeys     *PasskeyService
	Mailer       Mailer
	ChallengeTTL time.Duration
}

// StartSendResult carries everything the client needs to confirm: the wallet
// challenge id and the pre-generated UV-required assertion ceremony.
type StartSendResult struct {
	ChallengeID      string
	AssertionOptions *protocol.CredentialAssertion
}

// StartSend opens a send authorization. The caller must have completed
// wallet onboarding and hold at least one passkey. A failed code delivery
// aborts the start and removes the challenge.
func (s *WalletService) StartSend(ctx context.Context, user domain.User, destination string, amount int64, note string) (StartSendResult, error) {
	l := slogx.FromContext(ctx)

	if user.WalletAccountID == "" {
		return StartSendResult{}, ErrWalletNotOnboarded
	}

	passkeyChallengeID, options, err := s.Passkeys.BeginWalletAssertion(ctx, user)
	if err != nil {
		return StartSendResult{}, err
	}

	code, err := generateSendCode()
	if err != nil {
		return StartSendResult{}, err
	}

	now := time.Now().UTC()
	challenge := domain.WalletSendMFAChallenge{
		ID:                 idx.New().String(),
		UserID:             user.ID,
		AccountID:          user.WalletAccountID,
		Destination:        destination,
		Amount:             amount,
		Note:               note,
		PasskeyChallengeID: passkeyChallengeID,
		ExpiresAt:          now.Add(s.ChallengeTTL),
		CreatedAt:          now,
	}
	// Salting the code hash with the challenge id stops a code from being
	// replayed against a different challenge.
	challenge.CodeHash = cryptox.FingerprintToken(challenge.ID + ":" + code)

	if err := s.Store.WalletSendMFAChallenges().CreateWalletSendMFAChallenge(ctx, challenge); err != nil {
		return StartSendResult{}, err
	}

	body := fmt.Sprintf(
		"Your confirmation code for sending %d credits to %s is: %s\n\nThe code expires in %s. If you did not request this transfer, change your password immediately.",
		amount, destination, code, s.ChallengeTTL,
	)
	if err := s.Mailer.Send(ctx, user.Email, "Confirm your transfer", body); err != nil {
		// Never leave a challenge consumable without a code the user holds.
		_ = s.Store.WalletSendMFAChallenges().DeleteWalletSendMFAChallenge(ctx, challenge.ID)
		_ = s.Store.PasskeyChallenges().DeletePasskeyChallenge(ctx, passkeyChallengeID)
		l.Error("wallet send code delivery failed", slog.String("user_id", user.ID), "error", err)
		return StartSendResult{}, ErrUpstream
	}

	l.Info("wallet send authorization started",
		slog.String("user_id", user.ID), slog.String("challenge_id", challenge.ID))

	return StartSendResult{
		ChallengeID:      challenge.ID,
		AssertionOptions: options,
	}, nil
}

// ConfirmSend checks both factors. The challenge is consumed atomically
// before anything else, so a failed attempt can never be retried; the caller
// must start over. Code and assertion failures are indistinguishable.
func (s *WalletService) ConfirmSend(ctx context.Context, user domain.User, challengeID, code string, assertion *protocol.ParsedCredentialAssertionData) (domain.WalletSendRequest, error) {
	l := slogx.FromContext(ctx)

	challenge, err := s.Store.WalletSendMFAChallenges().ConsumeWalletSendMFAChallenge(ctx, challengeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.WalletSendRequest{}, ErrChallengeInvalid
		}
		return domain.WalletSendRequest{}, err
	}

	if challenge.UserID != user.ID || time.Now().UTC().After(challenge.ExpiresAt) {
		_ = s.Store.PasskeyChallenges().DeletePasskeyChallenge(ctx, challenge.PasskeyChallengeID)
		return domain.WalletSendRequest{}, ErrChallengeInvalid
	}

	if !cryptox.VerifyFingerprint(challenge.ID+":"+code, challenge.CodeHash) {
		_ = s.Store.PasskeyChallenges().DeletePasskeyChallenge(ctx, challenge.PasskeyChallengeID)
		l.Info("wallet send code mismatch", slog.String("user_id", user.ID))
		return domain.WalletSendRequest{}, ErrMFAFailed
	}

	if err := s.Passkeys.FinishWalletAssertion(ctx, user, challenge.PasskeyChallengeID, assertion); err != nil {
		if errors.Is(err, ErrChallengeInvalid) {
			l.Info("wallet send assertion rejected", slog.String("user_id", user.ID))
			return domain.WalletSendRequest{}, ErrMFAFailed
		}
		return domain.WalletSendRequest{}, err
	}

	now := time.Now().UTC()
	request := domain.WalletSendRequest{
		ID:             idx.New().String(),
		UserID:         challenge.UserID,
		AccountID:      challenge.AccountID,
		Destination:    challenge.Destination,
		Amount:         challenge.Amount,
		Note:           challenge.Note,
		Status:         domain.WalletSendStatusPendingReview,
		MFAChallengeID: challenge.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.Store.WalletSendRequests().CreateWalletSendRequest(ctx, request); err != nil {
		return domain.WalletSendRequest{}, err
	}

	l.Info("wallet send request created",
		slog.String("user_id", user.ID),
		slog.String("request_id", request.ID),
		slog.Int64("amount", request.Amount),
	)
	return request, nil
}

// ListSendRequests returns the user's send requests, newest first.
func (s *WalletService) ListSendRequests(ctx context.Context, userID string) ([]domain.WalletSendRequest, error) {
	return s.Store.WalletSendRequests().ListWalletSendRequestsForUser(ctx, userID)
}

// generateSendCode samples a 6-digit code uniformly over 000000-999999.
func generateSendCode() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint64(buf[:]) % 1000000
	return fmt.Sprintf("%06d", n), nil
}
