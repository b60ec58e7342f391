package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/edgecoder/edgeauth/internal/auth/domain"
	"github.com/edgecoder/edgeauth/internal/auth/store"
	"github.com/edgecoder/edgeauth/pkg/idx"
	"github.com/edgecoder/edgeauth/pkg/slogx"
)

// ErrNoCredentials reports an email-scoped login attempt for an account
// without registered passkeys.
var ErrNoCredentials = errors.New("no_credentials")

// PasskeyService runs WebAuthn ceremonies. Challenges are one-shot rows
// carrying the serialized library session state; origin and RP-ID checks are
// done by the library against server configuration only.
//
// Every cryptographic failure surfaces as ErrChallengeInvalid so a caller
// cannot use the ceremony as a verification oracle.
type PasskeyService struct {
	Store        store.Store
	WebAuthn     *webauthn.WebAuthn
	ChallengeTTL time.Duration
}

// webauthnUser adapts a local user and their stored credentials to the
// library's user model. The WebAuthn user handle is the user's ULID bytes.
type webauthnUser struct {
	user  domain.User
	creds []domain.PasskeyCredential
}

func (u *webauthnUser) WebAuthnID() []byte   { return []byte(u.user.ID) }
func (u *webauthnUser) WebAuthnName() string { return u.user.Email }

func (u *webauthnUser) WebAuthnDisplayName() string {
	if u.user.DisplayName != "" {
		return u.user.DisplayName
	}
	return u.user.Email
}

func (u *webauthnUser) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, 0, len(u.creds))
	for _, c := range u.creds {
		creds = append(creds, credentialToWebAuthn(c))
	}
	return creds
}

func credentialToWebAuthn(c domain.PasskeyCredential) webauthn.Credential {
	id, _ := base64.RawURLEncoding.DecodeString(c.ID)
	transports := make([]protocol.AuthenticatorTransport, 0, len(c.Transports))
	for _, t := range c.Transports {
		transports = append(transports, protocol.AuthenticatorTransport(t))
	}
	return webauthn.Credential{
		ID:              id,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Transport:       transports,
		Flags: webauthn.CredentialFlags{
			BackupEligible: c.BackupEligible,
			BackupState:    c.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:    c.AAGUID,
			SignCount: c.SignCount,
		},
	}
}

func credentialFromWebAuthn(userID string, wc *webauthn.Credential) domain.PasskeyCredential {
	transports := make([]string, 0, len(wc.Transport))
	for _, t := range wc.Transport {
		transports = append(transports, string(t))
	}
	return domain.PasskeyCredential{
		ID:              base64.RawURLEncoding.EncodeToString(wc.ID),
		UserID:          userID,
		PublicKey:       wc.PublicKey,
		AttestationType: wc.AttestationType,
		Transports:      transports,
		SignCount:       wc.Authenticator.SignCount,
		BackupEligible:  wc.Flags.BackupEligible,
		BackupState:     wc.Flags.BackupState,
		AAGUID:          wc.Authenticator.AAGUID,
		CreatedAt:       time.Now().UTC(),
	}
}

// BeginRegistration mints a registration ceremony for the user. Existing
// credential IDs are excluded so the same authenticator cannot enroll twice.
func (s *PasskeyService) BeginRegistration(ctx context.Context, user domain.User) (string, *protocol.CredentialCreation, error) {
	creds, err := s.Store.PasskeyCredentials().ListPasskeyCredentialsForUser(ctx, user.ID)
	if err != nil {
		return "", nil, err
	}

	exclusions := make([]protocol.CredentialDescriptor, 0, len(creds))
	for _, c := range creds {
		id, _ := base64.RawURLEncoding.DecodeString(c.ID)
		exclusions = append(exclusions, protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: id,
		})
	}

	wu := &webauthnUser{user: user, creds: creds}
	options, session, err := s.WebAuthn.BeginRegistration(wu, webauthn.WithExclusions(exclusions))
	if err != nil {
		return "", nil, err
	}

	challengeID, err := s.saveChallenge(ctx, user.ID, domain.PasskeyFlowRegistration, session)
	if err != nil {
		return "", nil, err
	}
	return challengeID, options, nil
}

// FinishRegistration consumes the challenge and stores the new credential
// only on cryptographic success.
func (s *PasskeyService) FinishRegistration(ctx context.Context, user domain.User, challengeID string, response *protocol.ParsedCredentialCreationData) (domain.PasskeyCredential, error) {
	l := slogx.FromContext(ctx)

	session, _, err := s.consumeChallenge(ctx, challengeID, domain.PasskeyFlowRegistration, user.ID)
	if err != nil {
		return domain.PasskeyCredential{}, err
	}

	creds, err := s.Store.PasskeyCredentials().ListPasskeyCredentialsForUser(ctx, user.ID)
	if err != nil {
		return domain.PasskeyCredential{}, err
	}

	wu := &webauthnUser{user: user, creds: creds}
	cred, err := s.WebAuthn.CreateCredential(wu, session, response)
	if err != nil {
		l.Info("passkey registration verification failed", slog.String("user_id", user.ID), "error", err)
		return domain.PasskeyCredential{}, ErrChallengeInvalid
	}

	stored := credentialFromWebAuthn(user.ID, cred)
	if err := s.Store.PasskeyCredentials().CreatePasskeyCredential(ctx, stored); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.PasskeyCredential{}, ErrChallengeInvalid
		}
		return domain.PasskeyCredential{}, err
	}

	l.Info("passkey registered",
		slog.String("user_id", user.ID), slog.String("credential_id", stored.ID))
	return stored, nil
}

// BeginLogin mints an authentication ceremony. With an email the ceremony is
// scoped to that account's credentials; with an empty email it is a
// discoverable-credential ceremony.
func (s *PasskeyService) BeginLogin(ctx context.Context, email string) (string, *protocol.CredentialAssertion, error) {
	if email == "" {
		options, session, err := s.WebAuthn.BeginDiscoverableLogin()
		if err != nil {
			return "", nil, err
		}
		challengeID, err := s.saveChallenge(ctx, "", domain.PasskeyFlowAuthentication, session)
		if err != nil {
			return "", nil, err
		}
		return challengeID, options, nil
	}

	user, err := s.Store.Users().GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, ErrNotFound
		}
		return "", nil, err
	}

	challengeID, options, err := s.beginUserLogin(ctx, user, protocol.VerificationPreferred)
	if err != nil {
		return "", nil, err
	}
	return challengeID, options, nil
}

// beginUserLogin mints a user-scoped assertion ceremony with the given user
// verification requirement. The wallet flow calls it with "required".
func (s *PasskeyService) beginUserLogin(ctx context.Context, user domain.User, uv protocol.UserVerificationRequirement) (string, *protocol.CredentialAssertion, error) {
	creds, err := s.Store.PasskeyCredentials().ListPasskeyCredentialsForUser(ctx, user.ID)
	if err != nil {
		return "", nil, err
	}
	if len(creds) == 0 {
		return "", nil, ErrNoCredentials
	}

	wu := &webauthnUser{user: user, creds: creds}
	options, session, err := s.WebAuthn.BeginLogin(wu, webauthn.WithUserVerification(uv))
	if err != nil {
		return "", nil, err
	}

	challengeID, err := s.saveChallenge(ctx, user.ID, domain.PasskeyFlowAuthentication, session)
	if err != nil {
		return "", nil, err
	}
	return challengeID, options, nil
}

// FinishLogin consumes the challenge, validates the assertion and returns
// the authenticated user. Handles both user-scoped and discoverable flows.
func (s *PasskeyService) FinishLogin(ctx context.Context, challengeID string, response *protocol.ParsedCredentialAssertionData) (domain.User, error) {
	l := slogx.FromContext(ctx)

	session, userID, err := s.consumeChallenge(ctx, challengeID, domain.PasskeyFlowAuthentication, "")
	if err != nil {
		return domain.User{}, err
	}

	var (
		user      domain.User
		validated *webauthn.Credential
	)

	if userID == "" {
		validated, err = s.WebAuthn.ValidateDiscoverableLogin(s.discoverableUser(ctx, &user), session, response)
	} else {
		user, err = s.Store.Users().GetUserByID(ctx, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.User{}, ErrChallengeInvalid
			}
			return domain.User{}, err
		}

		var creds []domain.PasskeyCredential
		creds, err = s.Store.PasskeyCredentials().ListPasskeyCredentialsForUser(ctx, user.ID)
		if err != nil {
			return domain.User{}, err
		}
		wu := &webauthnUser{user: user, creds: creds}
		validated, err = s.WebAuthn.ValidateLogin(wu, session, response)
	}
	if err != nil {
		l.Info("passkey assertion verification failed", "error", err)
		return domain.User{}, ErrChallengeInvalid
	}

	if err := s.advanceSignCount(ctx, validated, response); err != nil {
		l.Info("passkey counter check failed",
			slog.String("credential_id", base64.RawURLEncoding.EncodeToString(validated.ID)))
		return domain.User{}, err
	}

	l.Info("passkey login completed", slog.String("user_id", user.ID))
	return user, nil
}

// BeginWalletAssertion mints a user-verification-required ceremony used as
// the hardware factor for wallet sends.
func (s *PasskeyService) BeginWalletAssertion(ctx context.Context, user domain.User) (string, *protocol.CredentialAssertion, error) {
	return s.beginUserLogin(ctx, user, protocol.VerificationRequired)
}

// FinishWalletAssertion validates a UV-required assertion for the user's
// credentials and advances the counter.
func (s *PasskeyService) FinishWalletAssertion(ctx context.Context, user domain.User, challengeID string, response *protocol.ParsedCredentialAssertionData) error {
	session, userID, err := s.consumeChallenge(ctx, challengeID, domain.PasskeyFlowAuthentication, user.ID)
	if err != nil {
		return err
	}
	if userID != user.ID {
		return ErrChallengeInvalid
	}

	creds, err := s.Store.PasskeyCredentials().ListPasskeyCredentialsForUser(ctx, user.ID)
	if err != nil {
		return err
	}

	wu := &webauthnUser{user: user, creds: creds}
	validated, err := s.WebAuthn.ValidateLogin(wu, session, response)
	if err != nil {
		slogx.FromContext(ctx).Info("wallet passkey assertion failed",
			slog.String("user_id", user.ID), "error", err)
		return ErrChallengeInvalid
	}

	return s.advanceSignCount(ctx, validated, response)
}

// ListCredentials returns the user's registered passkeys.
func (s *PasskeyService) ListCredentials(ctx context.Context, userID string) ([]domain.PasskeyCredential, error) {
	return s.Store.PasskeyCredentials().ListPasskeyCredentialsForUser(ctx, userID)
}

// DeleteCredential removes a passkey owned by the user.
func (s *PasskeyService) DeleteCredential(ctx context.Context, userID, credentialID string) error {
	cred, err := s.Store.PasskeyCredentials().GetPasskeyCredentialByID(ctx, credentialID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if cred.UserID != userID {
		return ErrForbidden
	}
	return s.Store.PasskeyCredentials().DeletePasskeyCredential(ctx, credentialID)
}

// advanceSignCount enforces the anti-clone policy: a reported counter lower
// than the stored one is rejected; equal or higher passes. The equality case
// keeps always-zero platform authenticators working.
func (s *PasskeyService) advanceSignCount(ctx context.Context, validated *webauthn.Credential, response *protocol.ParsedCredentialAssertionData) error {
	credentialID := base64.RawURLEncoding.EncodeToString(validated.ID)

	stored, err := s.Store.PasskeyCredentials().GetPasskeyCredentialByID(ctx, credentialID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrChallengeInvalid
		}
		return err
	}

	reported := response.Response.AuthenticatorData.Counter
	if reported < stored.SignCount {
		return ErrChallengeInvalid
	}

	return s.Store.PasskeyCredentials().UpdatePasskeySignCount(ctx, credentialID, reported, time.Now().UTC())
}

// saveChallenge serializes the library session state into a one-shot row.
func (s *PasskeyService) saveChallenge(ctx context.Context, userID, flow string, session *webauthn.SessionData) (string, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	challenge := domain.PasskeyChallenge{
		ID:          idx.New().String(),
		UserID:      userID,
		Flow:        flow,
		SessionData: data,
		ExpiresAt:   now.Add(s.ChallengeTTL),
		CreatedAt:   now,
	}
	if err := s.Store.PasskeyChallenges().CreatePasskeyChallenge(ctx, challenge); err != nil {
		return "", err
	}
	return challenge.ID, nil
}

// consumeChallenge atomically deletes the challenge and checks flow, owner
// and expiry. Every mismatch folds into ErrChallengeInvalid.
func (s *PasskeyService) consumeChallenge(ctx context.Context, challengeID, flow, userID string) (webauthn.SessionData, string, error) {
	challenge, err := s.Store.PasskeyChallenges().ConsumePasskeyChallenge(ctx, challengeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return webauthn.SessionData{}, "", ErrChallengeInvalid
		}
		return webauthn.SessionData{}, "", err
	}

	if challenge.Flow != flow {
		return webauthn.SessionData{}, "", ErrChallengeInvalid
	}
	if userID != "" && challenge.UserID != userID {
		return webauthn.SessionData{}, "", ErrChallengeInvalid
	}
	if time.Now().UTC().After(challenge.ExpiresAt) {
		return webauthn.SessionData{}, "", ErrChallengeInvalid
	}

	var session webauthn.SessionData
	if err := json.Unmarshal(challenge.SessionData, &session); err != nil {
		return webauthn.SessionData{}, "", ErrChallengeInvalid
	}
	return session, challenge.UserID, nil
}

// discoverableUser resolves the account during a discoverable login and
// captures it for the caller.
func (s *PasskeyService) discoverableUser(ctx context.Context, out *domain.User) webauthn.DiscoverableUserHandler {
	return func(rawID, userHandle []byte) (webauthn.User, error) {
		user, err := s.Store.Users().GetUserByID(ctx, string(userHandle))
		if err != nil {
			return nil, err
		}

		creds, err := s.Store.PasskeyCredentials().ListPasskeyCredentialsForUser(ctx, user.ID)
		if err != nil {
			return nil, err
		}

		*out = user
		return &webauthnUser{user: user, creds: creds}, nil
	}
}
