package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/descope/virtualwebauthn"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/stretchr/testify/require"

	"github.com/edgecoder/edgeauth/internal/auth/domain"
	"github.com/edgecoder/edgeauth/internal/auth/store/drivers/sqlite"
)

const (
	testRPID     = "example.com"
	testRPOrigin = "https://example.com"
)

var testRP = virtualwebauthn.RelyingParty{
	Name:   "EdgeCoder",
	ID:     testRPID,
	Origin: testRPOrigin,
}

func newPasskeyTestService(t *testing.T) (*PasskeyService, *sqlite.Store) {
	t.Helper()
	st := newTestStore(t)

	wa, err := webauthn.New(&webauthn.Config{
		RPID:          testRPID,
		RPDisplayName: "EdgeCoder",
		RPOrigins:     []string{testRPOrigin},
	})
	require.NoError(t, err)

	return &PasskeyService{Store: st, WebAuthn: wa, ChallengeTTL: 5 * time.Minute}, st
}

// attestationFor drives the virtual authenticator through a registration
// ceremony and parses the response the way the HTTP layer would.
func attestationFor(t *testing.T, options *protocol.CredentialCreation, auth virtualwebauthn.Authenticator, cred virtualwebauthn.Credential) *protocol.ParsedCredentialCreationData {
	t.Helper()

	optionsJSON, err := json.Marshal(options.Response)
	require.NoError(t, err)

	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)

	attestation := virtualwebauthn.CreateAttestationResponse(testRP, auth, cred, *parsedOptions)

	var ccr protocol.CredentialCreationResponse
	require.NoError(t, json.Unmarshal([]byte(attestation), &ccr))

	parsed, err := ccr.Parse()
	require.NoError(t, err)
	return parsed
}

func assertionFor(t *testing.T, options *protocol.CredentialAssertion, auth virtualwebauthn.Authenticator, cred virtualwebauthn.Credential) *protocol.ParsedCredentialAssertionData {
	t.Helper()

	optionsJSON, err := json.Marshal(options.Response)
	require.NoError(t, err)

	parsedOptions, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	require.NoError(t, err)

	assertion := virtualwebauthn.CreateAssertionResponse(testRP, auth, cred, *parsedOptions)

	var car protocol.CredentialAssertionResponse
	require.NoError(t, json.Unmarshal([]byte(assertion), &car))

	parsed, err := car.Parse()
	require.NoError(t, err)
	return parsed
}

// registerTestPasskey runs a full registration ceremony for the user and
// returns the enrolled virtual authenticator.
func registerTestPasskey(t *testing.T, svc *PasskeyService, user domain.User) (virtualwebauthn.Authenticator, virtualwebauthn.Credential) {
	t.Helper()
	ctx := context.Background()

	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	challengeID, options, err := svc.BeginRegistration(ctx, user)
	require.NoError(t, err)
	require.NotEmpty(t, challengeID)

	parsed := attestationFor(t, options, auth, cred)

	stored, err := svc.FinishRegistration(ctx, user, challengeID, parsed)
	require.NoError(t, err)
	require.Equal(t, user.ID, stored.UserID)

	auth.AddCredential(cred)
	return auth, cred
}

func TestPasskeyRegistrationAndLogin(t *testing.T) {
	ctx := context.Background()
	svc, st := newPasskeyTestService(t)
	user := createTestUser(t, st, "kim@example.com", true)

	auth, cred := registerTestPasskey(t, svc, user)

	creds, err := svc.ListCredentials(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, creds, 1)

	challengeID, options, err := svc.BeginLogin(ctx, "kim@example.com")
	require.NoError(t, err)

	cred.Counter++
	parsed := assertionFor(t, options, auth, cred)

	got, err := svc.FinishLogin(ctx, challengeID, parsed)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	// The challenge was consumed; replaying the assertion fails.
	_, err = svc.FinishLogin(ctx, challengeID, parsed)
	require.ErrorIs(t, err, ErrChallengeInvalid)
}

func TestPasskeyRegistrationChallengeIsOneShot(t *testing.T) {
	ctx := context.Background()
	svc, st := newPasskeyTestService(t)
	user := createTestUser(t, st, "liam@example.com", true)

	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	challengeID, options, err := svc.BeginRegistration(ctx, user)
	require.NoError(t, err)

	parsed := attestationFor(t, options, auth, cred)

	_, err = svc.FinishRegistration(ctx, user, challengeID, parsed)
	require.NoError(t, err)

	_, err = svc.FinishRegistration(ctx, user, challengeID, parsed)
	require.ErrorIs(t, err, ErrChallengeInvalid)
}

func TestPasskeyDiscoverableLogin(t *testing.T) {
	ctx := context.Background()
	svc, st := newPasskeyTestService(t)
	user := createTestUser(t, st, "mia@example.com", true)

	_, cred := registerTestPasskey(t, svc, user)

	// A discoverable assertion carries the user handle so the server can
	// find the account without an email hint.
	discoverableAuth := virtualwebauthn.NewAuthenticatorWithOptions(virtualwebauthn.AuthenticatorOptions{
		UserHandle: []byte(user.ID),
	})
	discoverableAuth.AddCredential(cred)

	challengeID, options, err := svc.BeginLogin(ctx, "")
	require.NoError(t, err)
	require.Empty(t, options.Response.AllowedCredentials)

	cred.Counter++
	parsed := assertionFor(t, options, discoverableAuth, cred)

	got, err := svc.FinishLogin(ctx, challengeID, parsed)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
}

func TestPasskeySignCountPolicy(t *testing.T) {
	ctx := context.Background()
	svc, st := newPasskeyTestService(t)
	user := createTestUser(t, st, "noah@example.com", true)

	auth, cred := registerTestPasskey(t, svc, user)

	login := func(counter uint32) error {
		challengeID, options, err := svc.BeginLogin(ctx, "noah@example.com")
		require.NoError(t, err)
		cred.Counter = counter
		_, err = svc.FinishLogin(ctx, challengeID, assertionFor(t, options, auth, cred))
		return err
	}

	// Advance the counter normally.
	require.NoError(t, login(5))

	// Equal counters pass: platform authenticators often report zero forever.
	require.NoError(t, login(5))

	// A counter that moved backwards suggests a cloned key.
	require.ErrorIs(t, login(3), ErrChallengeInvalid)
}

func TestPasskeyLoginOptionValidation(t *testing.T) {
	ctx := context.Background()
	svc, st := newPasskeyTestService(t)
	createTestUser(t, st, "no-keys@example.com", true)

	_, _, err := svc.BeginLogin(ctx, "no-keys@example.com")
	require.ErrorIs(t, err, ErrNoCredentials)

	_, _, err = svc.BeginLogin(ctx, "ghost@example.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPasskeyWalletAssertion(t *testing.T) {
	ctx := context.Background()
	svc, st := newPasskeyTestService(t)
	user := createTestUser(t, st, "olivia@example.com", true)
	other := createTestUser(t, st, "peter@example.com", true)

	auth, cred := registerTestPasskey(t, svc, user)

	challengeID, options, err := svc.BeginWalletAssertion(ctx, user)
	require.NoError(t, err)
	require.Equal(t, protocol.VerificationRequired, options.Response.UserVerification)

	cred.Counter++
	parsed := assertionFor(t, options, auth, cred)

	// The challenge is bound to its user; someone else cannot consume it.
	require.ErrorIs(t, svc.FinishWalletAssertion(ctx, other, challengeID, parsed), ErrChallengeInvalid)

	// That attempt burned the challenge, so a fresh ceremony is needed.
	challengeID, options, err = svc.BeginWalletAssertion(ctx, user)
	require.NoError(t, err)

	cred.Counter++
	parsed = assertionFor(t, options, auth, cred)
	require.NoError(t, svc.FinishWalletAssertion(ctx, user, challengeID, parsed))
}

func TestPasskeyDeleteCredentialOwnership(t *testing.T) {
	ctx := context.Background()
	svc, st := newPasskeyTestService(t)
	owner := createTestUser(t, st, "quinn@example.com", true)
	other := createTestUser(t, st, "rosa@example.com", true)

	registerTestPasskey(t, svc, owner)

	creds, err := svc.ListCredentials(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, creds, 1)

	require.ErrorIs(t, svc.DeleteCredential(ctx, other.ID, creds[0].ID), ErrForbidden)
	require.NoError(t, svc.DeleteCredential(ctx, owner.ID, creds[0].ID))
	require.ErrorIs(t, svc.DeleteCredential(ctx, owner.ID, creds[0].ID), ErrNotFound)
}
