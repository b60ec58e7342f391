package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEmailVerificationConsumeIsOneShot(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	mailer := &recordingMailer{}

	svc := &EmailVerificationService{
		Store:   st,
		Mailer:  mailer,
		BaseURL: "https://auth.example.com",
		TTL:     24 * time.Hour,
	}

	user := createTestUser(t, st, "dave@example.com", false)
	require.NoError(t, svc.Issue(ctx, user))

	token := extractMailToken(t, mailer.last(t).Body)

	require.NoError(t, svc.Consume(ctx, token))

	got, err := st.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, got.EmailVerified)

	// Second redemption fails: the row was consumed.
	require.ErrorIs(t, svc.Consume(ctx, token), ErrTokenInvalid)
}

func TestEmailVerificationRejectsExpiredAndBogus(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	mailer := &recordingMailer{}

	svc := &EmailVerificationService{
		Store:   st,
		Mailer:  mailer,
		BaseURL: "https://auth.example.com",
		TTL:     -time.Minute,
	}

	user := createTestUser(t, st, "erin@example.com", false)
	require.NoError(t, svc.Issue(ctx, user))
	token := extractMailToken(t, mailer.last(t).Body)

	require.ErrorIs(t, svc.Consume(ctx, token), ErrTokenInvalid)

	// Even an expired token is single-use; the replay fails the same way.
	require.ErrorIs(t, svc.Consume(ctx, token), ErrTokenInvalid)

	require.ErrorIs(t, svc.Consume(ctx, ""), ErrTokenInvalid)
	require.ErrorIs(t, svc.Consume(ctx, "never-issued"), ErrTokenInvalid)

	got, err := st.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, got.EmailVerified)
}

func TestResendAvoidsAccountEnumeration(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	mailer := &recordingMailer{}

	svc := &EmailVerificationService{
		Store:   st,
		Mailer:  mailer,
		BaseURL: "https://auth.example.com",
		TTL:     24 * time.Hour,
	}

	createTestUser(t, st, "unverified@example.com", false)
	createTestUser(t, st, "verified@example.com", true)

	// Unknown address: success, no mail.
	require.NoError(t, svc.Resend(ctx, "ghost@example.com"))
	require.Equal(t, 0, mailer.count())

	// Already verified: success, no mail.
	require.NoError(t, svc.Resend(ctx, "verified@example.com"))
	require.Equal(t, 0, mailer.count())

	// Unverified account: a fresh token goes out.
	require.NoError(t, svc.Resend(ctx, "UNVERIFIED@example.com"))
	require.Equal(t, 1, mailer.count())
	require.Equal(t, "unverified@example.com", mailer.last(t).To)
}

func TestEmailVerificationSyncsNodeEnrollments(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	mailer := &recordingMailer{}

	svc := &EmailVerificationService{
		Store:   st,
		Mailer:  mailer,
		BaseURL: "https://auth.example.com",
		TTL:     24 * time.Hour,
	}
	nodes := &NodeService{Store: st}

	owner := createTestUser(t, st, "frank@example.com", false)

	// An agent enrolled before verification is blocked on the email gate.
	enrollment, _, err := nodes.Enroll(ctx, owner, "node-1", "agent", "")
	require.NoError(t, err)
	require.False(t, enrollment.Active())

	require.NoError(t, svc.Issue(ctx, owner))
	require.NoError(t, svc.Consume(ctx, extractMailToken(t, mailer.last(t).Body)))

	// Verification flips the snapshot and self-approves the agent.
	got, err := st.NodeEnrollments().GetNodeEnrollmentByNodeID(ctx, "node-1")
	require.NoError(t, err)
	require.True(t, got.EmailVerified)
	require.True(t, got.Approved)
	require.True(t, got.Active())
}
