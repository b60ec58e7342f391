package store

import (
	"context"
	"errors"
	"time"

	"github.com/edgecoder/edgeauth/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable.
//
// Everything one-shot (email tokens, OAuth states, passkey challenges,
// wallet MFA challenges) is consumed through a single lookup-and-delete
// operation so two callers can never both see the same value as valid.
type Store interface {
	Users() Users
	Sessions() Sessions
	EmailVerificationTokens() EmailVerificationTokens
	OAuthStates() OAuthStates
	OAuthIdentities() OAuthIdentities
	PasskeyCredentials() PasskeyCredentials
	PasskeyChallenges() PasskeyChallenges
	NodeEnrollments() NodeEnrollments
	WalletSendMFAChallenges() WalletSendMFAChallenges
	WalletSendRequests() WalletSendRequests

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, committing when fn returns
	// nil and rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail looks up by the normalized (trimmed, lowercased) email.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by the app via ULID).
	// Returns ErrAlreadyExists when the email is taken.
	CreateUser(ctx context.Context, u domain.User) error

	// MarkEmailVerified flips email_verified to true and bumps updated_at.
	MarkEmailVerified(ctx context.Context, userID string) error

	UpdatePasswordHash(ctx context.Context, userID, newHash string) error

	// UpdateWalletAccountID records completed wallet onboarding.
	UpdateWalletAccountID(ctx context.Context, userID, accountID string) error

	DeleteUser(ctx context.Context, userID string) error
}

type Sessions interface {
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSessionByTokenHash returns the session by the token's fingerprint.
	GetSessionByTokenHash(ctx context.Context, hash string) (domain.Session, error)

	// DeleteSessionByTokenHash is idempotent: deleting an absent session is
	// not an error.
	DeleteSessionByTokenHash(ctx context.Context, hash string) error

	DeleteExpiredSessions(ctx context.Context) error
}

type EmailVerificationTokens interface {
	CreateEmailVerificationToken(ctx context.Context, t domain.EmailVerificationToken) error

	// ConsumeEmailVerificationToken atomically deletes the token by hash and
	// returns it. A second consume of the same token returns ErrNotFound.
	// Expiry is the caller's responsibility to check.
	ConsumeEmailVerificationToken(ctx context.Context, hash string) (domain.EmailVerificationToken, error)

	DeleteExpiredEmailVerificationTokens(ctx context.Context) error
}

type OAuthStates interface {
	CreateOAuthState(ctx context.Context, s domain.OAuthState) error

	// ConsumeOAuthState atomically deletes and returns the state row.
	ConsumeOAuthState(ctx context.Context, id string) (domain.OAuthState, error)

	DeleteExpiredOAuthStates(ctx context.Context) error
}

type OAuthIdentities interface {
	GetOAuthIdentity(ctx context.Context, provider, subject string) (domain.OAuthIdentity, error)

	// UpsertOAuthIdentity re-links (provider, subject) to the user and
	// records the latest email snapshot.
	UpsertOAuthIdentity(ctx context.Context, ident domain.OAuthIdentity) error
}

type PasskeyCredentials interface {
	CreatePasskeyCredential(ctx context.Context, c domain.PasskeyCredential) error

	GetPasskeyCredentialByID(ctx context.Context, credentialID string) (domain.PasskeyCredential, error)

	ListPasskeyCredentialsForUser(ctx context.Context, userID string) ([]domain.PasskeyCredential, error)

	// UpdatePasskeySignCount advances the stored counter and stamps last_used_at.
	UpdatePasskeySignCount(ctx context.Context, credentialID string, signCount uint32, usedAt time.Time) error

	DeletePasskeyCredential(ctx context.Context, credentialID string) error
}

type PasskeyChallenges interface {
	CreatePasskeyChallenge(ctx context.Context, c domain.PasskeyChallenge) error

	// ConsumePasskeyChallenge atomically deletes and returns the challenge.
	// Flow type and expiry checks happen in the service layer.
	ConsumePasskeyChallenge(ctx context.Context, id string) (domain.PasskeyChallenge, error)

	DeletePasskeyChallenge(ctx context.Context, id string) error

	DeleteExpiredPasskeyChallenges(ctx context.Context) error
}

type NodeEnrollments interface {
	GetNodeEnrollmentByNodeID(ctx context.Context, nodeID string) (domain.NodeEnrollment, error)

	// GetNodeEnrollmentByDeviceID covers devices that regenerated their
	// nodeID but kept a stable hardware-derived alias.
	GetNodeEnrollmentByDeviceID(ctx context.Context, deviceID string) (domain.NodeEnrollment, error)

	// UpsertNodeEnrollment inserts or fully replaces the enrollment keyed by
	// node_id.
	UpsertNodeEnrollment(ctx context.Context, e domain.NodeEnrollment) error

	SetNodeApproval(ctx context.Context, nodeID string, approved bool, approvedAt *time.Time) error

	// SyncOwnerEmailVerified refreshes the email_verified snapshot on all of
	// the owner's enrollments and self-approves still-pending agents.
	SyncOwnerEmailVerified(ctx context.Context, ownerUserID string, verified bool, at time.Time) error

	RecordNodeSeen(ctx context.Context, nodeID, ip, geo string, vpn bool, at time.Time) error

	ListNodeEnrollmentsForOwner(ctx context.Context, ownerUserID string) ([]domain.NodeEnrollment, error)

	DeleteNodeEnrollment(ctx context.Context, nodeID string) error
}

type WalletSendMFAChallenges interface {
	CreateWalletSendMFAChallenge(ctx context.Context, c domain.WalletSendMFAChallenge) error

	// ConsumeWalletSendMFAChallenge atomically deletes and returns the
	// challenge; a consumed challenge can never be retried.
	ConsumeWalletSendMFAChallenge(ctx context.Context, id string) (domain.WalletSendMFAChallenge, error)

	DeleteWalletSendMFAChallenge(ctx context.Context, id string) error

	DeleteExpiredWalletSendMFAChallenges(ctx context.Context) error
}

type WalletSendRequests interface {
	CreateWalletSendRequest(ctx context.Context, r domain.WalletSendRequest) error

	GetWalletSendRequestByID(ctx context.Context, id string) (domain.WalletSendRequest, error)

	ListWalletSendRequestsForUser(ctx context.Context, userID string) ([]domain.WalletSendRequest, error)
}
