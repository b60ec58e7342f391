package sqlite

import (
	"context"
	"database/sql"

	"github.com/edgecoder/edgeauth/internal/auth/store"
)

type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // caller commits/rolls back; outer DB stays open

// Ping is a no-op for transactions; the connection is already established.
func (t *txStore) Ping(ctx context.Context) error { return nil }

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported; could emulate with SAVEPOINT if needed
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) ApplyMigrations() error { return nil } // migrations run before any tx starts

func (t *txStore) Users() store.Users       { return &usersRepo{q: t.tx} }
func (t *txStore) Sessions() store.Sessions { return &sessionsRepo{q: t.tx} }
func (t *txStore) EmailVerificationTokens() store.EmailVerificationTokens {
	return &emailTokensRepo{q: t.tx}
}
func (t *txStore) OAuthStates() store.OAuthStates         { return &oauthStatesRepo{q: t.tx} }
func (t *txStore) OAuthIdentities() store.OAuthIdentities { return &oauthIdentitiesRepo{q: t.tx} }
func (t *txStore) PasskeyCredentials() store.PasskeyCredentials {
	return &passkeyCredentialsRepo{q: t.tx}
}
func (t *txStore) PasskeyChallenges() store.PasskeyChallenges {
	return &passkeyChallengesRepo{q: t.tx}
}
func (t *txStore) NodeEnrollments() store.NodeEnrollments { return &nodeEnrollmentsRepo{q: t.tx} }
func (t *txStore) WalletSendMFAChallenges() store.WalletSendMFAChallenges {
	return &walletChallengesRepo{q: t.tx}
}
func (t *txStore) WalletSendRequests() store.WalletSendRequests {
	return &walletRequestsRepo{q: t.tx}
}
