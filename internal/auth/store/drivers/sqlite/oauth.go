package sqlite

import (
	"context"
	"time"

	"github.com/edgecoder/edgeauth/internal/auth/domain"
)

type oauthStatesRepo struct {
	q querier
}

func (r *oauthStatesRepo) CreateOAuthState(ctx context.Context, s domain.OAuthState) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO oauth_states (id, provider, redirect_uri, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.Provider, s.RedirectURI, s.ExpiresAt, s.CreatedAt,
	)
	return mapConflict(err)
}

// ConsumeOAuthState deletes and returns the state row in one statement; a
// replayed callback with the same state finds nothing.
func (r *oauthStatesRepo) ConsumeOAuthState(ctx context.Context, id string) (domain.OAuthState, error) {
	var s domain.OAuthState
	err := r.q.QueryRowContext(ctx,
		`DELETE FROM oauth_states WHERE id = ?
		 RETURNING id, provider, redirect_uri, expires_at, created_at`, id,
	).Scan(&s.ID, &s.Provider, &s.RedirectURI, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		return domain.OAuthState{}, mapNotFound(err)
	}
	return s, nil
}

func (r *oauthStatesRepo) DeleteExpiredOAuthStates(ctx context.Context) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM oauth_states WHERE expires_at <= ?`, time.Now().UTC())
	return err
}

type oauthIdentitiesRepo struct {
	q querier
}

func (r *oauthIdentitiesRepo) GetOAuthIdentity(ctx context.Context, provider, subject string) (domain.OAuthIdentity, error) {
	var ident domain.OAuthIdentity
	err := r.q.QueryRowContext(ctx,
		`SELECT provider, subject, user_id, email, created_at, updated_at
		 FROM oauth_identities WHERE provider = ? AND subject = ?`, provider, subject,
	).Scan(&ident.Provider, &ident.Subject, &ident.UserID, &ident.Email,
		&ident.CreatedAt, &ident.UpdatedAt)
	if err != nil {
		return domain.OAuthIdentity{}, mapNotFound(err)
	}
	return ident, nil
}

func (r *oauthIdentitiesRepo) UpsertOAuthIdentity(ctx context.Context, ident domain.OAuthIdentity) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO oauth_identities (provider, subject, user_id, email, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider, subject) DO UPDATE SET
		   user_id = excluded.user_id,
		   email = excluded.email,
		   updated_at = excluded.updated_at`,
		ident.Provider, ident.Subject, ident.UserID, ident.Email,
		ident.CreatedAt, ident.UpdatedAt,
	)
	return err
}
