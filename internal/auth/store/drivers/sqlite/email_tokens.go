package sqlite

import (
	"context"
	"time"

	"github.com/edgecoder/edgeauth/internal/auth/domain"
)

type emailTokensRepo struct {
	q querier
}

func (r *emailTokensRepo) CreateEmailVerificationToken(ctx context.Context, t domain.EmailVerificationToken) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO email_verification_tokens (id, user_id, token_hash, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.CreatedAt,
	)
	return mapConflict(err)
}

// ConsumeEmailVerificationToken deletes and returns the token in one
// statement so concurrent consumers can never both succeed.
func (r *emailTokensRepo) ConsumeEmailVerificationToken(ctx context.Context, hash string) (domain.EmailVerificationToken, error) {
	var t domain.EmailVerificationToken
	err := r.q.QueryRowContext(ctx,
		`DELETE FROM email_verification_tokens WHERE token_hash = ?
		 RETURNING id, user_id, token_hash, expires_at, created_at`, hash,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		return domain.EmailVerificationToken{}, mapNotFound(err)
	}
	return t, nil
}

func (r *emailTokensRepo) DeleteExpiredEmailVerificationTokens(ctx context.Context) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM email_verification_tokens WHERE expires_at <= ?`, time.Now().UTC())
	return err
}
