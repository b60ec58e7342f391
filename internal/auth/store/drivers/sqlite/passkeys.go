package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/edgecoder/edgeauth/internal/auth/domain"
)

type passkeyCredentialsRepo struct {
	q querier
}

const passkeyCredentialColumns = `id, user_id, public_key, attestation_type, transports, sign_count, backup_eligible, backup_state, aaguid, created_at, last_used_at`

func scanPasskeyCredential(row interface{ Scan(...any) error }) (domain.PasskeyCredential, error) {
	var (
		c          domain.PasskeyCredential
		transports string
		lastUsed   sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.UserID, &c.PublicKey, &c.AttestationType, &transports,
		&c.SignCount, &c.BackupEligible, &c.BackupState, &c.AAGUID,
		&c.CreatedAt, &lastUsed,
	)
	if err != nil {
		return domain.PasskeyCredential{}, err
	}
	c.Transports = splitFields(transports)
	c.LastUsedAt = mapNullTimePtr(lastUsed)
	return c, nil
}

func (r *passkeyCredentialsRepo) CreatePasskeyCredential(ctx context.Context, c domain.PasskeyCredential) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO passkey_credentials (id, user_id, public_key, attestation_type, transports, sign_count, backup_eligible, backup_state, aaguid, created_at, last_used_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.PublicKey, c.AttestationType,
		strings.Join(c.Transports, " "), c.SignCount,
		c.BackupEligible, c.BackupState, c.AAGUID,
		c.CreatedAt, mapOptionalTime(c.LastUsedAt),
	)
	return mapConflict(err)
}

func (r *passkeyCredentialsRepo) GetPasskeyCredentialByID(ctx context.Context, credentialID string) (domain.PasskeyCredential, error) {
	c, err := scanPasskeyCredential(r.q.QueryRowContext(ctx,
		`SELECT `+passkeyCredentialColumns+` FROM passkey_credentials WHERE id = ?`, credentialID))
	if err != nil {
		return domain.PasskeyCredential{}, mapNotFound(err)
	}
	return c, nil
}

func (r *passkeyCredentialsRepo) ListPasskeyCredentialsForUser(ctx context.Context, userID string) ([]domain.PasskeyCredential, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+passkeyCredentialColumns+` FROM passkey_credentials
		 WHERE user_id = ? ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []domain.PasskeyCredential
	for rows.Next() {
		c, err := scanPasskeyCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

func (r *passkeyCredentialsRepo) UpdatePasskeySignCount(ctx context.Context, credentialID string, signCount uint32, usedAt time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE passkey_credentials SET sign_count = ?, last_used_at = ? WHERE id = ?`,
		signCount, usedAt, credentialID,
	)
	return err
}

func (r *passkeyCredentialsRepo) DeletePasskeyCredential(ctx context.Context, credentialID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM passkey_credentials WHERE id = ?`, credentialID)
	return err
}

type passkeyChallengesRepo struct {
	q querier
}

func (r *passkeyChallengesRepo) CreatePasskeyChallenge(ctx context.Context, c domain.PasskeyChallenge) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO passkey_challenges (id, user_id, flow, session_data, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Flow, c.SessionData, c.ExpiresAt, c.CreatedAt,
	)
	return mapConflict(err)
}

// ConsumePasskeyChallenge deletes and returns the challenge in one statement;
// replaying a signed response against the same challenge id finds nothing.
func (r *passkeyChallengesRepo) ConsumePasskeyChallenge(ctx context.Context, id string) (domain.PasskeyChallenge, error) {
	var c domain.PasskeyChallenge
	err := r.q.QueryRowContext(ctx,
		`DELETE FROM passkey_challenges WHERE id = ?
		 RETURNING id, user_id, flow, session_data, expires_at, created_at`, id,
	).Scan(&c.ID, &c.UserID, &c.Flow, &c.SessionData, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		return domain.PasskeyChallenge{}, mapNotFound(err)
	}
	return c, nil
}

func (r *passkeyChallengesRepo) DeletePasskeyChallenge(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM passkey_challenges WHERE id = ?`, id)
	return err
}

func (r *passkeyChallengesRepo) DeleteExpiredPasskeyChallenges(ctx context.Context) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM passkey_challenges WHERE expires_at <= ?`, time.Now().UTC())
	return err
}
