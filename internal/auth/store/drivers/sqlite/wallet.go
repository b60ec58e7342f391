package sqlite

import (
	"context"
	"time"

	"github.com/edgecoder/edgeauth/internal/auth/domain"
)

type walletChallengesRepo struct {
	q querier
}

func (r *walletChallengesRepo) CreateWalletSendMFAChallenge(ctx context.Context, c domain.WalletSendMFAChallenge) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO wallet_send_mfa_challenges (id, user_id, account_id, destination, amount, note, code_hash, passkey_challenge_id, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.AccountID, c.Destination, c.Amount, c.Note,
		c.CodeHash, c.PasskeyChallengeID, c.ExpiresAt, c.CreatedAt,
	)
	return mapConflict(err)
}

// ConsumeWalletSendMFAChallenge deletes and returns the challenge in one
// statement, before any factor is checked. A failed confirm burns the
// challenge for good.
func (r *walletChallengesRepo) ConsumeWalletSendMFAChallenge(ctx context.Context, id string) (domain.WalletSendMFAChallenge, error) {
	var c domain.WalletSendMFAChallenge
	err := r.q.QueryRowContext(ctx,
		`DELETE FROM wallet_send_mfa_challenges WHERE id = ?
		 RETURNING id, user_id, account_id, destination, amount, note, code_hash, passkey_challenge_id, expires_at, created_at`, id,
	).Scan(&c.ID, &c.UserID, &c.AccountID, &c.Destination, &c.Amount, &c.Note,
		&c.CodeHash, &c.PasskeyChallengeID, &c.ExpiresAt, &c.CreatedAt)
	if err != nil {
		return domain.WalletSendMFAChallenge{}, mapNotFound(err)
	}
	return c, nil
}

func (r *walletChallengesRepo) DeleteWalletSendMFAChallenge(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM wallet_send_mfa_challenges WHERE id = ?`, id)
	return err
}

func (r *walletChallengesRepo) DeleteExpiredWalletSendMFAChallenges(ctx context.Context) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM wallet_send_mfa_challenges WHERE expires_at <= ?`, time.Now().UTC())
	return err
}

type walletRequestsRepo struct {
	q querier
}

const walletRequestColumns = `id, user_id, account_id, destination, amount, note, status, mfa_challenge_id, created_at, updated_at`

func scanWalletSendRequest(row interface{ Scan(...any) error }) (domain.WalletSendRequest, error) {
	var req domain.WalletSendRequest
	err := row.Scan(
		&req.ID, &req.UserID, &req.AccountID, &req.Destination, &req.Amount,
		&req.Note, &req.Status, &req.MFAChallengeID, &req.CreatedAt, &req.UpdatedAt,
	)
	return req, err
}

func (r *walletRequestsRepo) CreateWalletSendRequest(ctx context.Context, req domain.WalletSendRequest) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO wallet_send_requests (id, user_id, account_id, destination, amount, note, status, mfa_challenge_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.UserID, req.AccountID, req.Destination, req.Amount, req.Note,
		req.Status, req.MFAChallengeID, req.CreatedAt, req.UpdatedAt,
	)
	return mapConflict(err)
}

func (r *walletRequestsRepo) GetWalletSendRequestByID(ctx context.Context, id string) (domain.WalletSendRequest, error) {
	req, err := scanWalletSendRequest(r.q.QueryRowContext(ctx,
		`SELECT `+walletRequestColumns+` FROM wallet_send_requests WHERE id = ?`, id))
	if err != nil {
		return domain.WalletSendRequest{}, mapNotFound(err)
	}
	return req, nil
}

func (r *walletRequestsRepo) ListWalletSendRequestsForUser(ctx context.Context, userID string) ([]domain.WalletSendRequest, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+walletRequestColumns+` FROM wallet_send_requests
		 WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []domain.WalletSendRequest
	for rows.Next() {
		req, err := scanWalletSendRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}
