package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/edgecoder/edgeauth/internal/auth/domain"
)

type nodeEnrollmentsRepo struct {
	q querier
}

const nodeEnrollmentColumns = `node_id, device_id, kind, owner_user_id, token_hash, email_verified, approved, approved_at, last_seen_ip, last_seen_geo, last_seen_vpn, last_seen_at, created_at, updated_at`

func scanNodeEnrollment(row interface{ Scan(...any) error }) (domain.NodeEnrollment, error) {
	var (
		e          domain.NodeEnrollment
		approvedAt sql.NullTime
		lastSeenAt sql.NullTime
	)
	err := row.Scan(
		&e.NodeID, &e.DeviceID, &e.Kind, &e.OwnerUserID, &e.TokenHash,
		&e.EmailVerified, &e.Approved, &approvedAt,
		&e.LastSeenIP, &e.LastSeenGeo, &e.LastSeenVPN, &lastSeenAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return domain.NodeEnrollment{}, err
	}
	e.ApprovedAt = mapNullTimePtr(approvedAt)
	e.LastSeenAt = mapNullTimePtr(lastSeenAt)
	return e, nil
}

func (r *nodeEnrollmentsRepo) GetNodeEnrollmentByNodeID(ctx context.Context, nodeID string) (domain.NodeEnrollment, error) {
	e, err := scanNodeEnrollment(r.q.QueryRowContext(ctx,
		`SELECT `+nodeEnrollmentColumns+` FROM node_enrollments WHERE node_id = ?`, nodeID))
	if err != nil {
		return domain.NodeEnrollment{}, mapNotFound(err)
	}
	return e, nil
}

func (r *nodeEnrollmentsRepo) GetNodeEnrollmentByDeviceID(ctx context.Context, deviceID string) (domain.NodeEnrollment, error) {
	e, err := scanNodeEnrollment(r.q.QueryRowContext(ctx,
		`SELECT `+nodeEnrollmentColumns+` FROM node_enrollments
		 WHERE device_id = ? AND device_id != '' ORDER BY updated_at DESC LIMIT 1`, deviceID))
	if err != nil {
		return domain.NodeEnrollment{}, mapNotFound(err)
	}
	return e, nil
}

func (r *nodeEnrollmentsRepo) UpsertNodeEnrollment(ctx context.Context, e domain.NodeEnrollment) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO node_enrollments (node_id, device_id, kind, owner_user_id, token_hash, email_verified, approved, approved_at, last_seen_ip, last_seen_geo, last_seen_vpn, last_seen_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (node_id) DO UPDATE SET
		   device_id = excluded.device_id,
		   kind = excluded.kind,
		   owner_user_id = excluded.owner_user_id,
		   token_hash = excluded.token_hash,
		   email_verified = excluded.email_verified,
		   approved = excluded.approved,
		   approved_at = excluded.approved_at,
		   updated_at = excluded.updated_at`,
		e.NodeID, e.DeviceID, e.Kind, e.OwnerUserID, e.TokenHash,
		e.EmailVerified, e.Approved, mapOptionalTime(e.ApprovedAt),
		e.LastSeenIP, e.LastSeenGeo, e.LastSeenVPN, mapOptionalTime(e.LastSeenAt),
		e.CreatedAt, e.UpdatedAt,
	)
	return err
}

func (r *nodeEnrollmentsRepo) SetNodeApproval(ctx context.Context, nodeID string, approved bool, approvedAt *time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE node_enrollments SET approved = ?, approved_at = COALESCE(?, approved_at), updated_at = ?
		 WHERE node_id = ?`,
		approved, mapOptionalTime(approvedAt), time.Now().UTC(), nodeID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}

// SyncOwnerEmailVerified refreshes the verification snapshot on all of the
// owner's enrollments. Agents still pending approval self-approve once the
// owner becomes a verified human; coordinators stay pending.
func (r *nodeEnrollmentsRepo) SyncOwnerEmailVerified(ctx context.Context, ownerUserID string, verified bool, at time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE node_enrollments SET
		   email_verified = ?,
		   approved = CASE WHEN ? AND kind = 'agent' AND approved_at IS NULL THEN 1 ELSE approved END,
		   approved_at = CASE WHEN ? AND kind = 'agent' AND approved_at IS NULL THEN ? ELSE approved_at END,
		   updated_at = ?
		 WHERE owner_user_id = ?`,
		verified, verified, verified, at, at, ownerUserID,
	)
	return err
}

func (r *nodeEnrollmentsRepo) RecordNodeSeen(ctx context.Context, nodeID, ip, geo string, vpn bool, at time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE node_enrollments SET last_seen_ip = ?, last_seen_geo = ?, last_seen_vpn = ?, last_seen_at = ?
		 WHERE node_id = ?`,
		ip, geo, vpn, at, nodeID,
	)
	return err
}

func (r *nodeEnrollmentsRepo) ListNodeEnrollmentsForOwner(ctx context.Context, ownerUserID string) ([]domain.NodeEnrollment, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+nodeEnrollmentColumns+` FROM node_enrollments
		 WHERE owner_user_id = ? ORDER BY created_at ASC`, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var enrollments []domain.NodeEnrollment
	for rows.Next() {
		e, err := scanNodeEnrollment(rows)
		if err != nil {
			return nil, err
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, rows.Err()
}

func (r *nodeEnrollmentsRepo) DeleteNodeEnrollment(ctx context.Context, nodeID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM node_enrollments WHERE node_id = ?`, nodeID)
	return err
}
