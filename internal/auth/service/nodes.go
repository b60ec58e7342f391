package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/edgecoder/edgeauth/internal/auth/domain"
	"github.com/edgecoder/edgeauth/internal/auth/store"
	"github.com/edgecoder/edgeauth/internal/geoip"
	"github.com/edgecoder/edgeauth/pkg/cryptox"
	"github.com/edgecoder/edgeauth/pkg/slogx"
)

// NodeService bootstraps and validates device trust. Activation has two
// independent gates (owner email verified, approval) and "active" is always
// computed from them, never stored.
type NodeService struct {
	Store store.Store
	GeoIP geoip.Resolver
}

// Enroll upserts an enrollment keyed by nodeID, minting a fresh registration
// token each time. Agents self-approve when the owner is already a verified
// human; coordinators always wait for an explicit approval. Re-enrolling a
// node owned by someone else is rejected.
func (s *NodeService) Enroll(ctx context.Context, owner domain.User, nodeID, kind, deviceID string) (domain.NodeEnrollment, string, error) {
	l := slogx.FromContext(ctx)

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.NodeEnrollment{}, "", err
	}

	now := time.Now().UTC()
	enrollment := domain.NodeEnrollment{
		NodeID:        nodeID,
		DeviceID:      deviceID,
		Kind:          kind,
		OwnerUserID:   owner.ID,
		TokenHash:     cryptox.FingerprintToken(token),
		EmailVerified: owner.EmailVerified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	existing, err := s.Store.NodeEnrollments().GetNodeEnrollmentByNodeID(ctx, nodeID)
	switch {
	case err == nil:
		if existing.OwnerUserID != owner.ID {
			return domain.NodeEnrollment{}, "", ErrForbidden
		}
		enrollment.Approved = existing.Approved
		enrollment.ApprovedAt = existing.ApprovedAt
		enrollment.CreatedAt = existing.CreatedAt
	case errors.Is(err, store.ErrNotFound):
		// first enrollment
	default:
		return domain.NodeEnrollment{}, "", err
	}

	// Self-approval applies only to agents that have never been approved;
	// a deactivated node stays deactivated across re-enrolls.
	if kind == domain.NodeKindAgent && owner.EmailVerified && enrollment.ApprovedAt == nil {
		enrollment.Approved = true
		enrollment.ApprovedAt = &now
	}

	if err := s.Store.NodeEnrollments().UpsertNodeEnrollment(ctx, enrollment); err != nil {
		return domain.NodeEnrollment{}, "", err
	}

	l.Info("node enrolled",
		slog.String("node_id", nodeID),
		slog.String("kind", kind),
		slog.String("owner_user_id", owner.ID),
		slog.Bool("approved", enrollment.Approved),
	)
	return enrollment, token, nil
}

// Validate is the device-presented connect/heartbeat check. An unknown
// nodeID falls back to the stable deviceID alias. The token is checked in
// constant time; geo enrichment is best effort and never blocks the verdict.
func (s *NodeService) Validate(ctx context.Context, nodeID, kind, token, deviceID, sourceIP string) (domain.NodeValidation, error) {
	l := slogx.FromContext(ctx)

	enrollment, err := s.Store.NodeEnrollments().GetNodeEnrollmentByNodeID(ctx, nodeID)
	if errors.Is(err, store.ErrNotFound) && deviceID != "" {
		enrollment, err = s.Store.NodeEnrollments().GetNodeEnrollmentByDeviceID(ctx, deviceID)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.NodeValidation{}, ErrInvalidCredentials
		}
		return domain.NodeValidation{}, err
	}

	if !cryptox.VerifyFingerprint(token, enrollment.TokenHash) || enrollment.Kind != kind {
		return domain.NodeValidation{}, ErrInvalidCredentials
	}

	if sourceIP != "" {
		now := time.Now().UTC()
		var geo string
		var vpn bool
		if s.GeoIP != nil {
			if enrichment, ok := s.GeoIP.Resolve(ctx, sourceIP); ok {
				geo = enrichment.Geo()
				vpn = enrichment.VPN
			}
		}
		if err := s.Store.NodeEnrollments().RecordNodeSeen(ctx, enrollment.NodeID, sourceIP, geo, vpn, now); err != nil {
			l.Error("failed to record node last-seen", slog.String("node_id", enrollment.NodeID), "error", err)
		}
	}

	return domain.NodeValidation{
		NodeID:        enrollment.NodeID,
		Kind:          enrollment.Kind,
		Active:        enrollment.Active(),
		EmailVerified: enrollment.EmailVerified,
		Approved:      enrollment.Approved,
		BlockedReason: enrollment.BlockedReason(),
	}, nil
}

// SetApproval flips the approval gate. Rejecting a node that was never
// approved deletes the enrollment outright, forcing a fresh enroll; a
// previously approved node is deactivated but keeps its record.
func (s *NodeService) SetApproval(ctx context.Context, nodeID string, approved bool) (domain.NodeEnrollment, bool, error) {
	l := slogx.FromContext(ctx)

	enrollment, err := s.Store.NodeEnrollments().GetNodeEnrollmentByNodeID(ctx, nodeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.NodeEnrollment{}, false, ErrNotFound
		}
		return domain.NodeEnrollment{}, false, err
	}

	if !approved && enrollment.ApprovedAt == nil {
		if err := s.Store.NodeEnrollments().DeleteNodeEnrollment(ctx, nodeID); err != nil {
			return domain.NodeEnrollment{}, false, err
		}
		l.Info("pending node rejected and removed", slog.String("node_id", nodeID))
		return domain.NodeEnrollment{}, true, nil
	}

	now := time.Now().UTC()
	var approvedAt *time.Time
	if approved && enrollment.ApprovedAt == nil {
		approvedAt = &now
	}
	if err := s.Store.NodeEnrollments().SetNodeApproval(ctx, nodeID, approved, approvedAt); err != nil {
		return domain.NodeEnrollment{}, false, err
	}

	enrollment.Approved = approved
	if approvedAt != nil {
		enrollment.ApprovedAt = approvedAt
	}
	enrollment.UpdatedAt = now

	l.Info("node approval updated", slog.String("node_id", nodeID), slog.Bool("approved", approved))
	return enrollment, false, nil
}

// Delete removes an enrollment. Permitted to the owning user or an admin.
func (s *NodeService) Delete(ctx context.Context, actor domain.User, nodeID string) error {
	enrollment, err := s.Store.NodeEnrollments().GetNodeEnrollmentByNodeID(ctx, nodeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	if enrollment.OwnerUserID != actor.ID && !actor.Admin {
		return ErrForbidden
	}
	return s.Store.NodeEnrollments().DeleteNodeEnrollment(ctx, nodeID)
}

// ListForOwner returns the user's enrollments.
func (s *NodeService) ListForOwner(ctx context.Context, ownerUserID string) ([]domain.NodeEnrollment, error) {
	return s.Store.NodeEnrollments().ListNodeEnrollmentsForOwner(ctx, ownerUserID)
}
