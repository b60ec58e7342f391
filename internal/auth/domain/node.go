package domain

import "time"

// Node kinds. Agents self-approve when their owner is already a verified
// human; coordinators always wait for an explicit approval.
const (
	NodeKindAgent       = "agent"
	NodeKindCoordinator = "coordinator"
)

// Gates that can block a node from being active.
const (
	NodeBlockedEmailUnverified = "email_unverified"
	NodeBlockedApprovalPending = "approval_pending"
	NodeBlockedDeactivated     = "deactivated"
)

// NodeEnrollment is the trust record for a physical compute device.
type NodeEnrollment struct {
	NodeID        string
	DeviceID      string // optional stable hardware alias
	Kind          string
	OwnerUserID   string
	TokenHash     string
	EmailVerified bool // snapshot of the owner's verification state
	Approved      bool
	ApprovedAt    *time.Time // set the first time approval is granted
	LastSeenIP    string
	LastSeenGeo   string
	LastSeenVPN   bool
	LastSeenAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Active is derived, never stored: both gates must hold.
func (e NodeEnrollment) Active() bool {
	return e.EmailVerified && e.Approved
}

// BlockedReason names the gate currently blocking the node, or "" if active.
func (e NodeEnrollment) BlockedReason() string {
	switch {
	case e.Active():
		return ""
	case !e.EmailVerified:
		return NodeBlockedEmailUnverified
	case e.ApprovedAt != nil:
		return NodeBlockedDeactivated
	default:
		return NodeBlockedApprovalPending
	}
}

// NodeValidation is the verdict returned to a device on connect/heartbeat.
type NodeValidation struct {
	NodeID        string
	Kind          string
	Active        bool
	EmailVerified bool
	Approved      bool
	BlockedReason string
}
