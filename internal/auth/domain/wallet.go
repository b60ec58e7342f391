package domain

import "time"

// WalletSendRequest statuses. The request is immutable once created except
// for status transitions performed by an out-of-band reviewer.
const (
	WalletSendStatusPendingReview = "pending_manual_review"
	WalletSendStatusSent          = "sent"
	WalletSendStatusRejected      = "rejected"
)

// WalletSendMFAChallenge binds the two proof requirements (email code +
// user-verified passkey assertion) to one requested transfer. CodeHash is
// sha256 of "<id>:<code>" so a code cannot be replayed across challenges.
type WalletSendMFAChallenge struct {
	ID                 string
	UserID             string
	AccountID          string
	Destination        string
	Amount             int64 // credits
	Note               string
	CodeHash           string
	PasskeyChallengeID string
	ExpiresAt          time.Time
	CreatedAt          time.Time
}

// WalletSendRequest is created only after both factors pass. It stops short
// of executing the transfer; a human reviewer is the final gate.
type WalletSendRequest struct {
	ID             string
	UserID         string
	AccountID      string
	Destination    string
	Amount         int64
	Note           string
	Status         string
	MFAChallengeID string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
