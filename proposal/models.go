package proposal

import (
	"time"

	"escrowdesk/authz"
)

// Status is the lifecycle of a sensitive-action proposal. Executed and
// Expired are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusExecuted Status = "executed"
	StatusExpired  Status = "expired"
)

// Proposal mirrors the proposals table. Accumulated weight is derived from
// the signature rows and never trusted stale: every signing call recomputes
// it before deciding on the Pending -> Executed transition.
type Proposal struct {
	ActionID          string
	ScopeID           string
	Class             authz.Class
	Status            Status
	AccumulatedWeight int64
	ExpiresAt         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ExecutedAt        *time.Time
}

// Signature records one signer's contribution. The weight is snapshotted
// from the authorization ledger at signing time.
type Signature struct {
	ActionID string
	SignerID string
	Weight   int64
	SignedAt time.Time
}

// SignParams identifies the action being signed and who signs it.
// ExpiresAt, when set, is applied only if this call creates the proposal.
type SignParams struct {
	ActionID  string
	ScopeID   string
	Class     authz.Class
	SignerID  string
	ExpiresAt *time.Time
}

// SignResult reports the weight state after a signing call. QuorumReached
// is true for exactly one call over the proposal's lifetime: the one whose
// recomputed weight first meets the threshold.
type SignResult struct {
	AccumulatedWeight int64
	Required          int64
	QuorumReached     bool
}
