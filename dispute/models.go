package dispute

import "time"

// Status represents the lifecycle of a dispute case. Resolved is terminal:
// no further evidence and no re-adjudication.
type Status string

const (
	StatusActive       Status = "active"
	StatusEvidenceOpen Status = "evidence_open"
	StatusResolved     Status = "resolved"
)

// Dispute mirrors the disputes table. SplitRatio is the percentage of the
// escrowed funds awarded to the claimant side, 0-100, set once on
// resolution together with the arbiter who triggered the quorum crossing.
type Dispute struct {
	CaseID       string
	ClaimantID   string
	RespondentID string
	Status       Status
	SplitRatio   *int32
	ArbiterID    *string
	OpenedAt     time.Time
	UpdatedAt    time.Time
	ResolvedAt   *time.Time
	Evidence     []Evidence
}

// Evidence is one immutable submission in support of a party's position.
// Sequence numbers are dense per case and fix the submission order.
type Evidence struct {
	CaseID      string
	Seq         int
	SubmitterID string
	ContentRef  string
	SubmittedAt time.Time
}

// InitiateParams identifies the case and the two disputing parties. The
// claimant is the authenticated caller opening the dispute.
type InitiateParams struct {
	CaseID       string
	ClaimantID   string
	RespondentID string
}
