package adjudication

import (
	"context"

	"github.com/jackc/pgx/v5"

	"escrowdesk/outbox"
)

// Instruction tells the payout mechanism how to split the escrowed funds
// once a dispute is resolved. The ratio is the claimant's percentage.
type Instruction struct {
	CaseID       string
	SplitRatio   int32
	ClaimantID   string
	RespondentID string
	ArbiterID    string
}

// PayoutExecutor issues the fund movement for a resolved dispute. The
// coordinator's responsibility ends once the instruction is issued; retry
// and failure handling live behind this interface.
type PayoutExecutor interface {
	Execute(ctx context.Context, tx pgx.Tx, inst Instruction) error
}

// OutboxPayout issues payout instructions through the transactional
// outbox, so the instruction commits together with the resolution that
// authorized it.
type OutboxPayout struct{}

func NewOutboxPayout() OutboxPayout {
	return OutboxPayout{}
}

func (OutboxPayout) Execute(ctx context.Context, tx pgx.Tx, inst Instruction) error {
	return outbox.Enqueue(ctx, tx, "payout.execute", map[string]any{
		"case_id":     inst.CaseID,
		"split_ratio": inst.SplitRatio,
		"claimant":    inst.ClaimantID,
		"respondent":  inst.RespondentID,
		"arbiter":     inst.ArbiterID,
	})
}
