// Package adjudication coordinates resolving a dispute: adjudication is a
// high-threshold sensitive action, so arbiters accrue weight through the
// proposal store and the dispute is finalized by whichever signature
// crosses the quorum. The coordinator holds no state of its own.
package adjudication

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"escrowdesk/authz"
	"escrowdesk/dispute"
	"escrowdesk/proposal"
)

// ResultStatus tells the caller whether their signature executed the
// adjudication or left it awaiting co-signers.
type ResultStatus string

const (
	StatusPending  ResultStatus = "pending"
	StatusExecuted ResultStatus = "executed"
)

// AdjudicateParams carries one arbiter's adjudication call. The ratio is
// bound to the call that causes the quorum crossing; earlier signatures
// only contribute weight.
type AdjudicateParams struct {
	CaseID     string
	SplitRatio int32
	ArbiterID  string
	ScopeID    string
}

// Result reports the outcome of one adjudication call.
type Result struct {
	Status            ResultStatus
	ActionID          string
	AccumulatedWeight int64
	Required          int64
	Dispute           *dispute.Dispute
}

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ProposalStore is the quorum primitive the coordinator composes with its
// own effects inside one transaction.
type ProposalStore interface {
	Sign(ctx context.Context, tx pgx.Tx, params proposal.SignParams) (proposal.SignResult, error)
}

// DisputeRegistry is the slice of the registry the coordinator needs.
type DisputeRegistry interface {
	StatusOf(ctx context.Context, tx pgx.Tx, caseID string) (dispute.Status, error)
	Finalize(ctx context.Context, tx pgx.Tx, caseID string, splitRatio int32, arbiterID string) (dispute.Dispute, error)
}

type Service struct {
	pool      TxBeginner
	proposals ProposalStore
	disputes  DisputeRegistry
	payout    PayoutExecutor
}

func NewService(pool TxBeginner, proposals ProposalStore, disputes DisputeRegistry, payout PayoutExecutor) *Service {
	if payout == nil {
		payout = NewOutboxPayout()
	}
	return &Service{
		pool:      pool,
		proposals: proposals,
		disputes:  disputes,
		payout:    payout,
	}
}

// ActionID derives the proposal key for adjudicating a case, one logical
// operation per case.
func ActionID(caseID string) string {
	return "dispute:" + caseID + ":adjudicate"
}

// Adjudicate applies one arbiter's judgment. Below quorum it records the
// signature and reports pending; at the crossing it finalizes the dispute
// and issues the payout instruction, all in one transaction. If finalize
// fails the transaction rolls back and no payout is attempted: there is no
// state where quorum fired but the dispute stayed open.
func (s *Service) Adjudicate(ctx context.Context, params AdjudicateParams) (Result, error) {
	if params.SplitRatio < 0 || params.SplitRatio > 100 {
		return Result{}, dispute.ErrInvalidRatio
	}
	if params.CaseID == "" {
		return Result{}, fmt.Errorf("adjudication: case id required")
	}
	if params.ArbiterID == "" {
		return Result{}, fmt.Errorf("adjudication: arbiter id required")
	}
	if params.ScopeID == "" {
		return Result{}, fmt.Errorf("adjudication: scope id required")
	}

	actionID := ActionID(params.CaseID)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("adjudication: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	status, err := s.disputes.StatusOf(ctx, tx, params.CaseID)
	if err != nil {
		return Result{}, err
	}
	if status == dispute.StatusResolved {
		return Result{}, dispute.ErrAlreadyResolved
	}

	sig, err := s.proposals.Sign(ctx, tx, proposal.SignParams{
		ActionID: actionID,
		ScopeID:  params.ScopeID,
		Class:    authz.ClassHigh,
		SignerID: params.ArbiterID,
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{
		ActionID:          actionID,
		AccumulatedWeight: sig.AccumulatedWeight,
		Required:          sig.Required,
	}

	if !sig.QuorumReached {
		if err := tx.Commit(ctx); err != nil {
			return Result{}, fmt.Errorf("adjudication: commit signature: %w", err)
		}
		res.Status = StatusPending
		return res, nil
	}

	d, err := s.disputes.Finalize(ctx, tx, params.CaseID, params.SplitRatio, params.ArbiterID)
	if err != nil {
		return Result{}, err
	}

	if err := s.payout.Execute(ctx, tx, Instruction{
		CaseID:       d.CaseID,
		SplitRatio:   params.SplitRatio,
		ClaimantID:   d.ClaimantID,
		RespondentID: d.RespondentID,
		ArbiterID:    params.ArbiterID,
	}); err != nil {
		return Result{}, fmt.Errorf("adjudication: issue payout: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("adjudication: commit resolution: %w", err)
	}

	res.Status = StatusExecuted
	res.Dispute = &d
	return res, nil
}
