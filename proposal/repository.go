package proposal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"escrowdesk/authz"
	"escrowdesk/outbox"
)

var (
	// ErrProposalNotFound signals the action id is unknown.
	ErrProposalNotFound = errors.New("proposal: not found")
	// ErrAlreadyExecuted signals the quorum already fired for this action.
	ErrAlreadyExecuted = errors.New("proposal: action already executed")
	// ErrProposalExpired signals the signing window elapsed.
	ErrProposalExpired = errors.New("proposal: expired")
)

// LedgerReader is the slice of the authorization ledger the store needs:
// weight and threshold lookups that run inside the signing transaction.
type LedgerReader interface {
	WeightOf(ctx context.Context, q authz.Querier, scopeID, signerID string) (int64, error)
	ThresholdFor(ctx context.Context, q authz.Querier, scopeID string, class authz.Class) (int64, error)
}

// Repository handles proposal and signature rows.
type Repository struct {
	ledger LedgerReader
}

func NewRepository(ledger LedgerReader) *Repository {
	return &Repository{ledger: ledger}
}

// Sign records one signer's authorization of an action inside the caller's
// transaction. The proposal row is locked for the whole call, so the weight
// recomputation and the Pending -> Executed compare-and-set commit together:
// however many signers race, exactly one call observes the crossing.
func (r *Repository) Sign(ctx context.Context, tx pgx.Tx, params SignParams) (SignResult, error) {
	if params.ActionID == "" {
		return SignResult{}, fmt.Errorf("proposal: action id required")
	}
	if params.SignerID == "" {
		return SignResult{}, fmt.Errorf("proposal: signer id required")
	}

	required, err := r.ledger.ThresholdFor(ctx, tx, params.ScopeID, params.Class)
	if err != nil {
		return SignResult{}, err
	}
	weight, err := r.ledger.WeightOf(ctx, tx, params.ScopeID, params.SignerID)
	if err != nil {
		return SignResult{}, err
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO proposals (action_id, scope_id, threshold_class, status, expires_at)
		VALUES ($1, $2, $3, 'pending', $4)
		ON CONFLICT (action_id) DO NOTHING
	`, params.ActionID, params.ScopeID, string(params.Class), params.ExpiresAt)
	if err != nil {
		return SignResult{}, fmt.Errorf("proposal: create: %w", err)
	}
	created := tag.RowsAffected() == 1

	var (
		status      Status
		accumulated int64
		lapsed      bool
	)
	if err := tx.QueryRow(ctx, `
		SELECT status, accumulated_weight,
		       expires_at IS NOT NULL AND expires_at <= now()
		FROM proposals
		WHERE action_id = $1
		FOR UPDATE
	`, params.ActionID).Scan(&status, &accumulated, &lapsed); err != nil {
		return SignResult{}, fmt.Errorf("proposal: lock: %w", err)
	}

	switch status {
	case StatusExecuted:
		return SignResult{}, ErrAlreadyExecuted
	case StatusExpired:
		return SignResult{}, ErrProposalExpired
	}
	if lapsed {
		if _, err := tx.Exec(ctx, `
			UPDATE proposals
			SET status = 'expired', updated_at = get_tx_timestamp()
			WHERE action_id = $1
		`, params.ActionID); err != nil {
			return SignResult{}, fmt.Errorf("proposal: mark expired: %w", err)
		}
		return SignResult{}, ErrProposalExpired
	}

	if created {
		if err := outbox.Enqueue(ctx, tx, "action.proposed", map[string]any{
			"action_id": params.ActionID,
			"scope_id":  params.ScopeID,
			"class":     string(params.Class),
			"proposer":  params.SignerID,
		}); err != nil {
			return SignResult{}, err
		}
	}

	sigTag, err := tx.Exec(ctx, `
		INSERT INTO proposal_signatures (action_id, signer_id, weight)
		VALUES ($1, $2, $3)
		ON CONFLICT (action_id, signer_id) DO NOTHING
	`, params.ActionID, params.SignerID, weight)
	if err != nil {
		return SignResult{}, fmt.Errorf("proposal: record signature: %w", err)
	}
	if sigTag.RowsAffected() == 0 {
		// Repeat signature from the same signer: weight must not be
		// double-counted, so the call is a no-op.
		return SignResult{AccumulatedWeight: accumulated, Required: required}, nil
	}

	var total int64
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(weight), 0)
		FROM proposal_signatures
		WHERE action_id = $1
	`, params.ActionID).Scan(&total); err != nil {
		return SignResult{}, fmt.Errorf("proposal: recompute weight: %w", err)
	}

	crossed := total >= required
	if _, err := tx.Exec(ctx, `
		UPDATE proposals
		SET accumulated_weight = $2,
		    status = CASE WHEN $3 THEN 'executed' ELSE status END,
		    executed_at = CASE WHEN $3 THEN get_tx_timestamp() ELSE executed_at END,
		    updated_at = get_tx_timestamp()
		WHERE action_id = $1 AND status = 'pending'
	`, params.ActionID, total, crossed); err != nil {
		return SignResult{}, fmt.Errorf("proposal: update weight: %w", err)
	}

	if crossed {
		if err := outbox.Enqueue(ctx, tx, "action.executed", map[string]any{
			"action_id":          params.ActionID,
			"scope_id":           params.ScopeID,
			"accumulated_weight": total,
			"required":           required,
			"crossing_signer":    params.SignerID,
		}); err != nil {
			return SignResult{}, err
		}
	}

	return SignResult{AccumulatedWeight: total, Required: required, QuorumReached: crossed}, nil
}

// Get loads a proposal by action id.
func (r *Repository) Get(ctx context.Context, pool *pgxpool.Pool, actionID string) (Proposal, error) {
	var p Proposal
	var class string
	err := pool.QueryRow(ctx, `
		SELECT action_id, scope_id, threshold_class, status, accumulated_weight,
		       expires_at, created_at, updated_at, executed_at
		FROM proposals
		WHERE action_id = $1
	`, actionID).Scan(&p.ActionID, &p.ScopeID, &class, &p.Status, &p.AccumulatedWeight,
		&p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt, &p.ExecutedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Proposal{}, ErrProposalNotFound
		}
		return Proposal{}, fmt.Errorf("proposal: get: %w", err)
	}
	p.Class = authz.Class(class)
	return p, nil
}

// ExpireStale flips every Pending proposal whose deadline elapsed to
// Expired and reports how many were swept.
func (r *Repository) ExpireStale(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	tag, err := pool.Exec(ctx, `
		UPDATE proposals
		SET status = 'expired', updated_at = now()
		WHERE status = 'pending' AND expires_at IS NOT NULL AND expires_at <= now()
	`)
	if err != nil {
		return 0, fmt.Errorf("proposal: expire stale: %w", err)
	}
	return tag.RowsAffected(), nil
}
