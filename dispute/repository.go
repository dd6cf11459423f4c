package dispute

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"escrowdesk/outbox"
)

var (
	// ErrCaseNotFound signals the case id is unknown.
	ErrCaseNotFound = errors.New("dispute: case not found")
	// ErrDuplicateCase signals a dispute already exists for the case id.
	ErrDuplicateCase = errors.New("dispute: case already exists")
	// ErrCaseClosed signals the case is resolved and accepts no evidence.
	ErrCaseClosed = errors.New("dispute: case closed")
	// ErrAlreadyResolved signals a second finalization attempt. The stored
	// ratio stays whatever the first commit recorded.
	ErrAlreadyResolved = errors.New("dispute: already resolved")
	// ErrInvalidRatio signals a split ratio outside [0,100].
	ErrInvalidRatio = errors.New("dispute: split ratio must be within [0,100]")
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Initiate opens a new dispute in state Active and emits the opened
// notification in the same transaction.
func (r *Repository) Initiate(ctx context.Context, params InitiateParams) (Dispute, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertSQL = `
		INSERT INTO disputes (case_id, claimant_id, respondent_id, status)
		VALUES ($1, $2, $3, 'active')
		RETURNING case_id, claimant_id, respondent_id, status, opened_at, updated_at
	`
	var d Dispute
	err = tx.QueryRow(ctx, insertSQL, params.CaseID, params.ClaimantID, params.RespondentID).
		Scan(&d.CaseID, &d.ClaimantID, &d.RespondentID, &d.Status, &d.OpenedAt, &d.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Dispute{}, ErrDuplicateCase
		}
		return Dispute{}, fmt.Errorf("dispute: initiate: %w", err)
	}

	if err := outbox.Enqueue(ctx, tx, "dispute.opened", map[string]any{
		"case_id":    d.CaseID,
		"disputer":   d.ClaimantID,
		"respondent": d.RespondentID,
	}); err != nil {
		return Dispute{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Dispute{}, fmt.Errorf("dispute: commit initiate: %w", err)
	}
	return d, nil
}

// SubmitEvidence appends one entry under the case row lock, so sequence
// numbers stay dense however many parties submit concurrently. The first
// entry moves the case Active -> EvidenceOpen; afterwards the transition
// is a no-op.
func (r *Repository) SubmitEvidence(ctx context.Context, caseID, submitterID, contentRef string) (Evidence, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Evidence{}, fmt.Errorf("dispute: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status Status
	err = tx.QueryRow(ctx, `SELECT status FROM disputes WHERE case_id = $1 FOR UPDATE`, caseID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Evidence{}, ErrCaseNotFound
		}
		return Evidence{}, fmt.Errorf("dispute: lock case: %w", err)
	}
	if status == StatusResolved {
		return Evidence{}, ErrCaseClosed
	}

	const insertSQL = `
		INSERT INTO dispute_evidence (case_id, seq, submitter_id, content_ref)
		SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3
		FROM dispute_evidence
		WHERE case_id = $1
		RETURNING case_id, seq, submitter_id, content_ref, submitted_at
	`
	var ev Evidence
	if err := tx.QueryRow(ctx, insertSQL, caseID, submitterID, contentRef).
		Scan(&ev.CaseID, &ev.Seq, &ev.SubmitterID, &ev.ContentRef, &ev.SubmittedAt); err != nil {
		return Evidence{}, fmt.Errorf("dispute: insert evidence: %w", err)
	}

	if status == StatusActive {
		if _, err := tx.Exec(ctx, `
			UPDATE disputes
			SET status = 'evidence_open', updated_at = get_tx_timestamp()
			WHERE case_id = $1 AND status = 'active'
		`, caseID); err != nil {
			return Evidence{}, fmt.Errorf("dispute: open evidence: %w", err)
		}
	}

	if err := outbox.Enqueue(ctx, tx, "dispute.evidence_submitted", map[string]any{
		"case_id":     caseID,
		"submitter":   submitterID,
		"content_ref": contentRef,
		"seq":         ev.Seq,
	}); err != nil {
		return Evidence{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Evidence{}, fmt.Errorf("dispute: commit evidence: %w", err)
	}
	return ev, nil
}

// StatusOf reads the case status inside the caller's transaction.
func (r *Repository) StatusOf(ctx context.Context, tx pgx.Tx, caseID string) (Status, error) {
	var status Status
	err := tx.QueryRow(ctx, `SELECT status FROM disputes WHERE case_id = $1`, caseID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrCaseNotFound
		}
		return "", fmt.Errorf("dispute: status of: %w", err)
	}
	return status, nil
}

// Finalize terminally resolves the case inside the caller's transaction,
// recording the split ratio and the arbiter whose signature crossed the
// quorum. The conditional update guarantees at most one resolution: a
// losing racer gets ErrAlreadyResolved and the first committed ratio stays.
func (r *Repository) Finalize(ctx context.Context, tx pgx.Tx, caseID string, splitRatio int32, arbiterID string) (Dispute, error) {
	if splitRatio < 0 || splitRatio > 100 {
		return Dispute{}, ErrInvalidRatio
	}

	const resolveSQL = `
		UPDATE disputes
		SET status = 'resolved',
		    split_ratio = $2,
		    arbiter_id = $3,
		    resolved_at = get_tx_timestamp(),
		    updated_at = get_tx_timestamp()
		WHERE case_id = $1 AND status <> 'resolved'
		RETURNING case_id, claimant_id, respondent_id, status, split_ratio, arbiter_id, opened_at, updated_at, resolved_at
	`
	var d Dispute
	err := tx.QueryRow(ctx, resolveSQL, caseID, splitRatio, arbiterID).
		Scan(&d.CaseID, &d.ClaimantID, &d.RespondentID, &d.Status, &d.SplitRatio, &d.ArbiterID, &d.OpenedAt, &d.UpdatedAt, &d.ResolvedAt)
	if err == nil {
		if err := outbox.Enqueue(ctx, tx, "dispute.resolved", map[string]any{
			"case_id":     d.CaseID,
			"split_ratio": splitRatio,
			"arbiter":     arbiterID,
		}); err != nil {
			return Dispute{}, err
		}
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Dispute{}, fmt.Errorf("dispute: finalize: %w", err)
	}

	var status Status
	if err := tx.QueryRow(ctx, `SELECT status FROM disputes WHERE case_id = $1`, caseID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispute{}, ErrCaseNotFound
		}
		return Dispute{}, fmt.Errorf("dispute: finalize fetch: %w", err)
	}
	if status == StatusResolved {
		return Dispute{}, ErrAlreadyResolved
	}
	return Dispute{}, ErrCaseNotFound
}

// Get loads a dispute with its evidence in submission order.
func (r *Repository) Get(ctx context.Context, caseID string) (Dispute, error) {
	var d Dispute
	err := r.pool.QueryRow(ctx, `
		SELECT case_id, claimant_id, respondent_id, status, split_ratio, arbiter_id, opened_at, updated_at, resolved_at
		FROM disputes
		WHERE case_id = $1
	`, caseID).Scan(&d.CaseID, &d.ClaimantID, &d.RespondentID, &d.Status, &d.SplitRatio, &d.ArbiterID, &d.OpenedAt, &d.UpdatedAt, &d.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispute{}, ErrCaseNotFound
		}
		return Dispute{}, fmt.Errorf("dispute: get: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT case_id, seq, submitter_id, content_ref, submitted_at
		FROM dispute_evidence
		WHERE case_id = $1
		ORDER BY seq ASC
	`, caseID)
	if err != nil {
		return Dispute{}, fmt.Errorf("dispute: list evidence: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ev Evidence
		if err := rows.Scan(&ev.CaseID, &ev.Seq, &ev.SubmitterID, &ev.ContentRef, &ev.SubmittedAt); err != nil {
			return Dispute{}, fmt.Errorf("dispute: scan evidence: %w", err)
		}
		d.Evidence = append(d.Evidence, ev)
	}
	if err := rows.Err(); err != nil {
		return Dispute{}, fmt.Errorf("dispute: iterate evidence: %w", err)
	}
	return d, nil
}
