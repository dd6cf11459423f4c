package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrScopeNotFound signals the authorization scope does not exist.
	ErrScopeNotFound = errors.New("authz: scope not found")
	// ErrNotOwner signals a reconfiguration attempt by a non-owner.
	ErrNotOwner = errors.New("authz: caller does not own scope")
)

// Querier is the subset of pgxpool.Pool and pgx.Tx the read paths need,
// so lookups compose into a caller-owned transaction.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository handles data access for authorization scopes and signers.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed authz repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Pool exposes the underlying pool for plain lookups.
func (r *Repository) Pool() Querier {
	return r.pool
}

// ReplaceScope upserts the scope row and swaps the signer set in one
// transaction. The owner check happens under the scope row lock so two
// concurrent reconfigurations cannot interleave.
func (r *Repository) ReplaceScope(ctx context.Context, params ConfigureScopeParams) (Scope, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Scope{}, fmt.Errorf("authz: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var existingOwner string
	err = tx.QueryRow(ctx,
		`SELECT owner_id FROM authz_scopes WHERE id = $1 FOR UPDATE`,
		params.ScopeID,
	).Scan(&existingOwner)
	switch {
	case err == nil:
		if existingOwner != params.OwnerID {
			return Scope{}, ErrNotOwner
		}
	case errors.Is(err, pgx.ErrNoRows):
		// first configuration
	default:
		return Scope{}, fmt.Errorf("authz: lock scope: %w", err)
	}

	var scope Scope
	const upsertSQL = `
		INSERT INTO authz_scopes (id, owner_id, low_threshold, med_threshold, high_threshold)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET owner_id = EXCLUDED.owner_id,
		    low_threshold = EXCLUDED.low_threshold,
		    med_threshold = EXCLUDED.med_threshold,
		    high_threshold = EXCLUDED.high_threshold,
		    updated_at = get_tx_timestamp()
		RETURNING id, owner_id, low_threshold, med_threshold, high_threshold, created_at, updated_at
	`
	if err := tx.QueryRow(ctx, upsertSQL,
		params.ScopeID,
		params.OwnerID,
		params.Low,
		params.Med,
		params.High,
	).Scan(&scope.ID, &scope.OwnerID, &scope.Low, &scope.Med, &scope.High, &scope.CreatedAt, &scope.UpdatedAt); err != nil {
		return Scope{}, fmt.Errorf("authz: upsert scope: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM authz_signers WHERE scope_id = $1`, params.ScopeID); err != nil {
		return Scope{}, fmt.Errorf("authz: clear signers: %w", err)
	}
	for _, s := range params.Signers {
		if _, err := tx.Exec(ctx,
			`INSERT INTO authz_signers (scope_id, signer_id, weight) VALUES ($1, $2, $3)`,
			params.ScopeID, s.SignerID, s.Weight,
		); err != nil {
			return Scope{}, fmt.Errorf("authz: insert signer %s: %w", s.SignerID, err)
		}
	}
	scope.Signers = params.Signers

	if err := tx.Commit(ctx); err != nil {
		return Scope{}, fmt.Errorf("authz: commit scope: %w", err)
	}
	return scope, nil
}

// WeightOf returns the signer's weight in the scope, 0 when the signer is
// not a member. Unknown signers are not an error: they simply contribute
// nothing toward quorum.
func (r *Repository) WeightOf(ctx context.Context, q Querier, scopeID, signerID string) (int64, error) {
	var weight int64
	err := q.QueryRow(ctx,
		`SELECT weight FROM authz_signers WHERE scope_id = $1 AND signer_id = $2`,
		scopeID, signerID,
	).Scan(&weight)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("authz: weight of %s: %w", signerID, err)
	}
	return weight, nil
}

// ThresholdFor returns the required weight for an action class.
func (r *Repository) ThresholdFor(ctx context.Context, q Querier, scopeID string, class Class) (int64, error) {
	var low, med, high int64
	err := q.QueryRow(ctx,
		`SELECT low_threshold, med_threshold, high_threshold FROM authz_scopes WHERE id = $1`,
		scopeID,
	).Scan(&low, &med, &high)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrScopeNotFound
		}
		return 0, fmt.Errorf("authz: threshold for %s: %w", scopeID, err)
	}
	switch class {
	case ClassLow:
		return low, nil
	case ClassMedium:
		return med, nil
	case ClassHigh:
		return high, nil
	default:
		return 0, fmt.Errorf("authz: unknown class %q", class)
	}
}

// GetScope loads a scope together with its signer set.
func (r *Repository) GetScope(ctx context.Context, scopeID string) (Scope, error) {
	var scope Scope
	err := r.pool.QueryRow(ctx, `
		SELECT id, owner_id, low_threshold, med_threshold, high_threshold, created_at, updated_at
		FROM authz_scopes
		WHERE id = $1
	`, scopeID).Scan(&scope.ID, &scope.OwnerID, &scope.Low, &scope.Med, &scope.High, &scope.CreatedAt, &scope.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Scope{}, ErrScopeNotFound
		}
		return Scope{}, fmt.Errorf("authz: get scope: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT signer_id, weight FROM authz_signers WHERE scope_id = $1 ORDER BY signer_id`,
		scopeID,
	)
	if err != nil {
		return Scope{}, fmt.Errorf("authz: list signers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s SignerWeight
		if err := rows.Scan(&s.SignerID, &s.Weight); err != nil {
			return Scope{}, fmt.Errorf("authz: scan signer: %w", err)
		}
		scope.Signers = append(scope.Signers, s)
	}
	if err := rows.Err(); err != nil {
		return Scope{}, fmt.Errorf("authz: iterate signers: %w", err)
	}
	return scope, nil
}
