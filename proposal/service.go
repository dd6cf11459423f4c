package proposal

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is the repository surface the service delegates to.
type Store interface {
	Sign(ctx context.Context, tx pgx.Tx, params SignParams) (SignResult, error)
	Get(ctx context.Context, pool *pgxpool.Pool, actionID string) (Proposal, error)
	ExpireStale(ctx context.Context, pool *pgxpool.Pool) (int64, error)
}

// Service exposes the proposal store for standalone sensitive actions.
// Callers that need to couple quorum crossing with their own effects (the
// adjudication coordinator) use Repository.Sign inside their own
// transaction instead.
type Service struct {
	pool *pgxpool.Pool
	repo Store
	ttl  time.Duration
}

func NewService(pool *pgxpool.Pool, repo Store) *Service {
	return &Service{pool: pool, repo: repo}
}

// WithTTL sets the signing window applied to proposals created through
// this service. Zero means proposals never expire; the unbounded Pending
// backlog that allows is an accepted trade-off surfaced by ExpireStale.
func (s *Service) WithTTL(ttl time.Duration) *Service {
	s.ttl = ttl
	return s
}

// Sign applies one signature to the action in its own transaction.
func (s *Service) Sign(ctx context.Context, params SignParams) (SignResult, error) {
	if params.ExpiresAt == nil && s.ttl > 0 {
		deadline := time.Now().Add(s.ttl)
		params.ExpiresAt = &deadline
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return SignResult{}, fmt.Errorf("proposal: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	res, err := s.repo.Sign(ctx, tx, params)
	if err != nil {
		return SignResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return SignResult{}, fmt.Errorf("proposal: commit tx: %w", err)
	}
	return res, nil
}

// Status returns the proposal's current lifecycle state.
func (s *Service) Status(ctx context.Context, actionID string) (Status, error) {
	p, err := s.repo.Get(ctx, s.pool, actionID)
	if err != nil {
		return "", err
	}
	return p.Status, nil
}

// Get returns the full proposal record.
func (s *Service) Get(ctx context.Context, actionID string) (Proposal, error) {
	return s.repo.Get(ctx, s.pool, actionID)
}

// ExpireStale sweeps lapsed Pending proposals and reports the count so
// operators can see the backlog instead of it accumulating silently.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireStale(ctx, s.pool)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("proposal: expired %d stale proposals", n)
	}
	return n, nil
}
