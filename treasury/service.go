// Package treasury keeps the platform's operational wallet funded. A
// periodic check compares the wallet's native balance against a floor
// and swaps stablecoin reserves back up to a target when it dips.
package treasury

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"

	"escrowdesk/outbox"
)

// BalanceOracle reports the current native balance of a wallet.
type BalanceOracle interface {
	BalanceOf(ctx context.Context, wallet string) (int64, error)
}

// SwapExecutor converts stablecoin reserves into native units. Execute
// is expected to be synchronous; a returned error means no funds moved.
type SwapExecutor interface {
	ExecuteSwap(ctx context.Context, wallet string, amount int64) error
}

// TxBeginner abstracts pgxpool.Pool so tests can inject fakes.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Config sets the rebalancing band. Threshold is the floor that triggers
// a top-up; Target is the balance restored by the swap.
type Config struct {
	Threshold int64
	Target    int64
}

type Service struct {
	oracle  BalanceOracle
	swapper SwapExecutor
	pool    TxBeginner
	cfg     Config
}

func NewService(oracle BalanceOracle, swapper SwapExecutor, pool TxBeginner, cfg Config) (*Service, error) {
	if cfg.Threshold < 0 {
		return nil, errors.New("treasury: threshold must be non-negative")
	}
	if cfg.Target <= cfg.Threshold {
		return nil, errors.New("treasury: target must exceed threshold")
	}
	return &Service{oracle: oracle, swapper: swapper, pool: pool, cfg: cfg}, nil
}

// CheckAndRebalance tops the wallet back up to the target when its
// balance has fallen below the threshold. It reports whether a swap ran.
// The check is safe to invoke from overlapping schedules: a healthy
// balance is a no-op and a double top-up only overshoots by one cycle.
func (s *Service) CheckAndRebalance(ctx context.Context, wallet string) (bool, error) {
	if wallet == "" {
		return false, errors.New("treasury: wallet is required")
	}

	balance, err := s.oracle.BalanceOf(ctx, wallet)
	if err != nil {
		return false, fmt.Errorf("treasury: read balance: %w", err)
	}
	if balance >= s.cfg.Threshold {
		return false, nil
	}

	amount := s.cfg.Target - balance
	if err := s.swapper.ExecuteSwap(ctx, wallet, amount); err != nil {
		return false, fmt.Errorf("treasury: execute swap: %w", err)
	}

	if err := s.recordRebalance(ctx, wallet, balance, amount); err != nil {
		// The swap already settled; the event is advisory.
		log.Printf("treasury: record rebalance for %s: %v", wallet, err)
	}

	return true, nil
}

func (s *Service) recordRebalance(ctx context.Context, wallet string, balanceBefore, amount int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = outbox.Enqueue(ctx, tx, "rebalance.executed", map[string]any{
		"wallet":         wallet,
		"balance_before": balanceBefore,
		"amount":         amount,
		"target":         s.cfg.Target,
	})
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}
