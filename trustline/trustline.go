// Package trustline grants asset trustlines to platform accounts so they
// can hold the stablecoins escrow settles in. Granting is idempotent per
// (account, asset, issuer).
package trustline

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"escrowdesk/outbox"
)

// Grant is one recorded trustline.
type Grant struct {
	AccountID string
	AssetCode string
	Issuer    string
}

type Service struct {
	pool       *pgxpool.Pool
	usdcIssuer string
}

func NewService(pool *pgxpool.Pool, usdcIssuer string) *Service {
	return &Service{pool: pool, usdcIssuer: usdcIssuer}
}

// Ensure records the trustline if it is not present yet and reports
// whether this call created it. Repeat calls are silent no-ops; the
// configuration event fires only on the first grant.
func (s *Service) Ensure(ctx context.Context, g Grant) (bool, error) {
	if g.AccountID == "" || g.AssetCode == "" || g.Issuer == "" {
		return false, errors.New("trustline: account, asset and issuer are required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("trustline: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertSQL = `
		INSERT INTO trustlines (account_id, asset_code, issuer)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, asset_code, issuer) DO NOTHING
	`

	tag, err := tx.Exec(ctx, insertSQL, g.AccountID, g.AssetCode, g.Issuer)
	if err != nil {
		return false, fmt.Errorf("trustline: insert grant: %w", err)
	}
	created := tag.RowsAffected() == 1

	if created {
		err = outbox.Enqueue(ctx, tx, "trustline.configured", map[string]any{
			"account_id": g.AccountID,
			"asset_code": g.AssetCode,
			"issuer":     g.Issuer,
		})
		if err != nil {
			return false, fmt.Errorf("trustline: enqueue event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("trustline: commit: %w", err)
	}

	return created, nil
}

// EnsureUSDC grants the platform's settlement asset to the account.
func (s *Service) EnsureUSDC(ctx context.Context, accountID string) (bool, error) {
	return s.Ensure(ctx, Grant{
		AccountID: accountID,
		AssetCode: "USDC",
		Issuer:    s.usdcIssuer,
	})
}
