// Package platform covers operational housekeeping: the protocol
// version gate used by migration tooling, and data retention leases that
// keep long-running records alive.
package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotConfigured signals the settings row has never been written.
var ErrNotConfigured = errors.New("platform: settings not configured")

type Service struct {
	pool *pgxpool.Pool
}

func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// ProtocolVersion returns the recorded platform protocol version.
func (s *Service) ProtocolVersion(ctx context.Context) (int, error) {
	const selectSQL = `SELECT protocol_version FROM platform_settings WHERE id = 1`

	var version int
	err := s.pool.QueryRow(ctx, selectSQL).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotConfigured
		}
		return 0, fmt.Errorf("platform: read protocol version: %w", err)
	}
	return version, nil
}

// SetProtocolVersion records the version after an upgrade. Operator only.
func (s *Service) SetProtocolVersion(ctx context.Context, version int) error {
	if version < 0 {
		return errors.New("platform: version must be non-negative")
	}

	const upsertSQL = `
		INSERT INTO platform_settings (id, protocol_version, updated_at)
		VALUES (1, $1, get_tx_timestamp())
		ON CONFLICT (id) DO UPDATE
		SET protocol_version = EXCLUDED.protocol_version,
		    updated_at = get_tx_timestamp()
	`

	if _, err := s.pool.Exec(ctx, upsertSQL, version); err != nil {
		return fmt.Errorf("platform: set protocol version: %w", err)
	}
	return nil
}

// IsVersionAtLeast reports whether the platform runs at least the given
// protocol version. An unconfigured deployment counts as version zero.
func (s *Service) IsVersionAtLeast(ctx context.Context, min int) (bool, error) {
	version, err := s.ProtocolVersion(ctx)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return min <= 0, nil
		}
		return false, err
	}
	return version >= min, nil
}

// ExtendLease pushes the retention lease for a resource out to
// now+extension, but only when the current lease is within the renewal
// threshold of expiring. Early calls are no-ops so hot resources do not
// rewrite the row on every touch. It reports whether the lease moved.
func (s *Service) ExtendLease(ctx context.Context, resource string, threshold, extension time.Duration) (bool, error) {
	if resource == "" {
		return false, errors.New("platform: resource is required")
	}
	if extension <= 0 {
		return false, errors.New("platform: extension must be positive")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("platform: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const lockSQL = `
		SELECT expires_at
		FROM retention_leases
		WHERE resource = $1
		FOR UPDATE
	`

	var expiresAt time.Time
	err = tx.QueryRow(ctx, lockSQL, resource).Scan(&expiresAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		const insertSQL = `
			INSERT INTO retention_leases (resource, expires_at)
			VALUES ($1, get_tx_timestamp() + make_interval(secs => $2))
		`
		if _, err := tx.Exec(ctx, insertSQL, resource, extension.Seconds()); err != nil {
			return false, fmt.Errorf("platform: create lease: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return false, fmt.Errorf("platform: commit: %w", err)
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("platform: lock lease: %w", err)
	}

	if time.Until(expiresAt) > threshold {
		return false, tx.Commit(ctx)
	}

	const updateSQL = `
		UPDATE retention_leases
		SET expires_at = get_tx_timestamp() + make_interval(secs => $2),
		    renewed_at = get_tx_timestamp()
		WHERE resource = $1
	`
	if _, err := tx.Exec(ctx, updateSQL, resource, extension.Seconds()); err != nil {
		return false, fmt.Errorf("platform: extend lease: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("platform: commit: %w", err)
	}
	return true, nil
}
