// Package outbox implements the transactional outbox used for all
// platform notifications. Messages are written in the same transaction as
// the state change that triggers them, so a committed transition and its
// notification are inseparable; delivery to downstream consumers is the
// relay worker's concern.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Message represents one pending outbox entry.
type Message struct {
	ID        int64
	Topic     string
	Payload   []byte
	Status    string
	Attempts  int
	CreatedAt time.Time
}

// Enqueue writes a notification into the outbox inside the caller's
// transaction.
func Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	if topic == "" {
		return fmt.Errorf("outbox: empty topic")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal payload: %w", err)
	}
	const q = `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`
	if _, err := tx.Exec(ctx, q, topic, body); err != nil {
		return fmt.Errorf("outbox: enqueue %s: %w", topic, err)
	}
	return nil
}

// ListPending returns undelivered messages for a topic, oldest first.
// Used by the relay worker and by tests asserting emission.
func ListPending(ctx context.Context, pool *pgxpool.Pool, topic string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT id, topic, payload, status, attempts, created_at
		FROM outbox
		WHERE topic = $1 AND status = 'pending'
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := pool.Query(ctx, q, topic, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: list pending: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0, 8)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.Status, &m.Attempts, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("outbox: scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox: iterate: %w", err)
	}
	return out, nil
}
