// Package webhooklog persists every raw carrier callback for audit and replay,
// and keeps the processed-event ledger that stops retried callbacks from
// re-triggering side effects. Entries are never consulted for decision logic.
package webhooklog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Categories for logged callbacks.
const (
	CategoryStatus    = "status_callback"
	CategoryRecording = "recording"
	CategoryInbound   = "inbound"
)

// Querier is the subset of pgxpool.Pool the store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store writes webhook audit rows to Postgres.
type Store struct {
	pool Querier
}

// NewStore wraps the given pool.
func NewStore(pool Querier) *Store {
	return &Store{pool: pool}
}

// Append records one raw callback and returns the new entry id.
func (s *Store) Append(ctx context.Context, category, callSID, payload string) (uuid.UUID, error) {
	id := uuid.New()
	query := `
		INSERT INTO webhook_events (id, category, call_sid, payload)
		VALUES ($1, $2, NULLIF($3, ''), $4)
	`
	if _, err := s.pool.Exec(ctx, query, id, category, callSID, payload); err != nil {
		return uuid.Nil, fmt.Errorf("webhooklog: append: %w", err)
	}
	return id, nil
}

// MarkProcessed flips the processed flag on a logged entry.
func (s *Store) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE webhook_events
		SET processed = TRUE, processed_at = now()
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("webhooklog: mark processed: %w", err)
	}
	return nil
}

// MarkEventOnce records (provider, eventKey) in the dedup ledger. It returns
// true only the first time the pair is seen; callers gate side-effect sends
// (confirmation messages, admin notifications) on that result so carrier
// retries stay idempotent.
func (s *Store) MarkEventOnce(ctx context.Context, provider, eventKey string) (bool, error) {
	query := `
		INSERT INTO processed_events (provider, event_key)
		VALUES ($1, $2)
		ON CONFLICT (provider, event_key) DO NOTHING
	`
	tag, err := s.pool.Exec(ctx, query, provider, eventKey)
	if err != nil {
		return false, fmt.Errorf("webhooklog: mark event once: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
