package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/glpilot/glpilot/internal/core"
)

type outboxStore struct {
	db   *sqlx.DB
	node *snowflake.Node
}

// NewOutboxStore creates a Postgres-backed OutboxStore.
func NewOutboxStore(db *sqlx.DB, node *snowflake.Node) OutboxStore {
	if db == nil || node == nil {
		panic("NewOutboxStore: nil dependency")
	}
	return &outboxStore{db: db, node: node}
}

// Write appends an event to the outbox. When the event carries an
// idempotency key and a row with that key already exists, the existing row
// is returned unchanged and no new row is written. The dedup check and the
// insert run in one transaction.
func (s *outboxStore) Write(ctx context.Context, event *core.OutboxEvent) (*core.OutboxEvent, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin outbox transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if event.IdempotencyKey != nil && *event.IdempotencyKey != "" {
		var existing core.OutboxEvent
		err := tx.GetContext(ctx, &existing,
			`SELECT * FROM outbox_events WHERE idempotency_key = $1`, *event.IdempotencyKey)
		if err == nil {
			return &existing, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to check outbox idempotency key: %w", err)
		}
	}

	now := time.Now().UTC()
	event.ID = s.node.Generate().Int64()
	if event.EventID == 0 {
		event.EventID = s.node.Generate().Int64()
	}
	if event.SchemaVersion == 0 {
		event.SchemaVersion = 1
	}
	if event.Status == "" {
		event.Status = core.OutboxPending
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now
	}
	event.Attempts = 0
	event.CreatedAt = now

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO outbox_events (
			id, event_id, event_type, aggregate_type, aggregate_id,
			schema_version, payload, idempotency_key, status, attempts,
			occurred_at, created_at
		) VALUES (
			:id, :event_id, :event_type, :aggregate_type, :aggregate_id,
			:schema_version, :payload, :idempotency_key, :status, :attempts,
			:occurred_at, :created_at
		)`, event)
	if err != nil {
		// Two writers racing on the same key can both pass the SELECT; the
		// unique index stops the second insert, and the loser reads back
		// the winner's row instead of surfacing the conflict.
		if isUniqueViolation(err) && event.IdempotencyKey != nil && *event.IdempotencyKey != "" {
			_ = tx.Rollback()
			var existing core.OutboxEvent
			if selErr := s.db.GetContext(ctx, &existing,
				`SELECT * FROM outbox_events WHERE idempotency_key = $1`, *event.IdempotencyKey); selErr == nil {
				return &existing, nil
			}
		}
		return nil, fmt.Errorf("failed to insert outbox event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit outbox event: %w", err)
	}
	return event, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
