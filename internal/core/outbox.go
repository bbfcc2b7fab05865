package core

import (
	"encoding/json"
	"time"
)

// OutboxStatus tracks the delivery lifecycle of an outbox event.
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxDispatched OutboxStatus = "dispatched"
)

// OutboxEvent is a durably staged internal domain event awaiting asynchronous
// relay. Rows are written transactionally alongside their producing write; a
// non-empty idempotency key guarantees at most one row per key.
type OutboxEvent struct {
	ID             int64           `db:"id"`
	EventID        int64           `db:"event_id"`
	EventType      string          `db:"event_type"`
	AggregateType  string          `db:"aggregate_type"`
	AggregateID    int64           `db:"aggregate_id"`
	SchemaVersion  int             `db:"schema_version"`
	Payload        json.RawMessage `db:"payload"`
	IdempotencyKey *string         `db:"idempotency_key"`
	Status         OutboxStatus    `db:"status"`
	Attempts       int             `db:"attempts"`
	OccurredAt     time.Time       `db:"occurred_at"`
	CreatedAt      time.Time       `db:"created_at"`
}
