package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type deliveryStore struct {
	db *sqlx.DB
}

// NewDeliveryStore creates a Postgres-backed DeliveryStore.
func NewDeliveryStore(db *sqlx.DB) DeliveryStore {
	if db == nil {
		panic("NewDeliveryStore: nil database")
	}
	return &deliveryStore{db: db}
}

// MarkSeen records a webhook delivery UUID. The primary key absorbs the
// repeat insert, so a redelivered webhook reports seen regardless of which
// writer got there first.
func (s *deliveryStore) MarkSeen(ctx context.Context, eventUUID string, gitlabProjectID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_deliveries (event_uuid, gitlab_project_id, received_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_uuid) DO NOTHING`,
		eventUUID, gitlabProjectID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to record webhook delivery: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 0, nil
}
