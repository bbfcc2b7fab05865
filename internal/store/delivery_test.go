package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkSeenRecordsFirstDelivery(t *testing.T) {
	db, mock := newMockDB(t)
	deliveries := NewDeliveryStore(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO webhook_deliveries")).
		WithArgs("uuid-1", int64(42), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	seen, err := deliveries.MarkSeen(context.Background(), "uuid-1", 42)

	require.NoError(t, err)
	assert.False(t, seen)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSeenReportsRedelivery(t *testing.T) {
	db, mock := newMockDB(t)
	deliveries := NewDeliveryStore(db)

	// ON CONFLICT DO NOTHING affects zero rows for a known uuid.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO webhook_deliveries")).
		WithArgs("uuid-1", int64(42), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	seen, err := deliveries.MarkSeen(context.Background(), "uuid-1", 42)

	require.NoError(t, err)
	assert.True(t, seen)
	require.NoError(t, mock.ExpectationsWereMet())
}
