package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glpilot/glpilot/internal/core"
)

func TestTransitionClaimsQueuedTask(t *testing.T) {
	db, mock := newMockDB(t)
	tasks := NewTaskStore(db, testNode(t))
	task := &core.Task{ID: 7, Status: core.StatusQueued}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks SET status = $3, updated_at = $4, started_at = $5 WHERE id = $1 AND status = $2")).
		WithArgs(int64(7), core.StatusQueued, core.StatusRunning, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := tasks.Transition(context.Background(), task, core.StatusRunning, "")

	require.NoError(t, err)
	assert.Equal(t, core.StatusRunning, task.Status)
	assert.NotNil(t, task.StartedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionLosesCompareAndSwapRace(t *testing.T) {
	db, mock := newMockDB(t)
	tasks := NewTaskStore(db, testNode(t))
	task := &core.Task{ID: 7, Status: core.StatusQueued}

	// Another writer moved the task first; zero rows match the expected
	// status and the caller gets the conflict, not a silent overwrite.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tasks SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := tasks.Transition(context.Background(), task, core.StatusRunning, "")

	assert.ErrorIs(t, err, ErrStatusConflict)
	assert.Equal(t, core.StatusQueued, task.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionRejectsInvalidStep(t *testing.T) {
	db, _ := newMockDB(t)
	tasks := NewTaskStore(db, testNode(t))
	task := &core.Task{ID: 7, Status: core.StatusCompleted}

	err := tasks.Transition(context.Background(), task, core.StatusRunning, "")

	var invalid *core.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, core.StatusCompleted, invalid.From)
}
