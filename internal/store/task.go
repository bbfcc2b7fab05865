package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jmoiron/sqlx"

	"github.com/glpilot/glpilot/internal/core"
)

type taskStore struct {
	db   *sqlx.DB
	node *snowflake.Node
}

// NewTaskStore creates a Postgres-backed TaskStore. IDs are assigned from
// the given snowflake node on Create.
func NewTaskStore(db *sqlx.DB, node *snowflake.Node) TaskStore {
	if db == nil || node == nil {
		panic("NewTaskStore: nil dependency")
	}
	return &taskStore{db: db, node: node}
}

func (s *taskStore) Create(ctx context.Context, task *core.Task) error {
	if task.ID == 0 {
		task.ID = s.node.Generate().Int64()
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = core.StatusReceived
	}

	query := `
		INSERT INTO tasks (
			id, type, origin, status, priority, intent,
			project_id, gitlab_project_id, mr_iid, issue_iid,
			conversation_id, pipeline_id, pipeline_status, commit_sha,
			result, error_reason, retry_count, superseded_by_id,
			created_at, started_at, completed_at, updated_at
		) VALUES (
			:id, :type, :origin, :status, :priority, :intent,
			:project_id, :gitlab_project_id, :mr_iid, :issue_iid,
			:conversation_id, :pipeline_id, :pipeline_status, :commit_sha,
			:result, :error_reason, :retry_count, :superseded_by_id,
			:created_at, :started_at, :completed_at, :updated_at
		)`
	if _, err := s.db.NamedExecContext(ctx, query, task); err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

func (s *taskStore) Get(ctx context.Context, id int64) (*core.Task, error) {
	var t core.Task
	err := s.db.GetContext(ctx, &t, `SELECT * FROM tasks WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load task %d: %w", id, err)
	}
	return &t, nil
}

func (s *taskStore) SetResult(ctx context.Context, id int64, result []byte) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET result = $2, updated_at = $3 WHERE id = $1`,
		id, result, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store task result: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Transition moves a task to a new status with a compare-and-swap on the
// current status, so two workers racing on the same task cannot both win.
// The status-dependent columns (started_at, completed_at, error_reason,
// retry_count) are written in the same statement.
func (s *taskStore) Transition(ctx context.Context, task *core.Task, to core.TaskStatus, errorReason string) error {
	from := task.Status
	if !from.CanTransitionTo(to) {
		return &core.InvalidTransitionError{From: from, To: to}
	}

	now := time.Now().UTC()
	query := `UPDATE tasks SET status = $3, updated_at = $4`
	args := []any{task.ID, from, to, now}

	switch to {
	case core.StatusRunning:
		query += fmt.Sprintf(", started_at = $%d", len(args)+1)
		args = append(args, now)
	case core.StatusCompleted, core.StatusSuperseded:
		query += fmt.Sprintf(", completed_at = $%d", len(args)+1)
		args = append(args, now)
	case core.StatusFailed:
		query += fmt.Sprintf(", completed_at = $%d, error_reason = $%d", len(args)+1, len(args)+2)
		args = append(args, now, errorReason)
	case core.StatusQueued:
		if from == core.StatusFailed {
			query += ", retry_count = retry_count + 1, error_reason = NULL"
		}
	}
	query += " WHERE id = $1 AND status = $2"

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to transition task %d from %s to %s: %w", task.ID, from, to, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStatusConflict
	}

	task.Status = to
	task.UpdatedAt = now
	switch to {
	case core.StatusRunning:
		task.StartedAt = &now
	case core.StatusCompleted, core.StatusSuperseded:
		task.CompletedAt = &now
	case core.StatusFailed:
		task.CompletedAt = &now
		task.ErrorReason = &errorReason
	case core.StatusQueued:
		if from == core.StatusFailed {
			task.RetryCount++
			task.ErrorReason = nil
		}
	}
	return nil
}

// SupersedeForMergeRequest marks every queued or running review task on the
// given merge request as superseded, except the task that replaces them.
// It returns the number of tasks that were superseded.
func (s *taskStore) SupersedeForMergeRequest(ctx context.Context, projectID, mrIID, supersededByID int64) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = $1, superseded_by_id = $2, completed_at = $3, updated_at = $3
		WHERE project_id = $4
		  AND mr_iid = $5
		  AND type = $6
		  AND status IN ($7, $8)
		  AND id <> $2`,
		core.StatusSuperseded, supersededByID, now,
		projectID, mrIID, core.TaskTypeCodeReview,
		core.StatusQueued, core.StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to supersede tasks for mr %d: %w", mrIID, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
