package store

import (
	"context"
	"errors"

	"github.com/glpilot/glpilot/internal/core"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrStatusConflict is returned when a task transition loses the
// compare-and-swap race because another writer moved the task first.
var ErrStatusConflict = errors.New("store: task status conflict")

// TaskStore persists tasks and enforces the task lifecycle at the
// database level. Transition is the only way to change a task's status.
type TaskStore interface {
	Create(ctx context.Context, task *core.Task) error
	Get(ctx context.Context, id int64) (*core.Task, error)
	SetResult(ctx context.Context, id int64, result []byte) error
	Transition(ctx context.Context, task *core.Task, to core.TaskStatus, errorReason string) error
	SupersedeForMergeRequest(ctx context.Context, projectID, mrIID, supersededByID int64) (int64, error)
}

// ProjectStore resolves GitLab projects onto internal registrations.
type ProjectStore interface {
	GetByGitLabID(ctx context.Context, gitlabProjectID int64) (*core.Project, error)
	Register(ctx context.Context, project *core.Project) error
	List(ctx context.Context) ([]*core.Project, error)
}

// DeliveryStore remembers which webhook deliveries were already processed.
// GitLab redelivers webhooks; each delivery carries a unique event UUID.
type DeliveryStore interface {
	// MarkSeen records the delivery and reports whether it was seen before.
	MarkSeen(ctx context.Context, eventUUID string, gitlabProjectID int64) (bool, error)
}

// OutboxStore appends integration events to the transactional outbox.
// Write is idempotent on the event's idempotency key.
type OutboxStore interface {
	Write(ctx context.Context, event *core.OutboxEvent) (*core.OutboxEvent, error)
}
