package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskType identifies the kind of work a task performs.
type TaskType string

const (
	TaskTypeCodeReview      TaskType = "code_review"
	TaskTypeIssueDiscussion TaskType = "issue_discussion"
	TaskTypeFeatureDev      TaskType = "feature_dev"
	TaskTypeUIAdjustment    TaskType = "ui_adjustment"
	TaskTypePRDCreation     TaskType = "prd_creation"
	TaskTypeSecurityAudit   TaskType = "security_audit"
)

// TaskOrigin records what produced a task.
type TaskOrigin string

const (
	OriginWebhook      TaskOrigin = "webhook"
	OriginConversation TaskOrigin = "conversation"
)

// TaskStatus is a state-machine-governed task lifecycle state.
type TaskStatus string

const (
	StatusReceived   TaskStatus = "received"
	StatusQueued     TaskStatus = "queued"
	StatusRunning    TaskStatus = "running"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusSuperseded TaskStatus = "superseded"
)

// transitions is the complete legal edge set of the task state machine.
// failed -> queued is the supervised retry path.
var transitions = map[TaskStatus][]TaskStatus{
	StatusReceived: {StatusQueued},
	StatusQueued:   {StatusRunning, StatusSuperseded, StatusFailed},
	StatusRunning:  {StatusCompleted, StatusFailed, StatusSuperseded},
	StatusFailed:   {StatusQueued},
}

// CanTransitionTo reports whether the edge s -> target exists in the
// transition table. Unknown states and targets are rejected.
func (s TaskStatus) CanTransitionTo(target TaskStatus) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is terminal from the caller's perspective:
// notifications and reporting treat completed, failed and superseded as done.
// Note that failed still has an outgoing retry edge; use IsFinal to ask
// whether no further transition is possible.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSuperseded:
		return true
	default:
		return false
	}
}

// IsFinal reports whether s has no outgoing transitions at all.
func (s TaskStatus) IsFinal() bool {
	return len(transitions[s]) == 0
}

// InvalidTransitionError rejects a task status mutation that is not present
// in the transition table. It carries both endpoints for diagnostics.
type InvalidTransitionError struct {
	From TaskStatus
	To   TaskStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid task transition from %q to %q", e.From, e.To)
}

// Task is the internal unit of schedulable work. Status must only ever be
// mutated through the state machine gate; the store enforces this with a
// compare-and-set on the stored status.
type Task struct {
	ID              int64           `db:"id"`
	Type            TaskType        `db:"type"`
	Origin          TaskOrigin      `db:"origin"`
	Status          TaskStatus      `db:"status"`
	Priority        Priority        `db:"priority"`
	Intent          string          `db:"intent"`
	ProjectID       int64           `db:"project_id"`
	GitLabProjectID int64           `db:"gitlab_project_id"`
	MergeRequestIID *int64          `db:"mr_iid"`
	IssueIID        *int64          `db:"issue_iid"`
	ConversationID  *int64          `db:"conversation_id"`
	PipelineID      *int64          `db:"pipeline_id"`
	PipelineStatus  *string         `db:"pipeline_status"`
	CommitSHA       *string         `db:"commit_sha"`
	Result          json.RawMessage `db:"result"`
	ErrorReason     *string         `db:"error_reason"`
	RetryCount      int             `db:"retry_count"`
	SupersededByID  *int64          `db:"superseded_by_id"`
	CreatedAt       time.Time       `db:"created_at"`
	StartedAt       *time.Time      `db:"started_at"`
	CompletedAt     *time.Time      `db:"completed_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

// HasMergeRequest reports whether the task references a merge request.
func (t *Task) HasMergeRequest() bool {
	return t.MergeRequestIID != nil && *t.MergeRequestIID > 0
}

// HasIssue reports whether the task references an issue.
func (t *Task) HasIssue() bool {
	return t.IssueIID != nil && *t.IssueIID > 0
}
