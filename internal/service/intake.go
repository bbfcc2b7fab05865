// Package service holds the intake pipeline that turns normalized webhook
// events into queued tasks.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/glpilot/glpilot/internal/core"
	"github.com/glpilot/glpilot/internal/routing"
	"github.com/glpilot/glpilot/internal/store"
)

// Intake runs the event half of the pipeline: bot filtering,
// classification, task type resolution, task creation and superseding.
type Intake struct {
	classifiers  *routing.ClassifierRegistry
	handlers     *routing.HandlerRegistry
	tasks        store.TaskStore
	outbox       store.OutboxStore
	botAccountID int64
	logger       *slog.Logger
}

// NewIntake wires the intake pipeline. botAccountID identifies the service's
// own GitLab account; notes authored by it are dropped to prevent feedback
// loops.
func NewIntake(classifiers *routing.ClassifierRegistry, handlers *routing.HandlerRegistry, tasks store.TaskStore, outbox store.OutboxStore, botAccountID int64, logger *slog.Logger) *Intake {
	if classifiers == nil || handlers == nil || tasks == nil || outbox == nil || logger == nil {
		panic("NewIntake: nil dependency")
	}
	return &Intake{
		classifiers:  classifiers,
		handlers:     handlers,
		tasks:        tasks,
		outbox:       outbox,
		botAccountID: botAccountID,
		logger:       logger,
	}
}

// Process turns one webhook event into a queued task. A nil task with a nil
// error means the event was deliberately dropped: authored by the bot
// itself, matched by no classifier, or carrying an intent no handler owns.
func (s *Intake) Process(ctx context.Context, event core.WebhookEvent) (*core.Task, error) {
	if s.isBotAuthored(event) {
		s.logger.Debug("dropping bot-authored event", "kind", event.Kind())
		return nil, nil
	}

	result := s.classifiers.Classify(event)
	if result == nil {
		s.logger.Debug("no classifier matched event", "kind", event.Kind())
		return nil, nil
	}

	// A merged MR triggers no task of its own; the final classification of
	// the review threads runs off an outbox event.
	if result.Intent == core.IntentAcceptanceTracking {
		return nil, s.trackAcceptance(ctx, event)
	}

	taskType, ok := s.handlers.ResolveTaskType(result)
	if !ok {
		s.logger.Debug("no handler owns intent", "intent", result.Intent)
		return nil, nil
	}

	task := s.buildTask(event, result, taskType)
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("intake: %w", err)
	}
	if err := s.tasks.Transition(ctx, task, core.StatusQueued, ""); err != nil {
		return nil, fmt.Errorf("intake: %w", err)
	}

	if taskType == core.TaskTypeCodeReview && task.HasMergeRequest() {
		n, err := s.tasks.SupersedeForMergeRequest(ctx, task.ProjectID, *task.MergeRequestIID, task.ID)
		if err != nil {
			s.logger.Error("failed to supersede stale review tasks",
				"task_id", task.ID, "mr_iid", *task.MergeRequestIID, "error", err)
		} else if n > 0 {
			s.logger.Info("superseded stale review tasks",
				"task_id", task.ID, "mr_iid", *task.MergeRequestIID, "count", n)
		}
	}

	s.logger.Info("task queued",
		"task_id", task.ID,
		"type", task.Type,
		"intent", task.Intent,
		"priority", task.Priority,
	)
	return task, nil
}

// isBotAuthored reports whether the event is a note written by the service's
// own account. Only notes are filtered: MR and push events carrying the bot
// identity still route, so bot-created merge requests get reviewed like any
// other.
func (s *Intake) isBotAuthored(event core.WebhookEvent) bool {
	if s.botAccountID == 0 {
		return false
	}
	switch e := event.(type) {
	case core.NoteOnMergeRequest:
		return e.AuthorID == s.botAccountID
	case core.NoteOnIssue:
		return e.AuthorID == s.botAccountID
	default:
		return false
	}
}

// trackAcceptance stages the post-merge thread classification for the relay.
// Keyed per merge request, so a redelivered merge event stages nothing new.
func (s *Intake) trackAcceptance(ctx context.Context, event core.WebhookEvent) error {
	merged, ok := event.(core.MergeRequestMerged)
	if !ok {
		return nil
	}
	projectID, gitlabProjectID := event.Project()
	key := fmt.Sprintf("acceptance.tracking:%d:%d", gitlabProjectID, merged.MergeRequestIID)
	payload := fmt.Sprintf(`{"project_id":%d,"gitlab_project_id":%d,"mr_iid":%d,"commit_sha":%q}`,
		projectID, gitlabProjectID, merged.MergeRequestIID, merged.LastCommitSHA)

	_, err := s.outbox.Write(ctx, &core.OutboxEvent{
		EventType:      "acceptance.tracking_requested",
		AggregateType:  "merge_request",
		AggregateID:    merged.MergeRequestIID,
		Payload:        []byte(payload),
		IdempotencyKey: &key,
	})
	if err != nil {
		return fmt.Errorf("intake: %w", err)
	}
	s.logger.Info("acceptance tracking staged",
		"gitlab_project_id", gitlabProjectID, "mr_iid", merged.MergeRequestIID)
	return nil
}

func (s *Intake) buildTask(event core.WebhookEvent, result *core.RoutingResult, taskType core.TaskType) *core.Task {
	projectID, gitlabProjectID := event.Project()
	task := &core.Task{
		Type:            taskType,
		Origin:          core.OriginWebhook,
		Status:          core.StatusReceived,
		Priority:        result.Priority,
		Intent:          result.Intent,
		ProjectID:       projectID,
		GitLabProjectID: gitlabProjectID,
	}

	switch e := event.(type) {
	case core.MergeRequestOpened:
		task.MergeRequestIID = &e.MergeRequestIID
		task.CommitSHA = &e.LastCommitSHA
	case core.MergeRequestUpdated:
		task.MergeRequestIID = &e.MergeRequestIID
		task.CommitSHA = &e.LastCommitSHA
	case core.MergeRequestMerged:
		task.MergeRequestIID = &e.MergeRequestIID
		task.CommitSHA = &e.LastCommitSHA
	case core.NoteOnMergeRequest:
		task.MergeRequestIID = &e.MergeRequestIID
	case core.NoteOnIssue:
		task.IssueIID = &e.IssueIID
	case core.IssueLabelChanged:
		task.IssueIID = &e.IssueIID
	case core.PushToBranch:
		if e.MergeRequestIID > 0 {
			task.MergeRequestIID = &e.MergeRequestIID
		}
		task.CommitSHA = &e.After
	}
	return task
}
