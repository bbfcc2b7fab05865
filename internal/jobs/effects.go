package jobs

import (
	"log/slog"

	"github.com/glpilot/glpilot/internal/gitlab"
	"github.com/glpilot/glpilot/internal/store"
)

// Effects enqueues the concrete publication jobs. It backs both the result
// publishers and the help responder used during classification; every
// method only queues work, the jobs themselves run on the worker pool.
type Effects struct {
	dispatcher *Dispatcher
	tasks      store.TaskStore
	outbox     store.OutboxStore
	gl         gitlab.Client
	statusName string
	logger     *slog.Logger
}

// NewEffects wires the side effect enqueuer. statusName is the name under
// which commit statuses appear in GitLab pipelines.
func NewEffects(dispatcher *Dispatcher, tasks store.TaskStore, outbox store.OutboxStore, gl gitlab.Client, statusName string, logger *slog.Logger) *Effects {
	if dispatcher == nil || tasks == nil || outbox == nil || gl == nil || logger == nil {
		panic("NewEffects: nil dependency")
	}
	if statusName == "" {
		statusName = "glpilot/review"
	}
	return &Effects{
		dispatcher: dispatcher,
		tasks:      tasks,
		outbox:     outbox,
		gl:         gl,
		statusName: statusName,
		logger:     logger,
	}
}

func (e *Effects) job(name string, taskID int64) taskJob {
	return taskJob{name: name, taskID: taskID, tasks: e.tasks, gl: e.gl, logger: e.logger}
}

func (e *Effects) PostSummaryComment(taskID int64) error {
	return e.dispatcher.Enqueue(&PostSummaryCommentJob{e.job("post_summary_comment", taskID)})
}

func (e *Effects) PostInlineThreads(taskID int64) error {
	return e.dispatcher.Enqueue(&PostInlineThreadsJob{e.job("post_inline_threads", taskID)})
}

func (e *Effects) PostLabelsAndStatus(taskID int64) error {
	return e.dispatcher.Enqueue(&PostLabelsAndStatusJob{
		taskJob:    e.job("post_labels_and_status", taskID),
		statusName: e.statusName,
	})
}

func (e *Effects) PostAnswerComment(taskID int64) error {
	return e.dispatcher.Enqueue(&PostAnswerCommentJob{e.job("post_answer_comment", taskID)})
}

func (e *Effects) PostIssueComment(taskID int64) error {
	return e.dispatcher.Enqueue(&PostIssueCommentJob{e.job("post_issue_comment", taskID)})
}

func (e *Effects) PostFeatureDevResult(taskID int64) error {
	return e.dispatcher.Enqueue(&PostFeatureDevResultJob{e.job("post_feature_dev_result", taskID)})
}

func (e *Effects) CreateIssueFromTask(taskID int64) error {
	return e.dispatcher.Enqueue(&CreateIssueFromTaskJob{e.job("create_issue_from_task", taskID)})
}

func (e *Effects) ExtractReviewPatterns(taskID int64) error {
	return e.dispatcher.Enqueue(&ExtractReviewPatternsJob{
		taskJob: e.job("extract_review_patterns", taskID),
		outbox:  e.outbox,
	})
}

// PostFailureComment notifies the requester that the task failed for good.
func (e *Effects) PostFailureComment(taskID int64, reason string) error {
	return e.dispatcher.Enqueue(&PostFailureCommentJob{
		taskJob: e.job("post_failure_comment", taskID),
		reason:  reason,
	})
}

// PostHelp queues a usage help reply for an unrecognized command. Dropping
// the reply on a full queue is acceptable, so the error is only logged.
func (e *Effects) PostHelp(gitlabProjectID, mrIID int64, unrecognizedCommand string) {
	err := e.dispatcher.Enqueue(&PostHelpResponseJob{
		gitlabProjectID: gitlabProjectID,
		mrIID:           mrIID,
		command:         unrecognizedCommand,
		gl:              e.gl,
	})
	if err != nil {
		e.logger.Warn("failed to queue help response", "error", err)
	}
}
