package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/glpilot/glpilot/internal/core"
	"github.com/glpilot/glpilot/internal/gitlab"
	"github.com/glpilot/glpilot/internal/store"
)

// taskJob is the shared base of the publication jobs: each one loads its
// task, renders something from the opaque result payload and posts it to
// GitLab. The GitLab call's error propagates so the retry middleware can
// classify it.
type taskJob struct {
	name   string
	taskID int64
	tasks  store.TaskStore
	gl     gitlab.Client
	logger *slog.Logger
}

func (j *taskJob) Name() string { return j.name }

func (j *taskJob) load(ctx context.Context) (*core.Task, error) {
	task, err := j.tasks.Get(ctx, j.taskID)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", j.name, err)
	}
	return task, nil
}

// PostSummaryCommentJob posts the review verdict and summary as a single
// merge request note.
type PostSummaryCommentJob struct {
	taskJob
}

func (j *PostSummaryCommentJob) Run(ctx context.Context) error {
	task, err := j.load(ctx)
	if err != nil {
		return err
	}
	if !task.HasMergeRequest() {
		j.logger.Warn("summary comment job on task without merge request", "task_id", task.ID)
		return nil
	}

	var b strings.Builder
	b.WriteString("## Review summary\n\n")
	if summary := gjson.GetBytes(task.Result, "summary").String(); summary != "" {
		b.WriteString(summary)
		b.WriteString("\n")
	}
	findings := gjson.GetBytes(task.Result, "findings").Array()
	if len(findings) > 0 {
		fmt.Fprintf(&b, "\n%d finding(s):\n\n", len(findings))
		for _, f := range findings {
			fmt.Fprintf(&b, "- **%s** `%s:%d` %s\n",
				f.Get("severity").String(),
				f.Get("file").String(),
				f.Get("line").Int(),
				f.Get("title").String(),
			)
		}
	} else {
		b.WriteString("\nNo findings.\n")
	}

	return j.gl.CreateMergeRequestNote(ctx, task.GitLabProjectID, *task.MergeRequestIID, b.String())
}

// PostInlineThreadsJob opens one discussion per finding that carries a file
// position. Findings without a position were already covered by the summary
// comment and are skipped.
type PostInlineThreadsJob struct {
	taskJob
}

func (j *PostInlineThreadsJob) Run(ctx context.Context) error {
	task, err := j.load(ctx)
	if err != nil {
		return err
	}
	if !task.HasMergeRequest() {
		return nil
	}

	diffRefs := gjson.GetBytes(task.Result, "diff_refs")
	for _, f := range gjson.GetBytes(task.Result, "findings").Array() {
		file := f.Get("file").String()
		line := f.Get("line").Int()
		if file == "" || line <= 0 {
			continue
		}
		var pos *gitlab.InlinePosition
		if diffRefs.Exists() {
			pos = &gitlab.InlinePosition{
				BaseSHA:  diffRefs.Get("base_sha").String(),
				StartSHA: diffRefs.Get("start_sha").String(),
				HeadSHA:  diffRefs.Get("head_sha").String(),
				NewPath:  file,
				NewLine:  int(line),
			}
		}
		body := fmt.Sprintf("**%s**: %s", f.Get("severity").String(), f.Get("comment").String())
		if err := j.gl.CreateMergeRequestDiscussion(ctx, task.GitLabProjectID, *task.MergeRequestIID, body, pos); err != nil {
			return err
		}
	}
	return nil
}

// PostLabelsAndStatusJob labels the merge request and pushes a commit
// status reflecting the review verdict.
type PostLabelsAndStatusJob struct {
	taskJob
	statusName string
}

func (j *PostLabelsAndStatusJob) Run(ctx context.Context) error {
	task, err := j.load(ctx)
	if err != nil {
		return err
	}
	if !task.HasMergeRequest() {
		return nil
	}

	labels := []string{"ai::reviewed"}
	state := "success"
	description := "Review passed"
	for _, f := range gjson.GetBytes(task.Result, "findings").Array() {
		if f.Get("severity").String() == "critical" {
			labels = append(labels, "ai::needs-work")
			state = "failed"
			description = "Review found critical issues"
			break
		}
	}

	if err := j.gl.AddMergeRequestLabels(ctx, task.GitLabProjectID, *task.MergeRequestIID, labels); err != nil {
		return err
	}
	if task.CommitSHA == nil || *task.CommitSHA == "" {
		return nil
	}
	return j.gl.SetCommitStatus(ctx, task.GitLabProjectID, *task.CommitSHA, state, j.statusName, description)
}

// PostAnswerCommentJob replies to an @ai ask command on a merge request.
type PostAnswerCommentJob struct {
	taskJob
}

func (j *PostAnswerCommentJob) Run(ctx context.Context) error {
	task, err := j.load(ctx)
	if err != nil {
		return err
	}
	if !task.HasMergeRequest() {
		return nil
	}
	answer := gjson.GetBytes(task.Result, "answer").String()
	if answer == "" {
		j.logger.Warn("ask result has no answer text", "task_id", task.ID)
		return nil
	}
	return j.gl.CreateMergeRequestNote(ctx, task.GitLabProjectID, *task.MergeRequestIID, answer)
}

// PostIssueCommentJob posts a discussion response on an issue.
type PostIssueCommentJob struct {
	taskJob
}

func (j *PostIssueCommentJob) Run(ctx context.Context) error {
	task, err := j.load(ctx)
	if err != nil {
		return err
	}
	if !task.HasIssue() {
		return nil
	}
	response := gjson.GetBytes(task.Result, "response").String()
	if response == "" {
		response = gjson.GetBytes(task.Result, "answer").String()
	}
	if response == "" {
		j.logger.Warn("discussion result has no response text", "task_id", task.ID)
		return nil
	}
	return j.gl.CreateIssueNote(ctx, task.GitLabProjectID, *task.IssueIID, response)
}

// PostFeatureDevResultJob reports a finished feature development task back
// on its originating issue, linking the produced merge request.
type PostFeatureDevResultJob struct {
	taskJob
}

func (j *PostFeatureDevResultJob) Run(ctx context.Context) error {
	task, err := j.load(ctx)
	if err != nil {
		return err
	}
	if !task.HasIssue() {
		return nil
	}

	var b strings.Builder
	b.WriteString("Implementation ready.\n")
	if summary := gjson.GetBytes(task.Result, "summary").String(); summary != "" {
		b.WriteString("\n")
		b.WriteString(summary)
		b.WriteString("\n")
	}
	if mrURL := gjson.GetBytes(task.Result, "mr_url").String(); mrURL != "" {
		fmt.Fprintf(&b, "\nMerge request: %s\n", mrURL)
	}
	return j.gl.CreateIssueNote(ctx, task.GitLabProjectID, *task.IssueIID, b.String())
}

// CreateIssueFromTaskJob turns a produced document, such as a PRD, into a
// new GitLab issue.
type CreateIssueFromTaskJob struct {
	taskJob
}

func (j *CreateIssueFromTaskJob) Run(ctx context.Context) error {
	task, err := j.load(ctx)
	if err != nil {
		return err
	}
	title := gjson.GetBytes(task.Result, "title").String()
	if title == "" {
		j.logger.Warn("result has no issue title", "task_id", task.ID)
		return nil
	}
	spec := gitlab.IssueSpec{
		Title:       title,
		Description: gjson.GetBytes(task.Result, "description").String(),
		Labels:      []string{"ai::generated"},
	}
	iid, err := j.gl.CreateIssue(ctx, task.GitLabProjectID, spec)
	if err != nil {
		return err
	}
	j.logger.Info("created issue from task", "task_id", task.ID, "issue_iid", iid)
	return nil
}

// ExtractReviewPatternsJob stages a pattern extraction request on the
// outbox so the learning pipeline can pick it up asynchronously.
type ExtractReviewPatternsJob struct {
	taskJob
	outbox store.OutboxStore
}

func (j *ExtractReviewPatternsJob) Run(ctx context.Context) error {
	task, err := j.load(ctx)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("review.patterns:%d", task.ID)
	payload := fmt.Sprintf(`{"task_id":%d,"project_id":%d}`, task.ID, task.ProjectID)
	_, err = j.outbox.Write(ctx, &core.OutboxEvent{
		EventType:      "review.patterns_extraction_requested",
		AggregateType:  "task",
		AggregateID:    task.ID,
		Payload:        []byte(payload),
		IdempotencyKey: &key,
	})
	if err != nil {
		return fmt.Errorf("job %s: %w", j.name, err)
	}
	return nil
}

// PostHelpResponseJob answers an unrecognized @ai command with usage help.
// It does not go through a task; the help text is static.
type PostHelpResponseJob struct {
	gitlabProjectID int64
	mrIID           int64
	command         string
	gl              gitlab.Client
}

func (j *PostHelpResponseJob) Name() string { return "post_help_response" }

func (j *PostHelpResponseJob) Run(ctx context.Context) error {
	body := fmt.Sprintf(
		"Unrecognized command %q. Supported commands:\n\n"+
			"- `@ai review` runs a full review of this merge request\n"+
			"- `@ai improve` suggests improvements for the changed code\n"+
			"- `@ai ask \"<question>\"` answers a question about this merge request\n",
		j.command)
	return j.gl.CreateMergeRequestNote(ctx, j.gitlabProjectID, j.mrIID, body)
}

// PostFailureCommentJob notifies the requester that a task failed
// permanently.
type PostFailureCommentJob struct {
	taskJob
	reason string
}

func (j *PostFailureCommentJob) Run(ctx context.Context) error {
	task, err := j.load(ctx)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("The requested %s could not be completed (%s). It will not be retried automatically.", task.Type, j.reason)
	switch {
	case task.HasMergeRequest():
		return j.gl.CreateMergeRequestNote(ctx, task.GitLabProjectID, *task.MergeRequestIID, body)
	case task.HasIssue():
		return j.gl.CreateIssueNote(ctx, task.GitLabProjectID, *task.IssueIID, body)
	default:
		j.logger.Warn("failed task has no comment target", "task_id", task.ID)
		return nil
	}
}
