package publish

import (
	"github.com/tidwall/gjson"

	"github.com/glpilot/glpilot/internal/core"
)

// Flags are the feature switches publishers consult. They are injected
// explicitly so publisher guards stay pure and testable.
type Flags struct {
	MemoryEnabled  bool
	ReviewLearning bool
}

// resultField probes the task's opaque result payload without committing to
// its schema.
func resultField(task *core.Task, path string) gjson.Result {
	if len(task.Result) == 0 {
		return gjson.Result{}
	}
	return gjson.GetBytes(task.Result, path)
}

func isReviewTask(task *core.Task) bool {
	return task.Type == core.TaskTypeCodeReview || task.Type == core.TaskTypeSecurityAudit
}

// CodeReviewPublisher posts the full review surface on the merge request:
// summary comment, inline threads, then labels and commit status.
type CodeReviewPublisher struct {
	effects SideEffects
}

func NewCodeReviewPublisher(effects SideEffects) *CodeReviewPublisher {
	return &CodeReviewPublisher{effects: effects}
}

func (*CodeReviewPublisher) Name() string  { return "code_review" }
func (*CodeReviewPublisher) Priority() int { return 100 }

func (p *CodeReviewPublisher) Supports(task *core.Task) bool {
	return isReviewTask(task) && task.HasMergeRequest()
}

func (p *CodeReviewPublisher) Publish(task *core.Task) error {
	if err := p.effects.PostSummaryComment(task.ID); err != nil {
		return err
	}
	if err := p.effects.PostInlineThreads(task.ID); err != nil {
		return err
	}
	return p.effects.PostLabelsAndStatus(task.ID)
}

// AskCommandPublisher answers an @ai ask interaction on a merge request.
type AskCommandPublisher struct {
	effects SideEffects
}

func NewAskCommandPublisher(effects SideEffects) *AskCommandPublisher {
	return &AskCommandPublisher{effects: effects}
}

func (*AskCommandPublisher) Name() string  { return "ask_command" }
func (*AskCommandPublisher) Priority() int { return 90 }

func (p *AskCommandPublisher) Supports(task *core.Task) bool {
	return task.Type == core.TaskTypeIssueDiscussion &&
		task.HasMergeRequest() &&
		resultField(task, "intent").String() == core.IntentAskCommand
}

func (p *AskCommandPublisher) Publish(task *core.Task) error {
	return p.effects.PostAnswerComment(task.ID)
}

// IssueDiscussionPublisher posts a reply on the issue for discussion tasks.
type IssueDiscussionPublisher struct {
	effects SideEffects
}

func NewIssueDiscussionPublisher(effects SideEffects) *IssueDiscussionPublisher {
	return &IssueDiscussionPublisher{effects: effects}
}

func (*IssueDiscussionPublisher) Name() string  { return "issue_discussion" }
func (*IssueDiscussionPublisher) Priority() int { return 80 }

func (p *IssueDiscussionPublisher) Supports(task *core.Task) bool {
	return task.Type == core.TaskTypeIssueDiscussion &&
		task.HasIssue() &&
		resultField(task, "intent").String() != core.IntentAskCommand
}

func (p *IssueDiscussionPublisher) Publish(task *core.Task) error {
	return p.effects.PostIssueComment(task.ID)
}

// FeatureDevPublisher reports feature-development and UI-adjustment outcomes
// back to the originating issue or conversation.
type FeatureDevPublisher struct {
	effects SideEffects
}

func NewFeatureDevPublisher(effects SideEffects) *FeatureDevPublisher {
	return &FeatureDevPublisher{effects: effects}
}

func (*FeatureDevPublisher) Name() string  { return "feature_dev" }
func (*FeatureDevPublisher) Priority() int { return 70 }

func (p *FeatureDevPublisher) Supports(task *core.Task) bool {
	if task.Type != core.TaskTypeFeatureDev && task.Type != core.TaskTypeUIAdjustment {
		return false
	}
	return task.HasIssue() || task.ConversationID != nil
}

func (p *FeatureDevPublisher) Publish(task *core.Task) error {
	return p.effects.PostFeatureDevResult(task.ID)
}

// PRDCreationPublisher turns a finished PRD task into a GitLab issue.
type PRDCreationPublisher struct {
	effects SideEffects
}

func NewPRDCreationPublisher(effects SideEffects) *PRDCreationPublisher {
	return &PRDCreationPublisher{effects: effects}
}

func (*PRDCreationPublisher) Name() string  { return "prd_creation" }
func (*PRDCreationPublisher) Priority() int { return 60 }

func (p *PRDCreationPublisher) Supports(task *core.Task) bool {
	return task.Type == core.TaskTypePRDCreation
}

func (p *PRDCreationPublisher) Publish(task *core.Task) error {
	return p.effects.CreateIssueFromTask(task.ID)
}

// ReviewPatternExtractionPublisher feeds review findings into longer-term
// project memory. Gated by two independent feature flags.
type ReviewPatternExtractionPublisher struct {
	effects SideEffects
	flags   Flags
}

func NewReviewPatternExtractionPublisher(effects SideEffects, flags Flags) *ReviewPatternExtractionPublisher {
	return &ReviewPatternExtractionPublisher{effects: effects, flags: flags}
}

func (*ReviewPatternExtractionPublisher) Name() string  { return "review_pattern_extraction" }
func (*ReviewPatternExtractionPublisher) Priority() int { return 50 }

func (p *ReviewPatternExtractionPublisher) Supports(task *core.Task) bool {
	if !p.flags.MemoryEnabled || !p.flags.ReviewLearning {
		return false
	}
	if !isReviewTask(task) {
		return false
	}
	findings := resultField(task, "findings")
	return findings.IsArray() && len(findings.Array()) > 0
}

func (p *ReviewPatternExtractionPublisher) Publish(task *core.Task) error {
	return p.effects.ExtractReviewPatterns(task.ID)
}

// DefaultPublishers returns the built-in publisher set.
func DefaultPublishers(effects SideEffects, flags Flags) []ResultPublisher {
	return []ResultPublisher{
		NewCodeReviewPublisher(effects),
		NewAskCommandPublisher(effects),
		NewIssueDiscussionPublisher(effects),
		NewFeatureDevPublisher(effects),
		NewPRDCreationPublisher(effects),
		NewReviewPatternExtractionPublisher(effects, flags),
	}
}
