package routing

import (
	"regexp"

	"github.com/glpilot/glpilot/internal/core"
)

// HelpResponder posts a help comment on a merge request when a mention
// carries an unrecognized command. Implementations enqueue the response
// asynchronously and must not block.
type HelpResponder interface {
	PostHelp(gitlabProjectID, mrIID int64, unrecognizedCommand string)
}

var (
	mentionRe      = regexp.MustCompile(`(?i)@ai\b`)
	askRe          = regexp.MustCompile(`@ai\s+ask\s+"([^"]+)"`)
	reviewRe       = regexp.MustCompile(`(?i)@ai\s+review\b`)
	improveRe      = regexp.MustCompile(`(?i)@ai\s+improve\b`)
	unrecognizedRe = regexp.MustCompile(`@ai\s+(\S+)`)
)

// MergeRequestLifecycleClassifier routes MR open/update to automatic review
// and MR merge to acceptance tracking.
type MergeRequestLifecycleClassifier struct{}

func (MergeRequestLifecycleClassifier) Name() string  { return "merge_request_lifecycle" }
func (MergeRequestLifecycleClassifier) Priority() int { return 100 }

func (MergeRequestLifecycleClassifier) Supports(event core.WebhookEvent) bool {
	switch event.(type) {
	case core.MergeRequestOpened, core.MergeRequestUpdated, core.MergeRequestMerged:
		return true
	default:
		return false
	}
}

func (MergeRequestLifecycleClassifier) Classify(event core.WebhookEvent) *core.RoutingResult {
	switch event.(type) {
	case core.MergeRequestOpened, core.MergeRequestUpdated:
		return core.NewRoutingResult(core.IntentAutoReview, core.PriorityNormal, event)
	case core.MergeRequestMerged:
		return core.NewRoutingResult(core.IntentAcceptanceTracking, core.PriorityNormal, event)
	default:
		return nil
	}
}

// MergeRequestNoteClassifier parses @ai commands on merge request notes.
//
// Grammar:
//   - @ai ask "<question>"  -> ask_command, the question goes into metadata
//   - @ai review            -> on_demand_review (high)
//   - @ai improve           -> improve (normal)
//   - @ai <anything else>   -> help_response, plus an async help comment
//   - no mention            -> not actionable
type MergeRequestNoteClassifier struct {
	help HelpResponder
}

func NewMergeRequestNoteClassifier(help HelpResponder) *MergeRequestNoteClassifier {
	return &MergeRequestNoteClassifier{help: help}
}

func (*MergeRequestNoteClassifier) Name() string  { return "merge_request_note" }
func (*MergeRequestNoteClassifier) Priority() int { return 90 }

func (*MergeRequestNoteClassifier) Supports(event core.WebhookEvent) bool {
	_, ok := event.(core.NoteOnMergeRequest)
	return ok
}

func (c *MergeRequestNoteClassifier) Classify(event core.WebhookEvent) *core.RoutingResult {
	note, ok := event.(core.NoteOnMergeRequest)
	if !ok {
		return nil
	}

	if !mentionRe.MatchString(note.Note) {
		return nil
	}

	if m := askRe.FindStringSubmatch(note.Note); m != nil {
		result := core.NewRoutingResult(core.IntentAskCommand, core.PriorityNormal, event)
		result.Metadata = map[string]any{"question": m[1]}
		return result
	}

	if reviewRe.MatchString(note.Note) {
		return core.NewRoutingResult(core.IntentOnDemandReview, core.PriorityHigh, event)
	}
	if improveRe.MatchString(note.Note) {
		return core.NewRoutingResult(core.IntentImprove, core.PriorityNormal, event)
	}

	if c.help != nil {
		c.help.PostHelp(note.GitLabProjectID, note.MergeRequestIID, extractUnrecognizedCommand(note.Note))
	}
	return core.NewRoutingResult(core.IntentHelpResponse, core.PriorityNormal, event)
}

// extractUnrecognizedCommand pulls the first token after the mention for the
// help response text.
func extractUnrecognizedCommand(note string) string {
	if m := unrecognizedRe.FindStringSubmatch(note); m != nil {
		return "@ai " + m[1]
	}
	return "@ai"
}

// IssueNoteClassifier routes any @ai mention on an issue note to an issue
// discussion.
type IssueNoteClassifier struct{}

func (IssueNoteClassifier) Name() string  { return "issue_note" }
func (IssueNoteClassifier) Priority() int { return 80 }

func (IssueNoteClassifier) Supports(event core.WebhookEvent) bool {
	_, ok := event.(core.NoteOnIssue)
	return ok
}

func (IssueNoteClassifier) Classify(event core.WebhookEvent) *core.RoutingResult {
	note, ok := event.(core.NoteOnIssue)
	if !ok {
		return nil
	}
	if !mentionRe.MatchString(note.Note) {
		return nil
	}
	return core.NewRoutingResult(core.IntentIssueDiscussion, core.PriorityNormal, event)
}

// IssueLabelClassifier triggers feature development when the configured
// trigger label is applied to an issue.
type IssueLabelClassifier struct {
	triggerLabel string
}

func NewIssueLabelClassifier(triggerLabel string) *IssueLabelClassifier {
	return &IssueLabelClassifier{triggerLabel: triggerLabel}
}

func (*IssueLabelClassifier) Name() string  { return "issue_label" }
func (*IssueLabelClassifier) Priority() int { return 70 }

func (*IssueLabelClassifier) Supports(event core.WebhookEvent) bool {
	_, ok := event.(core.IssueLabelChanged)
	return ok
}

func (c *IssueLabelClassifier) Classify(event core.WebhookEvent) *core.RoutingResult {
	change, ok := event.(core.IssueLabelChanged)
	if !ok {
		return nil
	}
	if !change.HasLabel(c.triggerLabel) {
		return nil
	}
	return core.NewRoutingResult(core.IntentFeatureDev, core.PriorityLow, event)
}

// PushToMergeRequestClassifier routes pushes to branches tracked by an open
// merge request into an incremental review.
type PushToMergeRequestClassifier struct{}

func (PushToMergeRequestClassifier) Name() string  { return "push_to_merge_request" }
func (PushToMergeRequestClassifier) Priority() int { return 60 }

func (PushToMergeRequestClassifier) Supports(event core.WebhookEvent) bool {
	_, ok := event.(core.PushToBranch)
	return ok
}

func (PushToMergeRequestClassifier) Classify(event core.WebhookEvent) *core.RoutingResult {
	push, ok := event.(core.PushToBranch)
	if !ok {
		return nil
	}
	if push.MergeRequestIID == 0 {
		return nil
	}
	return core.NewRoutingResult(core.IntentIncrementalReview, core.PriorityNormal, event)
}
