package core

// Priority ranks how urgently a piece of work should be scheduled.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Well-known intents produced by the built-in classifiers. The intent key is
// deliberately a free-form string so new intents can be added without touching
// the classifier protocol.
const (
	IntentAutoReview         = "auto_review"
	IntentOnDemandReview     = "on_demand_review"
	IntentIncrementalReview  = "incremental_review"
	IntentImprove            = "improve"
	IntentAskCommand         = "ask_command"
	IntentIssueDiscussion    = "issue_discussion"
	IntentFeatureDev         = "feature_dev"
	IntentHelpResponse       = "help_response"
	IntentAcceptanceTracking = "acceptance_tracking"
)

// RoutingResult is the outcome of classifying a webhook event: what kind of
// work the event implies and how urgent it is. Immutable once constructed.
type RoutingResult struct {
	Intent      string
	Priority    Priority
	SourceEvent WebhookEvent
	Metadata    map[string]any
}

// NewRoutingResult builds a routing result without metadata.
func NewRoutingResult(intent string, priority Priority, event WebhookEvent) *RoutingResult {
	return &RoutingResult{Intent: intent, Priority: priority, SourceEvent: event}
}

// Meta returns the string metadata value for key, or "" when absent.
func (r *RoutingResult) Meta(key string) string {
	if r.Metadata == nil {
		return ""
	}
	if v, ok := r.Metadata[key].(string); ok {
		return v
	}
	return ""
}
