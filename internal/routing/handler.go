package routing

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/glpilot/glpilot/internal/core"
)

// TaskHandler maps a routing result to a concrete task type. Same first-match
// protocol as the classifier registry, keyed by intent.
type TaskHandler interface {
	Name() string
	Priority() int
	Supports(result *core.RoutingResult) bool
	ResolveTaskType(result *core.RoutingResult) (core.TaskType, bool)
}

// HandlerRegistry evaluates handlers in deterministic order and resolves the
// task type from the first supporting handler.
type HandlerRegistry struct {
	handlers []TaskHandler
	logger   *slog.Logger

	once    sync.Once
	ordered []TaskHandler
}

func NewHandlerRegistry(logger *slog.Logger, handlers ...TaskHandler) *HandlerRegistry {
	return &HandlerRegistry{handlers: handlers, logger: logger}
}

// All returns the handlers in evaluation order: priority descending, name
// ascending on ties.
func (r *HandlerRegistry) All() []TaskHandler {
	r.once.Do(func() {
		ordered := make([]TaskHandler, len(r.handlers))
		copy(ordered, r.handlers)
		sort.Slice(ordered, func(i, j int) bool {
			if ordered[i].Priority() != ordered[j].Priority() {
				return ordered[i].Priority() > ordered[j].Priority()
			}
			return ordered[i].Name() < ordered[j].Name()
		})
		r.ordered = ordered
	})
	return r.ordered
}

// ResolveTaskType returns the task type from the first supporting handler.
// An intent no handler recognizes resolves to no task; the event was
// classified but is not actionable.
func (r *HandlerRegistry) ResolveTaskType(result *core.RoutingResult) (core.TaskType, bool) {
	for _, h := range r.All() {
		if !h.Supports(result) {
			continue
		}
		if taskType, ok := h.ResolveTaskType(result); ok {
			r.logger.Debug("task type resolved",
				"intent", result.Intent,
				"handler", h.Name(),
				"task_type", taskType,
			)
			return taskType, true
		}
	}
	r.logger.Debug("no handler for intent", "intent", result.Intent)
	return "", false
}

// intentHandler is the common shape of the built-in handlers: a fixed intent
// set resolving to a single task type.
type intentHandler struct {
	name     string
	priority int
	intents  map[string]bool
	taskType core.TaskType
}

func (h *intentHandler) Name() string  { return h.name }
func (h *intentHandler) Priority() int { return h.priority }

func (h *intentHandler) Supports(result *core.RoutingResult) bool {
	return h.intents[result.Intent]
}

func (h *intentHandler) ResolveTaskType(result *core.RoutingResult) (core.TaskType, bool) {
	if !h.intents[result.Intent] {
		return "", false
	}
	return h.taskType, true
}

// NewCodeReviewHandler resolves every review-flavored intent to a code-review
// task.
func NewCodeReviewHandler() TaskHandler {
	return &intentHandler{
		name:     "code_review",
		priority: 100,
		intents: map[string]bool{
			core.IntentAutoReview:        true,
			core.IntentOnDemandReview:    true,
			core.IntentIncrementalReview: true,
			core.IntentImprove:           true,
		},
		taskType: core.TaskTypeCodeReview,
	}
}

// NewIssueDiscussionHandler resolves ask commands and issue discussions.
func NewIssueDiscussionHandler() TaskHandler {
	return &intentHandler{
		name:     "issue_discussion",
		priority: 90,
		intents: map[string]bool{
			core.IntentAskCommand:      true,
			core.IntentIssueDiscussion: true,
		},
		taskType: core.TaskTypeIssueDiscussion,
	}
}

// NewFeatureDevHandler resolves feature development requests.
func NewFeatureDevHandler() TaskHandler {
	return &intentHandler{
		name:     "feature_dev",
		priority: 80,
		intents: map[string]bool{
			core.IntentFeatureDev: true,
		},
		taskType: core.TaskTypeFeatureDev,
	}
}

// DefaultHandlers returns the built-in handler set.
func DefaultHandlers() []TaskHandler {
	return []TaskHandler{
		NewCodeReviewHandler(),
		NewIssueDiscussionHandler(),
		NewFeatureDevHandler(),
	}
}
