// Package routing decides what work a webhook event implies. Classifiers map
// events to intents, handlers map intents to task types. Both registries use
// the same deterministic first-match protocol: priority descending, ties
// broken by name.
package routing

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/glpilot/glpilot/internal/core"
)

// IntentClassifier inspects a webhook event and, when it recognizes the event
// as actionable, produces a routing result. Name is a stable identifier used
// for deterministic ordering; it must be unique within a registry.
type IntentClassifier interface {
	Name() string
	Priority() int
	Supports(event core.WebhookEvent) bool
	Classify(event core.WebhookEvent) *core.RoutingResult
}

// ClassifierRegistry holds an unordered set of classifiers and evaluates them
// in a stable order: priority descending, name ascending on ties. The order
// is computed once on first use; recomputation under a first-access race is
// harmless since sorting is pure.
type ClassifierRegistry struct {
	classifiers []IntentClassifier
	logger      *slog.Logger

	once    sync.Once
	ordered []IntentClassifier
}

// NewClassifierRegistry builds a registry over an explicit classifier set.
// Registration is explicit so ordering stays auditable.
func NewClassifierRegistry(logger *slog.Logger, classifiers ...IntentClassifier) *ClassifierRegistry {
	return &ClassifierRegistry{classifiers: classifiers, logger: logger}
}

// All returns the classifiers in evaluation order. The returned slice is
// shared; callers must not mutate it.
func (r *ClassifierRegistry) All() []IntentClassifier {
	r.once.Do(func() {
		ordered := make([]IntentClassifier, len(r.classifiers))
		copy(ordered, r.classifiers)
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

// Classify returns the result of the first supporting classifier that yields
// one, or nil when no classifier recognizes the event. A nil result means the
// event is dropped; that is a valid outcome, not an error.
func (r *ClassifierRegistry) Classify(event core.WebhookEvent) *core.RoutingResult {
	for _, c := range r.All() {
		if !c.Supports(event) {
			continue
		}
		if result := c.Classify(event); result != nil {
			r.logger.Debug("event classified",
				"event", event.Kind(),
				"classifier", c.Name(),
				"intent", result.Intent,
				"priority", result.Priority,
			)
			return result
		}
	}
	r.logger.Debug("no classifier matched event", "event", event.Kind())
	return nil
}
