// Package publish fans a finished task out to every interested result
// publisher. Unlike the routing registries this is not first-match: each
// publisher decides independently whether to act, and several publishers may
// act on the same task.
package publish

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/glpilot/glpilot/internal/core"
)

// SideEffects enumerates the asynchronous follow-up jobs a publisher can
// trigger. Implementations enqueue the job and return immediately; each job
// accepts a task identifier, performs one external action, and reports its
// own success or failure independently of this package.
type SideEffects interface {
	PostSummaryComment(taskID int64) error
	PostInlineThreads(taskID int64) error
	PostLabelsAndStatus(taskID int64) error
	PostAnswerComment(taskID int64) error
	PostIssueComment(taskID int64) error
	PostFeatureDevResult(taskID int64) error
	CreateIssueFromTask(taskID int64) error
	ExtractReviewPatterns(taskID int64) error
}

// ResultPublisher decides whether and how a task's outcome triggers
// downstream side effects. Supports must be pure; Publish only enqueues.
type ResultPublisher interface {
	Name() string
	Priority() int
	Supports(task *core.Task) bool
	Publish(task *core.Task) error
}

// Registry holds the publisher set and evaluates all of them, in priority
// order (descending, name ascending on ties), against each task.
type Registry struct {
	publishers []ResultPublisher
	logger     *slog.Logger

	once    sync.Once
	ordered []ResultPublisher
}

func NewRegistry(logger *slog.Logger, publishers ...ResultPublisher) *Registry {
	return &Registry{publishers: publishers, logger: logger}
}

// All returns the publishers in evaluation order.
func (r *Registry) All() []ResultPublisher {
	r.once.Do(func() {
		ordered := make([]ResultPublisher, len(r.publishers))
		copy(ordered, r.publishers)
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

// Publish runs every supporting publisher against the task. A failing
// publisher is logged and does not stop the fan-out; publishers are
// independent consumers. Returns the names of the publishers that fired.
func (r *Registry) Publish(task *core.Task) []string {
	var fired []string
	for _, p := range r.All() {
		if !p.Supports(task) {
			continue
		}
		if err := p.Publish(task); err != nil {
			r.logger.Error("result publisher failed",
				"publisher", p.Name(),
				"task_id", task.ID,
				"error", err,
			)
			continue
		}
		r.logger.Info("result published",
			"publisher", p.Name(),
			"task_id", task.ID,
			"task_type", task.Type,
		)
		fired = append(fired, p.Name())
	}
	return fired
}
