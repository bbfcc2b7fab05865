package routing

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glpilot/glpilot/internal/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubClassifier is a configurable classifier for registry protocol tests.
type stubClassifier struct {
	name     string
	priority int
	supports bool
	result   *core.RoutingResult
}

func (s *stubClassifier) Name() string                            { return s.name }
func (s *stubClassifier) Priority() int                           { return s.priority }
func (s *stubClassifier) Supports(core.WebhookEvent) bool         { return s.supports }
func (s *stubClassifier) Classify(e core.WebhookEvent) *core.RoutingResult {
	return s.result
}

func mrOpenedEvent() core.WebhookEvent {
	return core.MergeRequestOpened{
		EventBase:       core.EventBase{ProjectID: 1, GitLabProjectID: 1001},
		MergeRequestIID: 42,
		SourceBranch:    "feature/test",
		TargetBranch:    "main",
	}
}

func TestClassifierRegistryOrdering(t *testing.T) {
	event := mrOpenedEvent()

	alpha := &stubClassifier{name: "alpha", priority: 10, supports: true,
		result: core.NewRoutingResult("alpha", core.PriorityNormal, event)}
	beta := &stubClassifier{name: "beta", priority: 10, supports: true,
		result: core.NewRoutingResult("beta", core.PriorityNormal, event)}
	low := &stubClassifier{name: "aaa_low", priority: 1, supports: true,
		result: core.NewRoutingResult("low", core.PriorityNormal, event)}

	// Registration order must not matter.
	registry := NewClassifierRegistry(testLogger(), low, beta, alpha)

	ordered := registry.All()
	require.Len(t, ordered, 3)
	assert.Equal(t, "alpha", ordered[0].Name())
	assert.Equal(t, "beta", ordered[1].Name())
	assert.Equal(t, "aaa_low", ordered[2].Name())

	// Repeated calls return the same order.
	again := registry.All()
	assert.Equal(t, ordered, again)
}

func TestClassifierRegistryFirstMatchWins(t *testing.T) {
	event := mrOpenedEvent()

	winner := &stubClassifier{name: "alpha", priority: 10, supports: true,
		result: core.NewRoutingResult("alpha", core.PriorityNormal, event)}
	loser := &stubClassifier{name: "beta", priority: 10, supports: true,
		result: core.NewRoutingResult("beta", core.PriorityNormal, event)}

	registry := NewClassifierRegistry(testLogger(), loser, winner)

	result := registry.Classify(event)
	require.NotNil(t, result)
	assert.Equal(t, "alpha", result.Intent)
}

func TestClassifierRegistrySkipsNonSupportingAndNilResults(t *testing.T) {
	event := mrOpenedEvent()

	unsupporting := &stubClassifier{name: "a", priority: 100, supports: false,
		result: core.NewRoutingResult("a", core.PriorityNormal, event)}
	abstaining := &stubClassifier{name: "b", priority: 50, supports: true, result: nil}
	matching := &stubClassifier{name: "c", priority: 10, supports: true,
		result: core.NewRoutingResult("c", core.PriorityNormal, event)}

	registry := NewClassifierRegistry(testLogger(), unsupporting, abstaining, matching)

	result := registry.Classify(event)
	require.NotNil(t, result)
	assert.Equal(t, "c", result.Intent)
}

func TestClassifierRegistryNoMatch(t *testing.T) {
	registry := NewClassifierRegistry(testLogger(),
		&stubClassifier{name: "a", priority: 10, supports: false})

	assert.Nil(t, registry.Classify(mrOpenedEvent()))
}

func TestClassifierRegistryEmpty(t *testing.T) {
	registry := NewClassifierRegistry(testLogger())
	assert.Nil(t, registry.Classify(mrOpenedEvent()))
	assert.Empty(t, registry.All())
}
