package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionTo(t *testing.T) {
	all := []TaskStatus{
		StatusReceived, StatusQueued, StatusRunning,
		StatusCompleted, StatusFailed, StatusSuperseded,
	}

	allowed := map[TaskStatus][]TaskStatus{
		StatusReceived: {StatusQueued},
		StatusQueued:   {StatusRunning, StatusSuperseded, StatusFailed},
		StatusRunning:  {StatusCompleted, StatusFailed, StatusSuperseded},
		StatusFailed:   {StatusQueued},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, a := range allowed[from] {
				if a == to {
					want = true
				}
			}
			got := from.CanTransitionTo(to)
			if got != want {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCanTransitionTo_UnknownStates(t *testing.T) {
	assert.False(t, TaskStatus("bogus").CanTransitionTo(StatusQueued))
	assert.False(t, StatusQueued.CanTransitionTo(TaskStatus("bogus")))
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		status TaskStatus
		want   bool
	}{
		{StatusReceived, false},
		{StatusQueued, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusSuperseded, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.IsTerminal(), "IsTerminal(%s)", tt.status)
	}
}

func TestIsFinal(t *testing.T) {
	// failed is terminal for notification purposes but still has the
	// retry edge back to queued, so it is not final.
	assert.True(t, StatusCompleted.IsFinal())
	assert.True(t, StatusSuperseded.IsFinal())
	assert.False(t, StatusFailed.IsFinal())
	assert.False(t, StatusQueued.IsFinal())
}

func TestInvalidTransitionError(t *testing.T) {
	err := &InvalidTransitionError{From: StatusCompleted, To: StatusQueued}
	assert.Contains(t, err.Error(), "completed")
	assert.Contains(t, err.Error(), "queued")
}

func TestPushToBranch_BranchName(t *testing.T) {
	e := PushToBranch{Ref: "refs/heads/feature/login"}
	assert.Equal(t, "feature/login", e.BranchName())

	bare := PushToBranch{Ref: "main"}
	assert.Equal(t, "main", bare.BranchName())
}

func TestIssueLabelChanged_HasLabel(t *testing.T) {
	e := IssueLabelChanged{Labels: []string{"bug", "ai::develop"}}
	assert.True(t, e.HasLabel("ai::develop"))
	assert.False(t, e.HasLabel("ai::review"))
}
