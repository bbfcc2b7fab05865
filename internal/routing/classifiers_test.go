package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glpilot/glpilot/internal/core"
)

type helpCall struct {
	gitlabProjectID int64
	mrIID           int64
	command         string
}

type fakeHelpResponder struct {
	calls []helpCall
}

func (f *fakeHelpResponder) PostHelp(gitlabProjectID, mrIID int64, command string) {
	f.calls = append(f.calls, helpCall{gitlabProjectID, mrIID, command})
}

func mrNote(note string) core.NoteOnMergeRequest {
	return core.NoteOnMergeRequest{
		EventBase:       core.EventBase{ProjectID: 1, GitLabProjectID: 1001},
		MergeRequestIID: 42,
		Note:            note,
		AuthorID:        7,
	}
}

func TestMergeRequestLifecycleClassifier(t *testing.T) {
	c := MergeRequestLifecycleClassifier{}

	tests := []struct {
		name       string
		event      core.WebhookEvent
		wantIntent string
	}{
		{"opened", core.MergeRequestOpened{MergeRequestIID: 1}, core.IntentAutoReview},
		{"updated", core.MergeRequestUpdated{MergeRequestIID: 1}, core.IntentAutoReview},
		{"merged", core.MergeRequestMerged{MergeRequestIID: 1}, core.IntentAcceptanceTracking},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, c.Supports(tt.event))
			result := c.Classify(tt.event)
			require.NotNil(t, result)
			assert.Equal(t, tt.wantIntent, result.Intent)
			assert.Equal(t, core.PriorityNormal, result.Priority)
			assert.Equal(t, tt.event, result.SourceEvent)
		})
	}

	assert.False(t, c.Supports(mrNote("@ai review")))
}

func TestMergeRequestNoteClassifier(t *testing.T) {
	tests := []struct {
		name         string
		note         string
		wantIntent   string
		wantPriority core.Priority
		wantQuestion string
		wantHelp     string
	}{
		{
			name:       "no mention is ignored",
			note:       "looks good to me",
			wantIntent: "",
		},
		{
			name:         "review command",
			note:         "@ai review",
			wantIntent:   core.IntentOnDemandReview,
			wantPriority: core.PriorityHigh,
		},
		{
			name:         "review command case insensitive",
			note:         "Hey @AI Review this please",
			wantIntent:   core.IntentOnDemandReview,
			wantPriority: core.PriorityHigh,
		},
		{
			name:         "improve command",
			note:         "@ai improve",
			wantIntent:   core.IntentImprove,
			wantPriority: core.PriorityNormal,
		},
		{
			name:         "ask command extracts question",
			note:         `@ai ask "why is this loop quadratic?"`,
			wantIntent:   core.IntentAskCommand,
			wantPriority: core.PriorityNormal,
			wantQuestion: "why is this loop quadratic?",
		},
		{
			name:         "unrecognized command triggers help",
			note:         "@ai deploy",
			wantIntent:   core.IntentHelpResponse,
			wantPriority: core.PriorityNormal,
			wantHelp:     "@ai deploy",
		},
		{
			name:         "bare mention triggers help",
			note:         "@ai",
			wantIntent:   core.IntentHelpResponse,
			wantPriority: core.PriorityNormal,
			wantHelp:     "@ai",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			help := &fakeHelpResponder{}
			c := NewMergeRequestNoteClassifier(help)
			event := mrNote(tt.note)

			require.True(t, c.Supports(event))
			result := c.Classify(event)

			if tt.wantIntent == "" {
				assert.Nil(t, result)
				assert.Empty(t, help.calls)
				return
			}

			require.NotNil(t, result)
			assert.Equal(t, tt.wantIntent, result.Intent)
			assert.Equal(t, tt.wantPriority, result.Priority)

			if tt.wantQuestion != "" {
				assert.Equal(t, tt.wantQuestion, result.Meta("question"))
			}

			if tt.wantHelp != "" {
				require.Len(t, help.calls, 1)
				assert.Equal(t, tt.wantHelp, help.calls[0].command)
				assert.Equal(t, int64(1001), help.calls[0].gitlabProjectID)
				assert.Equal(t, int64(42), help.calls[0].mrIID)
			} else {
				assert.Empty(t, help.calls)
			}
		})
	}
}

func TestIssueNoteClassifier(t *testing.T) {
	c := IssueNoteClassifier{}

	mention := core.NoteOnIssue{IssueIID: 5, Note: "@ai what do you think?"}
	require.True(t, c.Supports(mention))
	result := c.Classify(mention)
	require.NotNil(t, result)
	assert.Equal(t, core.IntentIssueDiscussion, result.Intent)
	assert.Equal(t, core.PriorityNormal, result.Priority)

	plain := core.NoteOnIssue{IssueIID: 5, Note: "no bot here"}
	assert.Nil(t, c.Classify(plain))

	assert.False(t, c.Supports(mrNote("@ai hello")))
}

func TestIssueLabelClassifier(t *testing.T) {
	c := NewIssueLabelClassifier("ai::develop")

	triggered := core.IssueLabelChanged{IssueIID: 9, Labels: []string{"bug", "ai::develop"}}
	require.True(t, c.Supports(triggered))
	result := c.Classify(triggered)
	require.NotNil(t, result)
	assert.Equal(t, core.IntentFeatureDev, result.Intent)
	assert.Equal(t, core.PriorityLow, result.Priority)

	other := core.IssueLabelChanged{IssueIID: 9, Labels: []string{"bug"}}
	assert.Nil(t, c.Classify(other))
}

func TestPushToMergeRequestClassifier(t *testing.T) {
	c := PushToMergeRequestClassifier{}

	tracked := core.PushToBranch{Ref: "refs/heads/feature/x", MergeRequestIID: 42}
	require.True(t, c.Supports(tracked))
	result := c.Classify(tracked)
	require.NotNil(t, result)
	assert.Equal(t, core.IntentIncrementalReview, result.Intent)
	assert.Equal(t, core.PriorityNormal, result.Priority)

	untracked := core.PushToBranch{Ref: "refs/heads/scratch"}
	assert.Nil(t, c.Classify(untracked))
}

func TestDefaultClassifierStackAgainstRegistry(t *testing.T) {
	registry := NewClassifierRegistry(testLogger(),
		MergeRequestLifecycleClassifier{},
		NewMergeRequestNoteClassifier(&fakeHelpResponder{}),
		IssueNoteClassifier{},
		NewIssueLabelClassifier("ai::develop"),
		PushToMergeRequestClassifier{},
	)

	result := registry.Classify(mrOpenedEvent())
	require.NotNil(t, result)
	assert.Equal(t, core.IntentAutoReview, result.Intent)

	// A note without a mention falls through every classifier.
	assert.Nil(t, registry.Classify(mrNote("plain comment")))
}
