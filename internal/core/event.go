// Package core defines the essential interfaces and data structures that form the
// backbone of the application. These components are designed to be abstract,
// allowing for flexible and decoupled implementations of the application's logic.
package core

import "encoding/json"

// WebhookEvent is the internal view of a normalized GitLab webhook event.
// Implementations are immutable value types; classifiers dispatch on the
// concrete variant via type switches.
type WebhookEvent interface {
	// Kind returns a stable identifier for the event variant.
	Kind() string
	// Project returns the internal project ID and the GitLab project ID.
	Project() (projectID int64, gitlabProjectID int64)
	// RawPayload returns the original webhook payload as received.
	RawPayload() json.RawMessage
}

// EventBase carries the fields common to every webhook event variant.
type EventBase struct {
	ProjectID       int64
	GitLabProjectID int64
	Payload         json.RawMessage
}

func (e EventBase) Project() (int64, int64) { return e.ProjectID, e.GitLabProjectID }
func (e EventBase) RawPayload() json.RawMessage { return e.Payload }

// MergeRequestOpened signals a newly opened merge request.
type MergeRequestOpened struct {
	EventBase
	MergeRequestIID int64
	SourceBranch    string
	TargetBranch    string
	AuthorID        int64
	LastCommitSHA   string
}

func (MergeRequestOpened) Kind() string { return "merge_request_opened" }

// MergeRequestUpdated signals new commits or metadata changes on an open MR.
type MergeRequestUpdated struct {
	EventBase
	MergeRequestIID int64
	SourceBranch    string
	TargetBranch    string
	AuthorID        int64
	LastCommitSHA   string
}

func (MergeRequestUpdated) Kind() string { return "merge_request_updated" }

// MergeRequestMerged signals that a merge request was merged.
type MergeRequestMerged struct {
	EventBase
	MergeRequestIID int64
	SourceBranch    string
	TargetBranch    string
	AuthorID        int64
	LastCommitSHA   string
}

func (MergeRequestMerged) Kind() string { return "merge_request_merged" }

// NoteOnMergeRequest is a comment posted on a merge request.
type NoteOnMergeRequest struct {
	EventBase
	MergeRequestIID int64
	Note            string
	AuthorID        int64
}

func (NoteOnMergeRequest) Kind() string { return "note_on_merge_request" }

// NoteOnIssue is a comment posted on an issue.
type NoteOnIssue struct {
	EventBase
	IssueIID int64
	Note     string
	AuthorID int64
}

func (NoteOnIssue) Kind() string { return "note_on_issue" }

// IssueLabelChanged signals that an issue's label set changed.
type IssueLabelChanged struct {
	EventBase
	IssueIID int64
	Action   string
	AuthorID int64
	Labels   []string
}

func (IssueLabelChanged) Kind() string { return "issue_label_changed" }

// HasLabel reports whether the issue currently carries the given label.
func (e IssueLabelChanged) HasLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// PushToBranch signals commits pushed to a branch. MergeRequestIID is
// resolved by the intake layer before classification: non-zero when an open
// merge request tracks the pushed branch, zero otherwise. Classifiers stay
// free of I/O this way.
type PushToBranch struct {
	EventBase
	Ref               string
	Before            string
	After             string
	UserID            int64
	TotalCommitsCount int
	MergeRequestIID   int64
}

func (PushToBranch) Kind() string { return "push_to_branch" }

// BranchName strips the refs/heads/ prefix from the push ref.
func (e PushToBranch) BranchName() string {
	const prefix = "refs/heads/"
	if len(e.Ref) > len(prefix) && e.Ref[:len(prefix)] == prefix {
		return e.Ref[len(prefix):]
	}
	return e.Ref
}
