package gitlab

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// InlinePosition anchors a discussion thread to a line in a merge request diff.
type InlinePosition struct {
	BaseSHA  string
	StartSHA string
	HeadSHA  string
	NewPath  string
	NewLine  int
}

// IssueSpec holds the fields needed to create a GitLab issue.
type IssueSpec struct {
	Title       string
	Description string
	Labels      []string
}

// Client defines the GitLab operations the application performs. Every method
// normalizes failures into *APIError so the retry middleware can classify them.
type Client interface {
	CreateMergeRequestNote(ctx context.Context, projectID int64, mrIID int64, body string) error
	CreateIssueNote(ctx context.Context, projectID int64, issueIID int64, body string) error
	CreateMergeRequestDiscussion(ctx context.Context, projectID int64, mrIID int64, body string, pos *InlinePosition) error
	AddMergeRequestLabels(ctx context.Context, projectID int64, mrIID int64, labels []string) error
	SetCommitStatus(ctx context.Context, projectID int64, sha, state, name, description string) error
	CreateIssue(ctx context.Context, projectID int64, spec IssueSpec) (int64, error)
	FindOpenMergeRequestForBranch(ctx context.Context, projectID int64, sourceBranch string) (int64, bool, error)
	RegisterWebhook(ctx context.Context, projectID int64, url, secretToken string) error
}

type apiClient struct {
	gl     *gitlab.Client
	logger *slog.Logger
}

// NewClient wraps the official GitLab client with a focused, testable
// interface authenticated by a bot personal access token.
func NewClient(token, baseURL string, logger *slog.Logger) (Client, error) {
	var (
		gl  *gitlab.Client
		err error
	)
	if baseURL == "" {
		gl, err = gitlab.NewClient(token)
	} else {
		apiURL := strings.TrimSuffix(baseURL, "/") + "/api/v4"
		gl, err = gitlab.NewClient(token, gitlab.WithBaseURL(apiURL))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create gitlab client: %w", err)
	}
	return &apiClient{gl: gl, logger: logger}, nil
}

func (c *apiClient) CreateMergeRequestNote(ctx context.Context, projectID int64, mrIID int64, body string) error {
	_, _, err := c.gl.Notes.CreateMergeRequestNote(projectID, int(mrIID), &gitlab.CreateMergeRequestNoteOptions{
		Body: gitlab.Ptr(body),
	}, gitlab.WithContext(ctx))
	return WrapError(err, "create_merge_request_note")
}

func (c *apiClient) CreateIssueNote(ctx context.Context, projectID int64, issueIID int64, body string) error {
	_, _, err := c.gl.Notes.CreateIssueNote(projectID, int(issueIID), &gitlab.CreateIssueNoteOptions{
		Body: gitlab.Ptr(body),
	}, gitlab.WithContext(ctx))
	return WrapError(err, "create_issue_note")
}

func (c *apiClient) CreateMergeRequestDiscussion(ctx context.Context, projectID int64, mrIID int64, body string, pos *InlinePosition) error {
	opt := &gitlab.CreateMergeRequestDiscussionOptions{
		Body: gitlab.Ptr(body),
	}
	if pos != nil {
		opt.Position = &gitlab.PositionOptions{
			BaseSHA:      gitlab.Ptr(pos.BaseSHA),
			StartSHA:     gitlab.Ptr(pos.StartSHA),
			HeadSHA:      gitlab.Ptr(pos.HeadSHA),
			NewPath:      gitlab.Ptr(pos.NewPath),
			NewLine:      gitlab.Ptr(pos.NewLine),
			PositionType: gitlab.Ptr("text"),
		}
	}
	_, _, err := c.gl.Discussions.CreateMergeRequestDiscussion(projectID, int(mrIID), opt, gitlab.WithContext(ctx))
	return WrapError(err, "create_merge_request_discussion")
}

func (c *apiClient) AddMergeRequestLabels(ctx context.Context, projectID int64, mrIID int64, labels []string) error {
	addLabels := gitlab.LabelOptions(labels)
	_, _, err := c.gl.MergeRequests.UpdateMergeRequest(projectID, int(mrIID), &gitlab.UpdateMergeRequestOptions{
		AddLabels: &addLabels,
	}, gitlab.WithContext(ctx))
	return WrapError(err, "add_merge_request_labels")
}

func (c *apiClient) SetCommitStatus(ctx context.Context, projectID int64, sha, state, name, description string) error {
	_, _, err := c.gl.Commits.SetCommitStatus(projectID, sha, &gitlab.SetCommitStatusOptions{
		State:       gitlab.BuildStateValue(state),
		Name:        gitlab.Ptr(name),
		Description: gitlab.Ptr(description),
	}, gitlab.WithContext(ctx))
	return WrapError(err, "set_commit_status")
}

func (c *apiClient) CreateIssue(ctx context.Context, projectID int64, spec IssueSpec) (int64, error) {
	opt := &gitlab.CreateIssueOptions{
		Title:       gitlab.Ptr(spec.Title),
		Description: gitlab.Ptr(spec.Description),
	}
	if len(spec.Labels) > 0 {
		labels := gitlab.LabelOptions(spec.Labels)
		opt.Labels = &labels
	}
	issue, _, err := c.gl.Issues.CreateIssue(projectID, opt, gitlab.WithContext(ctx))
	if err != nil {
		return 0, WrapError(err, "create_issue")
	}
	return int64(issue.IID), nil
}

func (c *apiClient) FindOpenMergeRequestForBranch(ctx context.Context, projectID int64, sourceBranch string) (int64, bool, error) {
	mrs, _, err := c.gl.MergeRequests.ListProjectMergeRequests(projectID, &gitlab.ListProjectMergeRequestsOptions{
		State:        gitlab.Ptr("opened"),
		SourceBranch: gitlab.Ptr(sourceBranch),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return 0, false, WrapError(err, "find_open_merge_request_for_branch")
	}
	if len(mrs) == 0 {
		return 0, false, nil
	}
	return int64(mrs[0].IID), true, nil
}

func (c *apiClient) RegisterWebhook(ctx context.Context, projectID int64, url, secretToken string) error {
	_, _, err := c.gl.Projects.AddProjectHook(projectID, &gitlab.AddProjectHookOptions{
		URL:                   gitlab.Ptr(url),
		Token:                 gitlab.Ptr(secretToken),
		MergeRequestsEvents:   gitlab.Ptr(true),
		NoteEvents:            gitlab.Ptr(true),
		IssuesEvents:          gitlab.Ptr(true),
		PushEvents:            gitlab.Ptr(true),
		EnableSSLVerification: gitlab.Ptr(true),
	}, gitlab.WithContext(ctx))
	return WrapError(err, "register_webhook")
}
