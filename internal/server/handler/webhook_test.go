package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glpilot/glpilot/internal/config"
	"github.com/glpilot/glpilot/internal/core"
	"github.com/glpilot/glpilot/internal/gitlab"
	"github.com/glpilot/glpilot/internal/routing"
	"github.com/glpilot/glpilot/internal/service"
	"github.com/glpilot/glpilot/internal/store"
)

const webhookSecret = "s3cret"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProjectStore struct {
	store.ProjectStore

	projects map[int64]*core.Project
}

func (f *fakeProjectStore) GetByGitLabID(_ context.Context, gitlabProjectID int64) (*core.Project, error) {
	p, ok := f.projects[gitlabProjectID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

type fakeTaskStore struct {
	store.TaskStore

	created []*core.Task
	nextID  int64
}

func (f *fakeTaskStore) Create(_ context.Context, task *core.Task) error {
	f.nextID++
	task.ID = f.nextID
	f.created = append(f.created, task)
	return nil
}

func (f *fakeTaskStore) Transition(_ context.Context, task *core.Task, to core.TaskStatus, _ string) error {
	task.Status = to
	return nil
}

func (f *fakeTaskStore) SupersedeForMergeRequest(_ context.Context, _, _, _ int64) (int64, error) {
	return 0, nil
}

type fakeOutbox struct {
	events []*core.OutboxEvent
}

func (f *fakeOutbox) Write(_ context.Context, event *core.OutboxEvent) (*core.OutboxEvent, error) {
	f.events = append(f.events, event)
	return event, nil
}

type fakeDeliveryStore struct {
	seen map[string]bool
}

func (f *fakeDeliveryStore) MarkSeen(_ context.Context, eventUUID string, _ int64) (bool, error) {
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[eventUUID] {
		return true, nil
	}
	f.seen[eventUUID] = true
	return false, nil
}

type stubGitLabClient struct {
	openMR int64
}

func (c *stubGitLabClient) CreateMergeRequestNote(context.Context, int64, int64, string) error {
	return nil
}
func (c *stubGitLabClient) CreateIssueNote(context.Context, int64, int64, string) error { return nil }
func (c *stubGitLabClient) CreateMergeRequestDiscussion(context.Context, int64, int64, string, *gitlab.InlinePosition) error {
	return nil
}
func (c *stubGitLabClient) AddMergeRequestLabels(context.Context, int64, int64, []string) error {
	return nil
}
func (c *stubGitLabClient) SetCommitStatus(context.Context, int64, string, string, string, string) error {
	return nil
}
func (c *stubGitLabClient) CreateIssue(context.Context, int64, gitlab.IssueSpec) (int64, error) {
	return 0, nil
}
func (c *stubGitLabClient) FindOpenMergeRequestForBranch(context.Context, int64, string) (int64, bool, error) {
	return c.openMR, c.openMR > 0, nil
}
func (c *stubGitLabClient) RegisterWebhook(context.Context, int64, string, string) error { return nil }

func newTestWebhookHandler(t *testing.T, client *stubGitLabClient) (*WebhookHandler, *fakeTaskStore) {
	t.Helper()
	tasks := &fakeTaskStore{}
	projects := &fakeProjectStore{projects: map[int64]*core.Project{
		42: {ID: 1, GitLabProjectID: 42, Name: "demo", Enabled: true},
		43: {ID: 2, GitLabProjectID: 43, Name: "paused", Enabled: false},
	}}
	classifiers := routing.NewClassifierRegistry(testLogger(),
		routing.MergeRequestLifecycleClassifier{},
		routing.NewMergeRequestNoteClassifier(nil),
		routing.IssueNoteClassifier{},
		routing.NewIssueLabelClassifier("ai::develop"),
		routing.PushToMergeRequestClassifier{},
	)
	handlers := routing.NewHandlerRegistry(testLogger(), routing.DefaultHandlers()...)
	intake := service.NewIntake(classifiers, handlers, tasks, &fakeOutbox{}, 0, testLogger())
	cfg := &config.Config{GitLabWebhookSecret: webhookSecret}
	return NewWebhookHandler(cfg, projects, &fakeDeliveryStore{}, client, intake, testLogger()), tasks
}

func postWebhook(t *testing.T, h *WebhookHandler, eventHeader, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/gitlab", bytes.NewBufferString(body))
	req.Header.Set("X-Gitlab-Event", eventHeader)
	req.Header.Set("X-Gitlab-Token", token)
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

const mrOpenedPayload = `{
	"object_kind": "merge_request",
	"project": {"id": 42},
	"object_attributes": {
		"iid": 5,
		"action": "open",
		"source_branch": "feature/cache",
		"target_branch": "main",
		"author_id": 7,
		"last_commit": {"id": "abc123"}
	}
}`

func TestHandleRejectsInvalidToken(t *testing.T) {
	h, tasks := newTestWebhookHandler(t, &stubGitLabClient{})

	rec := postWebhook(t, h, "Merge Request Hook", "wrong", mrOpenedPayload)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, tasks.created)
}

func TestHandleRejectsUnparseablePayload(t *testing.T) {
	h, _ := newTestWebhookHandler(t, &stubGitLabClient{})

	rec := postWebhook(t, h, "Merge Request Hook", webhookSecret, "{not json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleQueuesReviewForOpenedMergeRequest(t *testing.T) {
	h, tasks := newTestWebhookHandler(t, &stubGitLabClient{})

	rec := postWebhook(t, h, "Merge Request Hook", webhookSecret, mrOpenedPayload)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, tasks.created, 1)
	task := tasks.created[0]
	assert.Equal(t, core.TaskTypeCodeReview, task.Type)
	assert.Equal(t, core.IntentAutoReview, task.Intent)
	assert.EqualValues(t, 1, task.ProjectID)
	require.NotNil(t, task.MergeRequestIID)
	assert.EqualValues(t, 5, *task.MergeRequestIID)
}

func TestHandleIgnoresUnknownProject(t *testing.T) {
	h, tasks := newTestWebhookHandler(t, &stubGitLabClient{})
	payload := `{
		"object_kind": "merge_request",
		"project": {"id": 999},
		"object_attributes": {"iid": 5, "action": "open"}
	}`

	rec := postWebhook(t, h, "Merge Request Hook", webhookSecret, payload)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "ignored")
	assert.Empty(t, tasks.created)
}

func TestHandleIgnoresDisabledProject(t *testing.T) {
	h, tasks := newTestWebhookHandler(t, &stubGitLabClient{})
	payload := `{
		"object_kind": "merge_request",
		"project": {"id": 43},
		"object_attributes": {"iid": 5, "action": "open"}
	}`

	rec := postWebhook(t, h, "Merge Request Hook", webhookSecret, payload)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, tasks.created)
}

func TestHandleQueuesOnDemandReviewFromNote(t *testing.T) {
	h, tasks := newTestWebhookHandler(t, &stubGitLabClient{})
	payload := `{
		"object_kind": "note",
		"project_id": 42,
		"object_attributes": {
			"note": "@ai review",
			"noteable_type": "MergeRequest",
			"author_id": 7
		},
		"merge_request": {"iid": 9}
	}`

	rec := postWebhook(t, h, "Note Hook", webhookSecret, payload)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, tasks.created, 1)
	assert.Equal(t, core.IntentOnDemandReview, tasks.created[0].Intent)
	assert.Equal(t, core.PriorityHigh, tasks.created[0].Priority)
}

func TestHandleResolvesMergeRequestForPush(t *testing.T) {
	h, tasks := newTestWebhookHandler(t, &stubGitLabClient{openMR: 5})
	payload := `{
		"object_kind": "push",
		"project_id": 42,
		"ref": "refs/heads/feature/cache",
		"before": "aaa",
		"after": "bbb",
		"user_id": 7,
		"total_commits_count": 2
	}`

	rec := postWebhook(t, h, "Push Hook", webhookSecret, payload)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, tasks.created, 1)
	task := tasks.created[0]
	assert.Equal(t, core.IntentIncrementalReview, task.Intent)
	require.NotNil(t, task.MergeRequestIID)
	assert.EqualValues(t, 5, *task.MergeRequestIID)
}

func TestHandleDropsRedeliveredWebhook(t *testing.T) {
	h, tasks := newTestWebhookHandler(t, &stubGitLabClient{})

	deliver := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/gitlab", bytes.NewBufferString(mrOpenedPayload))
		req.Header.Set("X-Gitlab-Event", "Merge Request Hook")
		req.Header.Set("X-Gitlab-Token", webhookSecret)
		req.Header.Set("X-Gitlab-Event-UUID", "5f1c9a2e-0001-0002-0003-000000000042")
		rec := httptest.NewRecorder()
		h.Handle(rec, req)
		return rec
	}

	rec := deliver()
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, tasks.created, 1)

	rec = deliver()
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "ignored")
	assert.Len(t, tasks.created, 1)
}

func TestHandleDropsPushWithoutOpenMergeRequest(t *testing.T) {
	h, tasks := newTestWebhookHandler(t, &stubGitLabClient{})
	payload := `{
		"object_kind": "push",
		"project_id": 42,
		"ref": "refs/heads/scratch",
		"user_id": 7
	}`

	rec := postWebhook(t, h, "Push Hook", webhookSecret, payload)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "not actionable")
	assert.Empty(t, tasks.created)
}
