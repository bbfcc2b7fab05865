// Package handler provides the HTTP handlers for webhook intake and the
// executor result callback.
package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	gl "gitlab.com/gitlab-org/api/client-go"

	"github.com/glpilot/glpilot/internal/config"
	"github.com/glpilot/glpilot/internal/core"
	"github.com/glpilot/glpilot/internal/gitlab"
	"github.com/glpilot/glpilot/internal/service"
	"github.com/glpilot/glpilot/internal/store"
)

// WebhookHandler processes incoming webhooks from GitLab.
type WebhookHandler struct {
	cfg        *config.Config
	projects   store.ProjectStore
	deliveries store.DeliveryStore
	client     gitlab.Client
	intake     *service.Intake
	logger     *slog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(cfg *config.Config, projects store.ProjectStore, deliveries store.DeliveryStore, client gitlab.Client, intake *service.Intake, logger *slog.Logger) *WebhookHandler {
	if cfg == nil || projects == nil || deliveries == nil || client == nil || intake == nil || logger == nil {
		panic("NewWebhookHandler: nil dependency")
	}
	return &WebhookHandler{
		cfg:        cfg,
		projects:   projects,
		deliveries: deliveries,
		client:     client,
		intake:     intake,
		logger:     logger,
	}
}

// Handle validates, normalizes and queues a GitLab webhook request. The
// response is always fast: anything beyond classification and task creation
// happens on the worker pool.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Gitlab-Token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.GitLabWebhookSecret)) != 1 {
		h.logger.Warn("webhook with invalid token rejected", "remote", r.RemoteAddr)
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 5<<20))
	if err != nil {
		http.Error(w, "Could not read payload", http.StatusBadRequest)
		return
	}

	raw, err := gl.ParseWebhook(gl.HookEventType(r), payload)
	if err != nil {
		h.logger.Error("could not parse webhook", "error", err)
		http.Error(w, "Could not parse webhook", http.StatusBadRequest)
		return
	}

	event, err := h.normalize(r.Context(), raw, payload)
	if err != nil {
		h.logger.Error("failed to normalize webhook", "error", err)
		http.Error(w, "Failed to process webhook", http.StatusInternalServerError)
		return
	}
	if event == nil {
		w.WriteHeader(http.StatusAccepted)
		_, _ = fmt.Fprint(w, "Event ignored")
		return
	}

	// GitLab redelivers webhooks; the delivery UUID catches repeats before
	// they become duplicate tasks.
	if uuid := r.Header.Get("X-Gitlab-Event-UUID"); uuid != "" {
		_, gitlabProjectID := event.Project()
		seen, err := h.deliveries.MarkSeen(r.Context(), uuid, gitlabProjectID)
		if err != nil {
			h.logger.Error("could not check delivery uuid", "uuid", uuid, "error", err)
			http.Error(w, "Failed to process webhook", http.StatusInternalServerError)
			return
		}
		if seen {
			h.logger.Info("dropping redelivered webhook", "uuid", uuid, "kind", event.Kind())
			w.WriteHeader(http.StatusAccepted)
			_, _ = fmt.Fprint(w, "Event ignored")
			return
		}
	}

	task, err := h.intake.Process(r.Context(), event)
	if err != nil {
		h.logger.Error("intake failed", "kind", event.Kind(), "error", err)
		http.Error(w, "Failed to process webhook", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	if task == nil {
		_, _ = fmt.Fprint(w, "Event not actionable")
		return
	}
	_, _ = fmt.Fprintf(w, "Task %d queued", task.ID)
}

// normalize maps a parsed GitLab event onto an internal event variant. It
// returns nil when the event should be ignored: unhandled kinds, unknown or
// disabled projects, and merge request actions outside open/update/merge.
func (h *WebhookHandler) normalize(ctx context.Context, raw any, payload []byte) (core.WebhookEvent, error) {
	switch e := raw.(type) {
	case *gl.MergeEvent:
		base, ok, err := h.projectBase(ctx, int64(e.Project.ID), payload)
		if err != nil || !ok {
			return nil, err
		}
		switch e.ObjectAttributes.Action {
		case "open", "reopen":
			return core.MergeRequestOpened{
				EventBase:       base,
				MergeRequestIID: int64(e.ObjectAttributes.IID),
				SourceBranch:    e.ObjectAttributes.SourceBranch,
				TargetBranch:    e.ObjectAttributes.TargetBranch,
				AuthorID:        int64(e.ObjectAttributes.AuthorID),
				LastCommitSHA:   e.ObjectAttributes.LastCommit.ID,
			}, nil
		case "update":
			return core.MergeRequestUpdated{
				EventBase:       base,
				MergeRequestIID: int64(e.ObjectAttributes.IID),
				SourceBranch:    e.ObjectAttributes.SourceBranch,
				TargetBranch:    e.ObjectAttributes.TargetBranch,
				AuthorID:        int64(e.ObjectAttributes.AuthorID),
				LastCommitSHA:   e.ObjectAttributes.LastCommit.ID,
			}, nil
		case "merge":
			return core.MergeRequestMerged{
				EventBase:       base,
				MergeRequestIID: int64(e.ObjectAttributes.IID),
				SourceBranch:    e.ObjectAttributes.SourceBranch,
				TargetBranch:    e.ObjectAttributes.TargetBranch,
				AuthorID:        int64(e.ObjectAttributes.AuthorID),
				LastCommitSHA:   e.ObjectAttributes.LastCommit.ID,
			}, nil
		default:
			return nil, nil
		}

	case *gl.MergeCommentEvent:
		base, ok, err := h.projectBase(ctx, int64(e.ProjectID), payload)
		if err != nil || !ok {
			return nil, err
		}
		if e.MergeRequest.IID == 0 {
			return nil, nil
		}
		return core.NoteOnMergeRequest{
			EventBase:       base,
			MergeRequestIID: int64(e.MergeRequest.IID),
			Note:            e.ObjectAttributes.Note,
			AuthorID:        int64(e.ObjectAttributes.AuthorID),
		}, nil

	case *gl.IssueCommentEvent:
		base, ok, err := h.projectBase(ctx, int64(e.ProjectID), payload)
		if err != nil || !ok {
			return nil, err
		}
		if e.Issue.IID == 0 {
			return nil, nil
		}
		return core.NoteOnIssue{
			EventBase: base,
			IssueIID:  int64(e.Issue.IID),
			Note:      e.ObjectAttributes.Note,
			AuthorID:  int64(e.ObjectAttributes.AuthorID),
		}, nil

	case *gl.IssueEvent:
		base, ok, err := h.projectBase(ctx, int64(e.Project.ID), payload)
		if err != nil || !ok {
			return nil, err
		}
		labels := make([]string, 0, len(e.Labels))
		for _, l := range e.Labels {
			labels = append(labels, l.Title)
		}
		return core.IssueLabelChanged{
			EventBase: base,
			IssueIID:  int64(e.ObjectAttributes.IID),
			Action:    e.ObjectAttributes.Action,
			AuthorID:  int64(e.ObjectAttributes.AuthorID),
			Labels:    labels,
		}, nil

	case *gl.PushEvent:
		base, ok, err := h.projectBase(ctx, int64(e.ProjectID), payload)
		if err != nil || !ok {
			return nil, err
		}
		push := core.PushToBranch{
			EventBase:         base,
			Ref:               e.Ref,
			Before:            e.Before,
			After:             e.After,
			UserID:            int64(e.UserID),
			TotalCommitsCount: e.TotalCommitsCount,
		}
		// Resolve the tracked merge request here so classification can stay
		// free of I/O.
		mrIID, found, err := h.client.FindOpenMergeRequestForBranch(ctx, base.GitLabProjectID, push.BranchName())
		if err != nil {
			h.logger.Warn("could not resolve merge request for push",
				"branch", push.BranchName(), "error", err)
		} else if found {
			push.MergeRequestIID = mrIID
		}
		return push, nil

	default:
		return nil, nil
	}
}

// projectBase resolves the internal project registration. ok is false for
// unknown or disabled projects.
func (h *WebhookHandler) projectBase(ctx context.Context, gitlabProjectID int64, payload []byte) (core.EventBase, bool, error) {
	project, err := h.projects.GetByGitLabID(ctx, gitlabProjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.logger.Debug("webhook for unregistered project", "gitlab_project_id", gitlabProjectID)
			return core.EventBase{}, false, nil
		}
		return core.EventBase{}, false, err
	}
	if !project.Enabled {
		h.logger.Debug("webhook for disabled project", "gitlab_project_id", gitlabProjectID)
		return core.EventBase{}, false, nil
	}
	return core.EventBase{
		ProjectID:       project.ID,
		GitLabProjectID: gitlabProjectID,
		Payload:         payload,
	}, true, nil
}
