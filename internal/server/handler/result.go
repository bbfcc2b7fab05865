package handler

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/glpilot/glpilot/internal/core"
	"github.com/glpilot/glpilot/internal/jobs"
	"github.com/glpilot/glpilot/internal/store"
)

// resultPayload is the body the executor posts back when a task finishes.
type resultPayload struct {
	Status      string          `json:"status"`
	Result      json.RawMessage `json:"result"`
	ErrorReason string          `json:"error_reason"`
}

// ResultHandler covers the executor-facing half of the task lifecycle:
// claiming a queued task and reporting its outcome.
type ResultHandler struct {
	token        string
	tasks        store.TaskStore
	dispatcher   *jobs.Dispatcher
	failure      *jobs.FailureHandler
	newResultJob func(taskID int64) jobs.Job
	logger       *slog.Logger
}

// NewResultHandler creates the executor callback handler. newResultJob
// builds the job that settles a completed task.
func NewResultHandler(token string, tasks store.TaskStore, dispatcher *jobs.Dispatcher, failure *jobs.FailureHandler, newResultJob func(taskID int64) jobs.Job, logger *slog.Logger) *ResultHandler {
	if tasks == nil || dispatcher == nil || failure == nil || newResultJob == nil || logger == nil {
		panic("NewResultHandler: nil dependency")
	}
	return &ResultHandler{
		token:        token,
		tasks:        tasks,
		dispatcher:   dispatcher,
		failure:      failure,
		newResultJob: newResultJob,
		logger:       logger,
	}
}

func (h *ResultHandler) authorized(r *http.Request) bool {
	token := r.Header.Get("X-Glpilot-Token")
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) == 1
}

func (h *ResultHandler) taskFromPath(w http.ResponseWriter, r *http.Request) (*core.Task, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "taskID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid task id", http.StatusBadRequest)
		return nil, false
	}
	task, err := h.tasks.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Task not found", http.StatusNotFound)
			return nil, false
		}
		h.logger.Error("failed to load task", "task_id", id, "error", err)
		http.Error(w, "Failed to load task", http.StatusInternalServerError)
		return nil, false
	}
	return task, true
}

// HandleStart claims a queued task for execution, moving it to running.
// A task already claimed or settled answers with a conflict.
func (h *ResultHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}
	task, ok := h.taskFromPath(w, r)
	if !ok {
		return
	}

	err := h.tasks.Transition(r.Context(), task, core.StatusRunning, "")
	if err != nil {
		var invalid *core.InvalidTransitionError
		if errors.As(err, &invalid) || errors.Is(err, store.ErrStatusConflict) {
			http.Error(w, "Task is not claimable", http.StatusConflict)
			return
		}
		h.logger.Error("failed to claim task", "task_id", task.ID, "error", err)
		http.Error(w, "Failed to claim task", http.StatusInternalServerError)
		return
	}

	h.logger.Info("task claimed", "task_id", task.ID)
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"task_id":%d,"status":%q}`, task.ID, task.Status)
}

// HandleResult accepts the executor's outcome report. Completed results are
// stored and settled asynchronously; failures go straight to the failure
// handler.
func (h *ResultHandler) HandleResult(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}
	task, ok := h.taskFromPath(w, r)
	if !ok {
		return
	}

	var payload resultPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 5<<20)).Decode(&payload); err != nil {
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	switch payload.Status {
	case "failed":
		reason := payload.ErrorReason
		if reason == "" {
			reason = "executor_reported_failure"
		}
		h.failure.HandlePermanentFailure(r.Context(), task.ID, reason)
		w.WriteHeader(http.StatusAccepted)
		_, _ = fmt.Fprint(w, "Failure recorded")

	case "completed":
		if task.Status != core.StatusRunning {
			http.Error(w, "Task is not running", http.StatusConflict)
			return
		}
		if err := h.tasks.SetResult(r.Context(), task.ID, payload.Result); err != nil {
			h.logger.Error("failed to store task result", "task_id", task.ID, "error", err)
			http.Error(w, "Failed to store result", http.StatusInternalServerError)
			return
		}
		if err := h.dispatcher.Enqueue(h.newResultJob(task.ID)); err != nil {
			h.logger.Error("failed to queue result processing", "task_id", task.ID, "error", err)
			http.Error(w, "Failed to queue result processing", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_, _ = fmt.Fprint(w, "Result accepted")

	default:
		http.Error(w, "Unknown status", http.StatusBadRequest)
	}
}
