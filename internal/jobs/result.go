package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/glpilot/glpilot/internal/core"
	"github.com/glpilot/glpilot/internal/publish"
	"github.com/glpilot/glpilot/internal/store"
)

// OutboxConfig controls how completion events leave the process. With the
// outbox disabled, publishers fan out in-process. In shadow mode both paths
// run: the outbox row is written and the in-process fan-out still fires, so
// the relay can be validated against live behavior.
type OutboxConfig struct {
	Enabled    bool
	ShadowMode bool
}

// FailureHandler settles a task that will not run again: it moves the task
// to failed, tells the requester, and stages a task.failed event.
type FailureHandler struct {
	tasks   store.TaskStore
	outbox  store.OutboxStore
	effects *Effects
	cfg     OutboxConfig
	logger  *slog.Logger
}

func NewFailureHandler(tasks store.TaskStore, outbox store.OutboxStore, effects *Effects, cfg OutboxConfig, logger *slog.Logger) *FailureHandler {
	if tasks == nil || outbox == nil || effects == nil || logger == nil {
		panic("NewFailureHandler: nil dependency")
	}
	return &FailureHandler{tasks: tasks, outbox: outbox, effects: effects, cfg: cfg, logger: logger}
}

// HandlePermanentFailure marks the task failed and triggers the failure
// notifications. A task already out of queued or running is left alone.
func (h *FailureHandler) HandlePermanentFailure(ctx context.Context, taskID int64, reason string) {
	task, err := h.tasks.Get(ctx, taskID)
	if err != nil {
		h.logger.Error("cannot load task for failure handling", "task_id", taskID, "error", err)
		return
	}

	if err := h.tasks.Transition(ctx, task, core.StatusFailed, reason); err != nil {
		var invalid *core.InvalidTransitionError
		if errors.As(err, &invalid) || errors.Is(err, store.ErrStatusConflict) {
			h.logger.Info("task no longer eligible for failure", "task_id", taskID, "status", task.Status)
			return
		}
		h.logger.Error("failed to mark task as failed", "task_id", taskID, "error", err)
		return
	}

	if err := h.effects.PostFailureComment(taskID, reason); err != nil {
		h.logger.Error("failed to queue failure comment", "task_id", taskID, "error", err)
	}

	if h.cfg.Enabled {
		key := fmt.Sprintf("task.failed:%d", taskID)
		payload := fmt.Sprintf(`{"task_id":%d,"reason":%q}`, taskID, reason)
		_, err := h.outbox.Write(ctx, &core.OutboxEvent{
			EventType:      "task.failed",
			AggregateType:  "task",
			AggregateID:    taskID,
			Payload:        []byte(payload),
			IdempotencyKey: &key,
		})
		if err != nil {
			h.logger.Error("failed to stage task.failed event", "task_id", taskID, "error", err)
		}
	}

	h.logger.Warn("task failed permanently", "task_id", taskID, "reason", reason)
}

// ProcessResultJob settles a finished execution: it completes the task and
// fans the outcome out to the result publishers.
type ProcessResultJob struct {
	taskID     int64
	tasks      store.TaskStore
	outbox     store.OutboxStore
	publishers *publish.Registry
	failure    *FailureHandler
	cfg        OutboxConfig
	logger     *slog.Logger
}

func NewProcessResultJob(taskID int64, tasks store.TaskStore, outbox store.OutboxStore, publishers *publish.Registry, failure *FailureHandler, cfg OutboxConfig, logger *slog.Logger) *ProcessResultJob {
	if tasks == nil || outbox == nil || publishers == nil || failure == nil || logger == nil {
		panic("NewProcessResultJob: nil dependency")
	}
	return &ProcessResultJob{
		taskID:     taskID,
		tasks:      tasks,
		outbox:     outbox,
		publishers: publishers,
		failure:    failure,
		cfg:        cfg,
		logger:     logger,
	}
}

func (j *ProcessResultJob) Name() string { return "process_task_result" }

func (j *ProcessResultJob) Run(ctx context.Context) error {
	task, err := j.tasks.Get(ctx, j.taskID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			j.logger.Warn("result arrived for unknown task", "task_id", j.taskID)
			return nil
		}
		return err
	}

	if task.Status != core.StatusRunning {
		j.logger.Info("skipping result for task not in running state",
			"task_id", task.ID, "status", task.Status)
		return nil
	}

	if len(task.Result) == 0 {
		j.failure.HandlePermanentFailure(ctx, task.ID, "empty_result")
		return nil
	}

	if err := j.tasks.Transition(ctx, task, core.StatusCompleted, ""); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			j.logger.Info("task moved concurrently, skipping result", "task_id", task.ID)
			return nil
		}
		return err
	}

	if j.cfg.Enabled {
		key := fmt.Sprintf("task.completed:%d", task.ID)
		payload := fmt.Sprintf(`{"task_id":%d,"type":%q,"intent":%q}`, task.ID, task.Type, task.Intent)
		_, err := j.outbox.Write(ctx, &core.OutboxEvent{
			EventType:      "task.completed",
			AggregateType:  "task",
			AggregateID:    task.ID,
			Payload:        []byte(payload),
			IdempotencyKey: &key,
		})
		if err != nil {
			return err
		}
		if !j.cfg.ShadowMode {
			j.logger.Debug("outbox active, relay owns the fan-out", "task_id", task.ID)
			return nil
		}
	}

	fired := j.publishers.Publish(task)
	j.logger.Info("task result published", "task_id", task.ID, "publishers", fired)
	return nil
}

// Failed routes a permanently failed result processing into the failure
// handler.
func (j *ProcessResultJob) Failed(ctx context.Context, jobErr error) {
	j.failure.HandlePermanentFailure(ctx, j.taskID, truncate(jobErr.Error(), maxErrorLen))
}
