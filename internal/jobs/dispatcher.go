// Package jobs runs the asynchronous side of the pipeline: a worker pool
// draining a job queue, retry handling for GitLab API failures, and the
// concrete publication jobs that post task outcomes back to GitLab.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Job is one unit of background work. Run must be safe to call more than
// once; failed jobs can be requeued by the retry middleware.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// PermanentFailureHook is implemented by jobs that need to react when the
// retry middleware gives up on them.
type PermanentFailureHook interface {
	Failed(ctx context.Context, jobErr error)
}

// AttemptRecord captures one failed execution attempt of a job.
type AttemptRecord struct {
	Attempt   int       `json:"attempt"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
}

// Envelope wraps a job with its delivery state. Attempt starts at 1 and the
// history holds one record per failed attempt so far.
type Envelope struct {
	Job     Job
	Attempt int
	History []AttemptRecord
}

// Dispatcher manages a pool of workers draining a buffered job queue.
// Failed jobs go through the retry middleware, which either requeues them
// after a backoff delay or fails them permanently.
type Dispatcher struct {
	jobQueue   chan *Envelope
	maxWorkers int
	retry      *RetryMiddleware
	wg         sync.WaitGroup
	logger     *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewDispatcher initializes a dispatcher with a worker pool.
// If maxWorkers is 0 or negative, it defaults to 1.
func NewDispatcher(retry *RetryMiddleware, maxWorkers int, logger *slog.Logger) *Dispatcher {
	if retry == nil {
		panic("NewDispatcher: nil retry middleware")
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	d := &Dispatcher{
		jobQueue:   make(chan *Envelope, 100),
		maxWorkers: maxWorkers,
		retry:      retry,
		logger:     logger,
	}
	d.startWorkers()
	return d
}

func (d *Dispatcher) startWorkers() {
	for i := 0; i < d.maxWorkers; i++ {
		d.wg.Add(1)
		go d.startWorker(i)
	}
}

// startWorker processes envelopes from the queue until it's closed.
func (d *Dispatcher) startWorker(workerID int) {
	defer d.wg.Done()
	d.logger.Info("starting job worker", "id", workerID)

	for env := range d.jobQueue {
		d.process(workerID, env)
	}

	d.logger.Info("shutting down job worker", "id", workerID)
}

func (d *Dispatcher) process(workerID int, env *Envelope) {
	d.logger.Debug("worker processing job",
		"worker_id", workerID,
		"job", env.Job.Name(),
		"attempt", env.Attempt,
	)

	ctx := context.Background()
	err := env.Job.Run(ctx)
	if err == nil {
		return
	}

	decision, delay := d.retry.Intercept(env, err)
	switch decision {
	case DecisionRetry:
		d.logger.Warn("job failed, requeueing",
			"job", env.Job.Name(),
			"attempt", env.Attempt,
			"delay", delay,
			"error", err,
		)
		d.Release(env, delay)
	case DecisionFail:
		d.logger.Error("job failed permanently",
			"job", env.Job.Name(),
			"attempt", env.Attempt,
			"error", err,
		)
		if hook, ok := env.Job.(PermanentFailureHook); ok {
			hook.Failed(ctx, err)
		}
	}
}

// Enqueue queues a job for its first execution attempt.
func (d *Dispatcher) Enqueue(job Job) error {
	return d.push(&Envelope{Job: job, Attempt: 1})
}

// Release requeues an envelope after the given delay. The next execution
// runs as the following attempt.
func (d *Dispatcher) Release(env *Envelope, delay time.Duration) {
	env.Attempt++
	if delay <= 0 {
		if err := d.push(env); err != nil {
			d.logger.Error("failed to requeue job", "job", env.Job.Name(), "error", err)
		}
		return
	}
	time.AfterFunc(delay, func() {
		if err := d.push(env); err != nil {
			d.logger.Error("failed to requeue job after backoff", "job", env.Job.Name(), "error", err)
		}
	})
}

func (d *Dispatcher) push(env *Envelope) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("dispatcher is stopped, dropping job %q", env.Job.Name())
	}
	select {
	case d.jobQueue <- env:
		return nil
	default:
		return fmt.Errorf("job queue is full, cannot accept job %q", env.Job.Name())
	}
}

// Stop gracefully shuts down the dispatcher, waiting for in-flight jobs to
// finish. Jobs still waiting on a backoff timer are dropped.
func (d *Dispatcher) Stop() {
	d.logger.Info("stopping dispatcher and waiting for jobs to finish")
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobQueue)
	d.mu.Unlock()
	d.wg.Wait()
	d.logger.Info("all jobs have finished")
}
