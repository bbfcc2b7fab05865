package jobs

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs atomic.Int32
	err  error
	done chan struct{} // buffered, signalled once per run
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(_ context.Context) error {
	j.runs.Add(1)
	if j.done != nil {
		select {
		case j.done <- struct{}{}:
		default:
		}
	}
	return j.err
}

type failureHookJob struct {
	countingJob
	failed chan error
}

func (j *failureHookJob) Failed(_ context.Context, jobErr error) {
	j.failed <- jobErr
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	m := NewRetryMiddleware(&recordingAlerter{}, testLogger())
	d := NewDispatcher(m, 2, testLogger())
	t.Cleanup(d.Stop)
	return d
}

func TestDispatcherRunsEnqueuedJob(t *testing.T) {
	d := newTestDispatcher(t)
	job := &countingJob{name: "job", done: make(chan struct{}, 1)}

	require.NoError(t, d.Enqueue(job))

	select {
	case <-job.done:
	case <-time.After(2 * time.Second):
		t.Fatal("job was never executed")
	}
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestDispatcherInvokesFailureHookOnPermanentFailure(t *testing.T) {
	d := newTestDispatcher(t)
	job := &failureHookJob{
		countingJob: countingJob{name: "job", err: errors.New("database gone")},
		failed:      make(chan error, 1),
	}

	require.NoError(t, d.Enqueue(job))

	select {
	case err := <-job.failed:
		assert.ErrorContains(t, err, "database gone")
	case <-time.After(2 * time.Second):
		t.Fatal("failure hook was never invoked")
	}
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestDispatcherReleaseRunsAgain(t *testing.T) {
	d := newTestDispatcher(t)
	job := &countingJob{name: "job", done: make(chan struct{}, 1)}
	env := &Envelope{Job: job, Attempt: 1}

	d.Release(env, 0)

	select {
	case <-job.done:
	case <-time.After(2 * time.Second):
		t.Fatal("released job was never executed")
	}
	assert.Equal(t, 2, env.Attempt)
}

func TestDispatcherReleaseLogsDroppedJob(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	m := NewRetryMiddleware(&recordingAlerter{}, logger)
	d := NewDispatcher(m, 1, logger)
	d.Stop()

	d.Release(&Envelope{Job: &countingJob{name: "job"}, Attempt: 1}, 0)

	assert.Contains(t, buf.String(), "failed to requeue job")
}

func TestDispatcherRejectsAfterStop(t *testing.T) {
	m := NewRetryMiddleware(&recordingAlerter{}, testLogger())
	d := NewDispatcher(m, 1, testLogger())
	d.Stop()

	err := d.Enqueue(&countingJob{name: "job"})
	assert.ErrorContains(t, err, "stopped")
}
