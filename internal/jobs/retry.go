package jobs

import (
	"errors"
	"log/slog"
	"time"

	"github.com/glpilot/glpilot/internal/gitlab"
)

// Decision is the retry middleware's verdict on a failed job attempt.
type Decision int

const (
	DecisionFail Decision = iota
	DecisionRetry
)

// maxErrorLen caps the error text stored per attempt record.
const maxErrorLen = 500

// Alerter receives critical notifications that need operator attention,
// such as an expired GitLab token.
type Alerter interface {
	Critical(msg string, err error)
}

// LogAlerter routes critical alerts to the structured log.
type LogAlerter struct {
	Logger *slog.Logger
}

func (a *LogAlerter) Critical(msg string, err error) {
	a.Logger.Error(msg, "severity", "critical", "error", err)
}

// RetryMiddleware decides what happens to a job after a failed attempt.
// Transient GitLab API errors are retried with a fixed backoff schedule;
// everything else fails permanently on the first occurrence.
type RetryMiddleware struct {
	maxRetries int
	backoff    []time.Duration
	alerter    Alerter
	logger     *slog.Logger
}

// NewRetryMiddleware creates the middleware with the default policy:
// three retries at 30s, 2m and 8m.
func NewRetryMiddleware(alerter Alerter, logger *slog.Logger) *RetryMiddleware {
	if alerter == nil || logger == nil {
		panic("NewRetryMiddleware: nil dependency")
	}
	return &RetryMiddleware{
		maxRetries: 3,
		backoff:    []time.Duration{30 * time.Second, 120 * time.Second, 480 * time.Second},
		alerter:    alerter,
		logger:     logger,
	}
}

// Intercept inspects a failed attempt and returns the verdict. On a retry
// verdict it appends an attempt record to the envelope's history and
// returns the backoff delay for the attempt that just failed; the last
// schedule entry is reused when attempts outnumber entries.
func (m *RetryMiddleware) Intercept(env *Envelope, jobErr error) (Decision, time.Duration) {
	var apiErr *gitlab.APIError
	if !errors.As(jobErr, &apiErr) {
		return DecisionFail, 0
	}

	switch {
	case apiErr.IsAuthenticationError():
		m.alerter.Critical("gitlab authentication failed, check the access token", apiErr)
		return DecisionFail, 0
	case apiErr.IsInvalidRequest():
		m.logger.Error("gitlab rejected the request as invalid",
			"job", env.Job.Name(),
			"context", apiErr.Context,
			"error", apiErr,
		)
		return DecisionFail, 0
	case !apiErr.ShouldRetry():
		return DecisionFail, 0
	case env.Attempt > m.maxRetries:
		m.logger.Error("retries exhausted",
			"job", env.Job.Name(),
			"attempts", env.Attempt,
			"error", apiErr,
		)
		return DecisionFail, 0
	}

	env.History = append(env.History, AttemptRecord{
		Attempt:   env.Attempt,
		Timestamp: time.Now().UTC(),
		Error:     truncate(apiErr.Error(), maxErrorLen),
	})
	return DecisionRetry, m.delayFor(env.Attempt)
}

func (m *RetryMiddleware) delayFor(attempt int) time.Duration {
	idx := attempt - 1
	if idx >= len(m.backoff) {
		idx = len(m.backoff) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return m.backoff[idx]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
