// Package gitlab wraps the GitLab API for application-specific operations and
// normalizes API failures into a classified error shape used by the retry
// middleware.
package gitlab

import (
	"errors"
	"fmt"

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// Classification buckets an API failure for retry decisions.
type Classification string

const (
	ClassTransient      Classification = "transient"
	ClassInvalidRequest Classification = "invalid_request"
	ClassAuthentication Classification = "authentication"
	ClassUnknown        Classification = "unknown"
)

// transientCodes are HTTP status codes expected to succeed on retry.
var transientCodes = map[int]bool{429: true, 500: true, 503: true, 529: true}

// APIError wraps a failed GitLab API call with enough information to decide
// whether the call should be retried. Context identifies the call site.
type APIError struct {
	Message      string
	StatusCode   int
	ResponseBody string
	Context      string
	Err          error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gitlab api error (%s): %d %s", e.Context, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// IsTransient reports whether the failure is expected to clear on retry
// (rate limiting, server overload).
func (e *APIError) IsTransient() bool { return transientCodes[e.StatusCode] }

// IsInvalidRequest reports a 400 response. Never retried.
func (e *APIError) IsInvalidRequest() bool { return e.StatusCode == 400 }

// IsAuthenticationError reports a 401 response. Never retried; escalated to
// an operator-visible alert.
func (e *APIError) IsAuthenticationError() bool { return e.StatusCode == 401 }

// ShouldRetry reports whether the retry middleware may requeue the call.
func (e *APIError) ShouldRetry() bool { return e.IsTransient() }

// Classify buckets the error, checking transient status first.
func (e *APIError) Classify() Classification {
	switch {
	case e.IsTransient():
		return ClassTransient
	case e.IsInvalidRequest():
		return ClassInvalidRequest
	case e.IsAuthenticationError():
		return ClassAuthentication
	default:
		return ClassUnknown
	}
}

// WrapError normalizes any failure from the GitLab client into an *APIError,
// recording the response body verbatim when one is available. A nil err
// returns nil.
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	statusCode := 0
	body := ""
	var errResp *gitlab.ErrorResponse
	if errors.As(err, &errResp) {
		if errResp.Response != nil {
			statusCode = errResp.Response.StatusCode
		}
		body = string(errResp.Body)
	}

	return &APIError{
		Message:      err.Error(),
		StatusCode:   statusCode,
		ResponseBody: body,
		Context:      context,
		Err:          err,
	}
}

// NewAPIError builds a classified error from an explicit status and body.
func NewAPIError(statusCode int, body, context string) *APIError {
	return &APIError{
		Message:      fmt.Sprintf("HTTP %d", statusCode),
		StatusCode:   statusCode,
		ResponseBody: body,
		Context:      context,
	}
}
