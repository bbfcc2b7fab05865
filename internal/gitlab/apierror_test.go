package gitlab

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorClassification(t *testing.T) {
	tests := []struct {
		status      int
		want        Classification
		shouldRetry bool
	}{
		{429, ClassTransient, true},
		{500, ClassTransient, true},
		{503, ClassTransient, true},
		{529, ClassTransient, true},
		{400, ClassInvalidRequest, false},
		{401, ClassAuthentication, false},
		{403, ClassUnknown, false},
		{404, ClassUnknown, false},
		{502, ClassUnknown, false},
		{0, ClassUnknown, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			err := NewAPIError(tt.status, "body", "test_call")
			assert.Equal(t, tt.want, err.Classify())
			assert.Equal(t, tt.shouldRetry, err.ShouldRetry())
		})
	}
}

func TestAPIErrorPredicates(t *testing.T) {
	assert.True(t, NewAPIError(429, "", "c").IsTransient())
	assert.True(t, NewAPIError(400, "", "c").IsInvalidRequest())
	assert.True(t, NewAPIError(401, "", "c").IsAuthenticationError())
	assert.False(t, NewAPIError(401, "", "c").IsTransient())
}

func TestWrapError(t *testing.T) {
	t.Run("nil passes through", func(t *testing.T) {
		assert.NoError(t, WrapError(nil, "ctx"))
	})

	t.Run("already classified is kept", func(t *testing.T) {
		orig := NewAPIError(503, "overloaded", "first_call")
		wrapped := WrapError(orig, "second_call")

		var apiErr *APIError
		require.ErrorAs(t, wrapped, &apiErr)
		assert.Equal(t, "first_call", apiErr.Context)
		assert.Equal(t, 503, apiErr.StatusCode)
	})

	t.Run("generic error becomes unknown", func(t *testing.T) {
		wrapped := WrapError(errors.New("connection refused"), "create_note")

		var apiErr *APIError
		require.ErrorAs(t, wrapped, &apiErr)
		assert.Equal(t, ClassUnknown, apiErr.Classify())
		assert.Equal(t, "create_note", apiErr.Context)
		assert.False(t, apiErr.ShouldRetry())
	})
}

func TestAPIErrorMessage(t *testing.T) {
	err := NewAPIError(429, "slow down", "post_summary_comment")
	assert.Contains(t, err.Error(), "post_summary_comment")
	assert.Contains(t, err.Error(), "429")
}
