package llm

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func stubResponse(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, IsRetryableStatusCode(code), "code %d", code)
	}
	for _, code := range []int{200, 201, 400, 401, 404} {
		assert.False(t, IsRetryableStatusCode(code), "code %d", code)
	}
}

func TestExecuteWithRetrySucceedsFirstAttempt(t *testing.T) {
	attempts := 0
	resp, err := ExecuteWithRetry(context.Background(), fastRetryConfig(), func() (*http.Response, error) {
		attempts++
		return stubResponse(http.StatusOK), nil
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, attempts)
}

func TestExecuteWithRetryRecoversFromServerError(t *testing.T) {
	attempts := 0
	resp, err := ExecuteWithRetry(context.Background(), fastRetryConfig(), func() (*http.Response, error) {
		attempts++
		if attempts < 3 {
			return stubResponse(http.StatusServiceUnavailable), nil
		}
		return stubResponse(http.StatusOK), nil
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, attempts)
}

func TestExecuteWithRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	_, err := ExecuteWithRetry(context.Background(), fastRetryConfig(), func() (*http.Response, error) {
		attempts++
		return nil, errors.New("connection refused")
	})
	require.Error(t, err)
	assert.Equal(t, 4, attempts) // initial attempt + 3 retries
}

func TestExecuteWithRetryDoesNotRetryClientError(t *testing.T) {
	attempts := 0
	resp, err := ExecuteWithRetry(context.Background(), fastRetryConfig(), func() (*http.Response, error) {
		attempts++
		return stubResponse(http.StatusBadRequest), nil
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 1, attempts)
}

func TestExecuteWithRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ExecuteWithRetry(ctx, fastRetryConfig(), func() (*http.Response, error) {
		return stubResponse(http.StatusOK), nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.False(t, IsRetryableError(context.Canceled))
	assert.False(t, IsRetryableError(context.DeadlineExceeded))
	assert.True(t, IsRetryableError(errors.New("dial tcp: connection refused")))
}
