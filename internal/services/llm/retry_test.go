package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/merx/internal/interfaces"
)

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429 status", errors.New("Error 429, too many requests"), true},
		{"resource exhausted", errors.New("Status: RESOURCE_EXHAUSTED"), true},
		{"quota", errors.New("quota exceeded for model"), true},
		{"anthropic rate limit", errors.New("rate_limit_error: requests per minute"), true},
		{"unrelated", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRateLimitError(tt.err))
		})
	}
}

func TestExtractRetryDelay(t *testing.T) {
	err := errors.New("Error 429, Message: Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED")
	delay := ExtractRetryDelay(err)
	assert.InDelta(t, 45.387, delay.Seconds(), 0.01)

	assert.Equal(t, time.Duration(0), ExtractRetryDelay(errors.New("no delay here")))
	assert.Equal(t, time.Duration(0), ExtractRetryDelay(nil))
}

func TestWithRetryPassesThroughNonRateLimitErrors(t *testing.T) {
	cfg := NewDefaultRetryConfig()
	calls := 0

	_, err := withRetry(context.Background(), cfg, arbor.NewLogger(), func() (string, error) {
		calls++
		return "", errors.New("connection refused")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "non-rate-limit errors are not retried")
}

func TestWithRetryRecoversAfterRateLimit(t *testing.T) {
	cfg := &RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}

	calls := 0
	result, err := withRetry(context.Background(), cfg, arbor.NewLogger(), func() (string, error) {
		calls++
		if calls < 2 {
			return "", fmt.Errorf("429 rate limited")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, calls)
}

func TestWithRetryExhaustsBudget(t *testing.T) {
	cfg := &RetryConfig{
		MaxRetries:        1,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}

	calls := 0
	_, err := withRetry(context.Background(), cfg, arbor.NewLogger(), func() (string, error) {
		calls++
		return "", errors.New("quota exceeded")
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls, "initial attempt plus one retry")
	assert.Contains(t, err.Error(), "exhausted")
}

func TestDisabledService(t *testing.T) {
	svc := &disabledService{}
	assert.False(t, svc.IsAvailable())
	assert.Equal(t, "disabled", svc.ModelID())

	_, err := svc.Complete(context.Background(), interfaces.CompletionRequest{Prompt: "x"})
	assert.Error(t, err)
}
