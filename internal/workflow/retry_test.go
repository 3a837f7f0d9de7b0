package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	tests := []struct {
		attempt int
		max     time.Duration
	}{
		{attempt: 1, max: 100 * time.Millisecond},
		{attempt: 2, max: 200 * time.Millisecond},
		{attempt: 3, max: 400 * time.Millisecond},
		{attempt: 10, max: time.Second},
		{attempt: 80, max: time.Second},
	}
	for _, tt := range tests {
		for range 50 {
			d := p.Backoff(tt.attempt)
			assert.LessOrEqual(t, d, tt.max)
			assert.GreaterOrEqual(t, d, tt.max/2)
		}
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusRunning))
	assert.True(t, CanTransition(StatusRunning, StatusRunning))
	assert.True(t, CanTransition(StatusRunning, StatusCompleted))
	assert.False(t, CanTransition(StatusCompleted, StatusRunning))
	assert.False(t, CanTransition(StatusFailed, StatusRunning))
	assert.False(t, CanTransition(StatusPending, StatusCompleted))
}
