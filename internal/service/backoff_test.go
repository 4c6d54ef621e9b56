package service

import (
	"testing"
	"time"

	"fileflow/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Delay(t *testing.T) {
	p := NewRetryPolicy(config.WorkerConfig{
		BaseBackoffMs:     2000,
		BackoffMultiplier: 2,
		MaxBackoffMs:      10000,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 2 * time.Second},
		{attempt: 2, want: 4 * time.Second},
		{attempt: 3, want: 8 * time.Second},
		{attempt: 4, want: 10 * time.Second},
		{attempt: 10, want: 10 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestRetryPolicy_FlatMultiplier(t *testing.T) {
	p := RetryPolicy{Base: time.Second, Multiplier: 1, Max: time.Minute}

	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, time.Second, p.Delay(5))
}
