package service

import (
	"time"

	"github.com/cenkalti/backoff/v5"

	"fileflow/internal/config"
)

// RetryPolicy computes the wait before redelivering a failed attempt:
// min(base * multiplier^(attempt-1), max), without jitter.
type RetryPolicy struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
}

func NewRetryPolicy(cfg config.WorkerConfig) RetryPolicy {
	return RetryPolicy{
		Base:       cfg.BaseBackoff(),
		Multiplier: cfg.BackoffMultiplier,
		Max:        cfg.MaxBackoff(),
	}
}

// Delay returns the delay after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.Base,
		RandomizationFactor: 0,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.Max,
	}
	b.Reset()
	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
