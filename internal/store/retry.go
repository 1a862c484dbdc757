package store

import (
	"context"
	"time"

	"github.com/honecore/core/internal/honeerr"
)

// Retry/backoff schedule for transient write failures (SQLite lock
// contention under concurrent imports). Shape mirrors the teacher's
// extraction retry constants (MaxRetryAttempts/InitialBackoff/MaxBackoff/
// BackoffMultiplier), scaled down from network-call latencies to the
// sub-second timescale of a local database busy-retry.
const (
	maxWriteAttempts  = 3
	initialWriteDelay = 20 * time.Millisecond
	maxWriteDelay     = 200 * time.Millisecond
	writeDelayFactor  = 2.0
)

// withRetry runs fn, retrying with exponential backoff while fn's error
// classifies as honeerr.KindTransient, per spec.md's error-handling design:
// "Transient — database busy / lock contention; callers retry with
// backoff." Any other error, or the context being done, returns immediately.
func withRetry(ctx context.Context, fn func() error) error {
	delay := initialWriteDelay
	var err error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		err = fn()
		if err == nil || !honeerr.IsRetryable(err) || attempt == maxWriteAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * writeDelayFactor)
		if delay > maxWriteDelay {
			delay = maxWriteDelay
		}
	}
	return err
}
