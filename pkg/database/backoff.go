package database

import (
	"context"
	"time"
)

// Backoff is a capped exponential delay schedule.
type Backoff struct {
	MaxRetries int
	Delay      time.Duration
	MaxDelay   time.Duration
}

// NextDelay returns the wait before retry number attempt (0-indexed).
func (b Backoff) NextDelay(attempt int) time.Duration {
	if attempt > 30 {
		return b.MaxDelay
	}
	d := b.Delay << attempt
	if d > b.MaxDelay || d <= 0 {
		return b.MaxDelay
	}
	return d
}

// Wait sleeps for NextDelay(attempt) or until ctx is done.
func (b Backoff) Wait(ctx context.Context, attempt int) error {
	t := time.NewTimer(b.NextDelay(attempt))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
