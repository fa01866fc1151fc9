package services

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

const maxShift = 30

// RetryPolicy bounds how often a conflicting read-evaluate-write cycle is
// re-run before ErrConflict reaches the caller.
type RetryPolicy struct {
	Retries   int
	BaseDelay time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Retries: 3, BaseDelay: 10 * time.Millisecond}
}

// delay returns a full-jitter delay in [0, base * 2^attempt).
func (p RetryPolicy) delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	} else if attempt > maxShift {
		attempt = maxShift
	}

	multiplier := int64(1) << attempt
	limit := int64(p.BaseDelay)
	if limit > math.MaxInt64/multiplier {
		limit = math.MaxInt64
	} else {
		limit *= multiplier
	}
	return time.Duration(rand.Int64N(limit))
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("retry aborted: %w", ctx.Err())
	}
}
