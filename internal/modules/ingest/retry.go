package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
)

// RetryPolicy controls how one chunk is retried on transient failures.
// MaxAttempts counts the first try.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Jitter adds up to Jitter*InitialBackoff of random delay per retry.
	Jitter float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    4,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Jitter:         0.2,
	}
}

func (p RetryPolicy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return fmt.Errorf("retry: max attempts must be >= 1, got %d", p.MaxAttempts)
	case p.InitialBackoff < 0 || p.MaxBackoff < 0:
		return errors.New("retry: backoff must not be negative")
	case p.MaxBackoff > 0 && p.MaxBackoff < p.InitialBackoff:
		return fmt.Errorf("retry: max backoff %s below initial backoff %s", p.MaxBackoff, p.InitialBackoff)
	case p.Jitter < 0 || p.Jitter > 1:
		return fmt.Errorf("retry: jitter must be in [0, 1], got %v", p.Jitter)
	}
	return nil
}

// Do runs fn until it succeeds, returns a permanent error, or the attempts
// run out. It reports how many times fn ran. An exhausted transient error is
// returned as is; the caller decides how to record it.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error, onRetry func(attempt int, err error)) (int, error) {
	attempts := 0
	var last error
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(max(p.MaxAttempts, 1))),
		retry.Delay(p.InitialBackoff),
		retry.MaxDelay(p.MaxBackoff),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return Classify(err) == Transient }),
		retry.OnRetry(func(n uint, err error) {
			if onRetry != nil && int(n)+1 < p.MaxAttempts {
				onRetry(int(n)+1, err)
			}
		}),
	}
	if jitter := time.Duration(p.Jitter * float64(p.InitialBackoff)); jitter > 0 {
		opts = append(opts,
			retry.MaxJitter(jitter),
			retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		)
	} else {
		opts = append(opts, retry.DelayType(retry.BackOffDelay))
	}

	err := retry.Do(func() error {
		attempts++
		last = fn(ctx)
		return last
	}, opts...)
	if err != nil && last != nil && !errors.Is(err, last) {
		// Context ended while waiting between attempts.
		return attempts, fmt.Errorf("%w (last attempt: %v)", err, last)
	}
	return attempts, err
}
