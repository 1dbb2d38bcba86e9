package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyRetriesTransient(t *testing.T) {
	calls := 0
	var retried []int
	attempts, err := fastPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return pgErr(pgerrcode.DeadlockDetected)
		}
		return nil
	}, func(attempt int, err error) { retried = append(retried, attempt) })

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetryPolicyNeverRetriesPermanent(t *testing.T) {
	calls := 0
	attempts, err := fastPolicy().Do(context.Background(), func(context.Context) error {
		calls++
		return pgErr(pgerrcode.CheckViolation)
	}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, Permanent, Classify(err))
}

func TestRetryPolicyExhaustion(t *testing.T) {
	want := pgErr(pgerrcode.SerializationFailure)
	attempts, err := fastPolicy().Do(context.Background(), func(context.Context) error { return want }, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, want))
	assert.Equal(t, 3, attempts)
}

func TestRetryPolicyStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := RetryPolicy{MaxAttempts: 10, InitialBackoff: time.Hour, MaxBackoff: time.Hour}
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	attempts, err := p.Do(ctx, func(context.Context) error { return pgErr(pgerrcode.DeadlockDetected) }, nil)

	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Minute)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, Permanent, Classify(err))
}

func TestRetryPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultRetryPolicy().Validate())
	assert.Error(t, RetryPolicy{MaxAttempts: 0}.Validate())
	assert.Error(t, RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Second, MaxBackoff: time.Millisecond}.Validate())
	assert.Error(t, RetryPolicy{MaxAttempts: 2, Jitter: 2}.Validate())
}
