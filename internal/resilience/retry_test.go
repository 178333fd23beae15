package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/candle-checkout/internal/resilience"
)

type recordingSleeper struct {
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

var errFlaky = errors.New("flaky")

func TestRetryPolicyBacksOffExponentially(t *testing.T) {
	sleeper := &recordingSleeper{}
	policy := resilience.RetryPolicy{
		MaxRetries: 2,
		Backoff:    resilience.ExponentialBackoff(time.Second),
		Sleep:      sleeper.Sleep,
	}

	var attempts []int
	err := policy.Do(context.Background(), func(_ context.Context, attempt int) error {
		attempts = append(attempts, attempt)
		return errFlaky
	})
	require.ErrorIs(t, err, errFlaky)
	require.Equal(t, []int{0, 1, 2}, attempts)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.waits)
}

func TestRetryPolicyStopsOnSuccess(t *testing.T) {
	sleeper := &recordingSleeper{}
	policy := resilience.RetryPolicy{MaxRetries: 5, Sleep: sleeper.Sleep}

	calls := 0
	err := policy.Do(context.Background(), func(context.Context, int) error {
		calls++
		if calls < 2 {
			return errFlaky
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Len(t, sleeper.waits, 1)
}

func TestRetryPolicySkipsNonRetryable(t *testing.T) {
	terminal := errors.New("card declined")
	policy := resilience.RetryPolicy{
		MaxRetries: 3,
		Retryable:  func(err error) bool { return !errors.Is(err, terminal) },
		Sleep:      (&recordingSleeper{}).Sleep,
	}
	calls := 0
	err := policy.Do(context.Background(), func(context.Context, int) error {
		calls++
		return terminal
	})
	require.ErrorIs(t, err, terminal)
	require.Equal(t, 1, calls)
}

func TestRetryPolicyHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	retries := 0
	policy := resilience.RetryPolicy{
		MaxRetries: 5,
		Backoff:    resilience.ExponentialBackoff(time.Hour),
		OnRetry: func(int, error, time.Duration) {
			retries++
			cancel()
		},
	}
	calls := 0
	err := policy.Do(ctx, func(context.Context, int) error {
		calls++
		return errFlaky
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
	require.Equal(t, 1, retries)
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, resilience.SleepContext(context.Background(), time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, resilience.SleepContext(ctx, time.Hour), context.Canceled)
}
