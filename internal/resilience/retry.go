package resilience

import (
	"context"
	"math/rand"
	"time"
)

// Backoff returns an exponential backoff duration for the provided attempt.
// Jitter is expressed as a fraction (e.g. 0.2 == 20%).
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if jitterPct <= 0 {
		return d
	}
	jitter := float64(d) * jitterPct
	delta := (rand.Float64()*2 - 1) * jitter
	return d + time.Duration(delta)
}

// ExponentialBackoff returns a RetryPolicy backoff of base, 2*base, 4*base...
func ExponentialBackoff(base time.Duration) func(retry int) time.Duration {
	return func(retry int) time.Duration { return Backoff(base, retry, 0) }
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy runs an operation up to MaxRetries+1 times.
type RetryPolicy struct {
	MaxRetries int
	// Backoff maps the retry number (1-based) to the wait before it.
	Backoff func(retry int) time.Duration
	// Retryable reports whether err warrants another attempt. nil retries every error.
	Retryable func(error) bool
	// Sleep defaults to SleepContext.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each wait.
	OnRetry func(retry int, err error, wait time.Duration)
}

// Do calls fn with the attempt number starting at 0. It stops on success, on a
// non-retryable error, after MaxRetries retries, or when ctx is done; the last
// fn error is returned in every case except cancellation during a wait.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if attempt >= p.MaxRetries {
			return err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		retry := attempt + 1
		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(retry)
		}
		if p.OnRetry != nil {
			p.OnRetry(retry, err, wait)
		}
		if serr := sleep(ctx, wait); serr != nil {
			return serr
		}
	}
}
