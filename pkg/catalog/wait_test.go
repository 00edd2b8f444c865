package catalog_test

import (
	"context"
	"errors"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/fivetwenty-io/catalog-client/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialWaitPolicy_DelayFor(t *testing.T) {
	t.Parallel()

	policy := &catalog.ExponentialWaitPolicy{
		Base:       100 * time.Millisecond,
		Max:        time.Second,
		Multiplier: 2,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{attempt: -1, expected: 100 * time.Millisecond},
		{attempt: 0, expected: 100 * time.Millisecond},
		{attempt: 1, expected: 200 * time.Millisecond},
		{attempt: 2, expected: 400 * time.Millisecond},
		{attempt: 3, expected: 800 * time.Millisecond},
		{attempt: 4, expected: time.Second},
		{attempt: 60, expected: time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, policy.DelayFor(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponentialWaitPolicy_UncappedOverflow(t *testing.T) {
	t.Parallel()

	uncapped := &catalog.ExponentialWaitPolicy{Base: time.Second, Multiplier: 2}
	assert.Equal(t, time.Duration(math.MaxInt64), uncapped.DelayFor(2000))
	assert.Positive(t, uncapped.DelayFor(40))

	zeroBase := &catalog.ExponentialWaitPolicy{Multiplier: 2}
	assert.Zero(t, zeroBase.DelayFor(2000))
}

func TestExponentialWaitPolicy_JitterStaysInBounds(t *testing.T) {
	t.Parallel()

	policy := &catalog.ExponentialWaitPolicy{
		Base:       100 * time.Millisecond,
		Max:        time.Second,
		Multiplier: 2,
		Jitter:     0.5,
	}

	for attempt := range 10 {
		for range 100 {
			delay := policy.DelayFor(attempt)
			assert.GreaterOrEqual(t, delay, time.Duration(0))
			assert.LessOrEqual(t, delay, time.Second)
		}
	}

	// Attempt 0 is jittered around the base
	for range 100 {
		delay := policy.DelayFor(0)
		assert.GreaterOrEqual(t, delay, 50*time.Millisecond)
		assert.LessOrEqual(t, delay, 150*time.Millisecond)
	}
}

func TestDefaultWaitPolicy(t *testing.T) {
	t.Parallel()

	policy := catalog.DefaultWaitPolicy()
	assert.Positive(t, policy.DelayFor(0))
	assert.LessOrEqual(t, policy.DelayFor(100), policy.Max)
}

func TestRetryBackoff(t *testing.T) {
	t.Parallel()

	backoff := catalog.RetryBackoff(catalog.WaitPolicyFunc(func(attempt int) time.Duration {
		return time.Duration(attempt) * time.Second
	}))

	// Clamped to [min, max]
	assert.Equal(t, 500*time.Millisecond, backoff(500*time.Millisecond, 5*time.Second, 0, nil))
	assert.Equal(t, 2*time.Second, backoff(500*time.Millisecond, 5*time.Second, 2, nil))
	assert.Equal(t, 5*time.Second, backoff(500*time.Millisecond, 5*time.Second, 9, nil))

	// Retry-After wins on throttling
	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
	resp.Header.Set("Retry-After", "3")
	assert.Equal(t, 3*time.Second, backoff(500*time.Millisecond, 5*time.Second, 0, resp))

	resp.Header.Set("Retry-After", "60")
	assert.Equal(t, 5*time.Second, backoff(500*time.Millisecond, 5*time.Second, 0, resp))

	// Ignored on other statuses
	resp.StatusCode = http.StatusBadGateway
	assert.Equal(t, time.Second, backoff(500*time.Millisecond, 5*time.Second, 1, resp))
}

func TestWaitUntil(t *testing.T) {
	t.Parallel()

	noDelay := catalog.WaitPolicyFunc(func(int) time.Duration { return 0 })

	t.Run("succeeds", func(t *testing.T) {
		t.Parallel()

		checks := 0
		err := catalog.WaitUntil(context.Background(), noDelay, 5, func(context.Context) (bool, error) {
			checks++

			return checks == 3, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, checks)
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		t.Parallel()

		checks := 0
		err := catalog.WaitUntil(context.Background(), noDelay, 4, func(context.Context) (bool, error) {
			checks++

			return false, nil
		})
		require.ErrorIs(t, err, catalog.ErrWaitAttemptsExhausted)
		assert.Equal(t, 4, checks)
	})

	t.Run("aborts on error", func(t *testing.T) {
		t.Parallel()

		failure := errors.New("job failed")
		err := catalog.WaitUntil(context.Background(), noDelay, 4, func(context.Context) (bool, error) {
			return false, failure
		})
		require.ErrorIs(t, err, failure)
	})

	t.Run("honors context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		slow := catalog.WaitPolicyFunc(func(int) time.Duration { return time.Hour })
		err := catalog.WaitUntil(ctx, slow, 4, func(context.Context) (bool, error) {
			return false, nil
		})
		require.ErrorIs(t, err, context.Canceled)
	})
}
