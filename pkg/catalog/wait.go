package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/fivetwenty-io/catalog-client/internal/constants"
)

// WaitPolicy computes how long to wait before a retry attempt.
// It never decides whether to retry; that is the caller's state machine.
type WaitPolicy interface {
	DelayFor(attempt int) time.Duration
}

// WaitPolicyFunc adapts a function to WaitPolicy.
type WaitPolicyFunc func(attempt int) time.Duration

// DelayFor implements WaitPolicy.
func (f WaitPolicyFunc) DelayFor(attempt int) time.Duration {
	return f(attempt)
}

// ExponentialWaitPolicy grows the delay geometrically from Base, randomizes it
// by +/- Jitter (a fraction of the delay) and caps it at Max.
type ExponentialWaitPolicy struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// DefaultWaitPolicy returns the policy used by caches and the transport.
func DefaultWaitPolicy() *ExponentialWaitPolicy {
	return &ExponentialWaitPolicy{
		Base:       constants.DefaultBackoffBase,
		Max:        constants.DefaultRetryWaitMax,
		Multiplier: constants.ExponentialBackoffBase,
		Jitter:     constants.DefaultJitterFraction,
	}
}

// DelayFor implements WaitPolicy. Attempt 0 is the first retry.
func (p *ExponentialWaitPolicy) DelayFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = constants.ExponentialBackoffBase
	}

	delay := float64(p.Base) * math.Pow(multiplier, float64(attempt))
	if p.Max > 0 && delay > float64(p.Max) {
		delay = float64(p.Max)
	}

	if p.Jitter > 0 {
		// #nosec G404 -- jitter does not need a cryptographic source
		delay += delay * p.Jitter * (2*rand.Float64() - 1)
	}

	if delay < 0 {
		delay = 0
	}

	if p.Max > 0 && delay > float64(p.Max) {
		delay = float64(p.Max)
	}

	switch {
	case math.IsNaN(delay):
		return 0
	case delay >= math.MaxInt64:
		// float64(math.MaxInt64) rounds up to 2^63, which does not convert
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(delay)
}

// RetryBackoff adapts a WaitPolicy to the retryablehttp backoff hook so the
// transport retries on the same schedule as the caches. A Retry-After header
// on 429/503 responses takes precedence; every delay is clamped to [minWait, maxWait].
func RetryBackoff(policy WaitPolicy) retryablehttp.Backoff {
	return func(minWait, maxWait time.Duration, attemptNum int, resp *http.Response) time.Duration {
		if resp != nil && (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable) {
			if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds >= 0 {
				return clamp(time.Duration(seconds)*time.Second, minWait, maxWait)
			}
		}

		return clamp(policy.DelayFor(attemptNum), minWait, maxWait)
	}
}

func clamp(value, lower, upper time.Duration) time.Duration {
	if value < lower {
		return lower
	}

	if upper > 0 && value > upper {
		return upper
	}

	return value
}

// WaitUntil polls check until it reports done, sleeping policy.DelayFor(n)
// between attempts. It is used for readiness checks and long-running
// operation polling. Errors from check abort immediately.
func WaitUntil(ctx context.Context, policy WaitPolicy, maxAttempts int, check func(ctx context.Context) (bool, error)) error {
	if policy == nil {
		policy = DefaultWaitPolicy()
	}

	for attempt := 0; maxAttempts <= 0 || attempt < maxAttempts; attempt++ {
		done, err := check(ctx)
		if err != nil {
			return err
		}

		if done {
			return nil
		}

		if maxAttempts > 0 && attempt == maxAttempts-1 {
			break
		}

		err = sleepContext(ctx, policy.DelayFor(attempt))
		if err != nil {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts", ErrWaitAttemptsExhausted, maxAttempts)
}

func isWaitExhausted(err error) bool {
	return errors.Is(err, ErrWaitAttemptsExhausted)
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("waiting: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
