package scheduler

import "time"

// RetryPolicy defines the backoff parameters for failed delivery attempts.
// A failed attempt does not retry synchronously; it defers the item's
// scheduled time so a later due-check picks it up again.
type RetryPolicy struct {
	// MaxAttempts is the cap on delivery attempts; reaching it is terminal.
	MaxAttempts int

	// BaseDelay scales the backoff linearly with the attempt count.
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration
}

// DefaultRetryPolicy matches the push-path reference behavior: three attempts,
// five-minute base delay, capped at one hour.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   5 * time.Minute,
		MaxDelay:    1 * time.Hour,
	}
}

// BackoffDelay computes the deferral after the given failed attempt count.
// The growth is linear in attempts (baseDelay * attempts), not exponential;
// attempts below 1 are treated as 1.
func BackoffDelay(policy RetryPolicy, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := policy.BaseDelay * time.Duration(attempts)
	if policy.MaxDelay > 0 && d > policy.MaxDelay {
		return policy.MaxDelay
	}
	return d
}
