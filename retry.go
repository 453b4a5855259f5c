package prefect

import "time"

// RetryBuilder provides a fluent way to construct RetryPolicy values
// for use with FlowBuilder.WithRetryPolicy.
type RetryBuilder struct {
	policy RetryPolicy
}

// Retry creates a RetryBuilder allowing the given number of retries after
// the initial attempt.
//
// retries <= 0 is treated as 0 (just the initial call).
func Retry(retries int) RetryBuilder {
	if retries < 0 {
		retries = 0
	}
	return RetryBuilder{
		policy: RetryPolicy{
			Retries: retries,
		},
	}
}

// WithDelay configures a fixed delay between attempts.
//
// The delay is applied after every failed attempt except the last one.
func (r RetryBuilder) WithDelay(delay time.Duration) RetryBuilder {
	p := r.policy
	p.RetryDelay = delay
	p.BackoffMultiplier = 0
	p.MaxDelay = 0
	return RetryBuilder{policy: p}
}

// WithExponentialBackoff configures exponential backoff:
//
//   - initial is the delay before the first retry.
//   - multiplier > 1 grows the delay each attempt (default 2.0 if <= 0).
//   - max caps the delay; if <= 0, there is no cap.
//
// Example:
//
//	Retry(3).WithExponentialBackoff(100*time.Millisecond, 2.0, 2*time.Second)
func (r RetryBuilder) WithExponentialBackoff(initial time.Duration, multiplier float64, max time.Duration) RetryBuilder {
	p := r.policy
	p.RetryDelay = initial
	p.MaxDelay = max
	if multiplier <= 0 {
		multiplier = 2.0
	}
	p.BackoffMultiplier = multiplier
	return RetryBuilder{policy: p}
}

// Immediate disables any sleep between retries.
// Retries still respect the configured count.
func (r RetryBuilder) Immediate() RetryBuilder {
	p := r.policy
	p.RetryDelay = 0
	p.MaxDelay = 0
	p.BackoffMultiplier = 0
	return RetryBuilder{policy: p}
}

// Policy returns the underlying RetryPolicy to be passed to
// FlowBuilder.WithRetryPolicy.
func (r RetryBuilder) Policy() RetryPolicy {
	return r.policy
}
