package dispatch

import "time"

// BackoffStrategy selects how retry delays grow between attempts
type BackoffStrategy string

const (
	// BackoffFixed retries after a constant delay
	BackoffFixed BackoffStrategy = "fixed"
	// BackoffExponential retries after BaseDelay * Factor^(attempt-1),
	// capped at MaxDelay
	BackoffExponential BackoffStrategy = "exponential"
)

// Backoff is the retry delay policy for a job
type Backoff struct {
	Strategy  BackoffStrategy `json:"strategy"`
	BaseDelay time.Duration   `json:"base_delay"`
	Factor    float64         `json:"factor,omitempty"`
	MaxDelay  time.Duration   `json:"max_delay,omitempty"`
}

// DefaultBackoff returns the dispatch-wide default policy:
// exponential, base 5s, factor 2, capped at 5 minutes.
func DefaultBackoff() Backoff {
	return Backoff{
		Strategy:  BackoffExponential,
		BaseDelay: 5 * time.Second,
		Factor:    2,
		MaxDelay:  5 * time.Minute,
	}
}

// Delay returns the wait before retrying after the given failed attempt
// (attempt >= 1). Zero-value fields fall back to the defaults.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	base := b.BaseDelay
	if base <= 0 {
		base = 5 * time.Second
	}

	if b.Strategy == BackoffFixed {
		return base
	}

	factor := b.Factor
	if factor <= 0 {
		factor = 2
	}

	max := b.MaxDelay
	if max <= 0 {
		max = 5 * time.Minute
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * factor)
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
