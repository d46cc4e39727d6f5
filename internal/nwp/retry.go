package nwp

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy is a value type describing the backoff schedule for
// transient failures. Jitter is a full-jitter upper bound added to each
// delay; zero disables it, which is how tests pin the schedule.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration
}

// DefaultRetryPolicy is three attempts with exponential backoff from 1s,
// capped at 30s, plus up to 100ms of jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      100 * time.Millisecond,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	return p
}

// DelayFor computes the backoff before retry number attempt (1-based: the
// delay after the first failed attempt is DelayFor(1)). The deterministic
// part is BaseDelay doubled per attempt and capped at MaxDelay; rng adds
// the jitter and may be nil to use the shared source.
func (p RetryPolicy) DelayFor(attempt int, rng *rand.Rand) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	delay := time.Duration(backoff)
	if delay > p.MaxDelay || backoff > float64(math.MaxInt64) {
		delay = p.MaxDelay
	}
	if p.Jitter > 0 {
		if rng != nil {
			delay += time.Duration(rng.Int63n(int64(p.Jitter) + 1))
		} else {
			delay += time.Duration(rand.Int63n(int64(p.Jitter) + 1))
		}
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}
