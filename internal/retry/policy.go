package retry

import (
	"math/rand/v2"
	"time"

	"github.com/MrJamesThe3rd/paycore/internal/provider"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 200 * time.Millisecond
	DefaultMaxDelay    = 5 * time.Second
	DefaultJitter      = 0.5
)

// Decision is either RetryAfter(d) or GiveUp.
type Decision struct {
	Retry bool
	After time.Duration
}

func RetryAfter(d time.Duration) Decision { return Decision{Retry: true, After: d} }

func GiveUp() Decision { return Decision{} }

// Policy decides whether a failed provider call is attempted again.
// It holds configuration only and is safe to share between goroutines.
type Policy struct {
	// MaxAttempts counts the first attempt.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the fraction of each delay that is randomised, in [0, 1].
	Jitter float64
	// Rand returns a value in [0, 1); nil uses math/rand/v2.
	Rand func() float64
}

func Default() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Jitter:      DefaultJitter,
	}
}

// WithDefaults fills unset fields from Default. A policy with no delays configured also takes the
// default jitter; a single attempt must be asked for with MaxAttempts: 1.
func (p Policy) WithDefaults() Policy {
	if p.MaxAttempts == 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}

	if p.BaseDelay == 0 && p.MaxDelay == 0 {
		p.BaseDelay, p.MaxDelay = DefaultBaseDelay, DefaultMaxDelay
		if p.Jitter == 0 {
			p.Jitter = DefaultJitter
		}
	}

	return p
}

// Decide is called after attempt number `attempt` (1-based) produced outcome.
// Only transient failures are retried, and never beyond MaxAttempts calls in total.
func (p Policy) Decide(attempt int, outcome provider.Outcome) Decision {
	if !outcome.Retryable() {
		return GiveUp()
	}

	if attempt >= p.maxAttempts() {
		return GiveUp()
	}

	return RetryAfter(p.Backoff(attempt))
}

// Backoff is BaseDelay doubled per completed attempt, capped at MaxDelay, with the
// jittered fraction drawn uniformly below the cap.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}

	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}

	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}

	jitter := min(max(p.Jitter, 0), 1)
	if jitter == 0 {
		return d
	}

	r := p.Rand
	if r == nil {
		r = rand.Float64
	}

	spread := time.Duration(float64(d) * jitter)

	return d - spread + time.Duration(r()*float64(spread))
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}

	return p.MaxAttempts
}
