// Package retrypolicy decides whether and when a failed generation may run
// again: exponential backoff with jitter, bounded by a per-content-type
// attempt budget.
package retrypolicy

import (
	"math"
	"math/rand/v2"
	"time"

	"mediagen/internal/domain"
)

const (
	// DefaultBaseDelay is the wait before the first retry.
	DefaultBaseDelay = 10 * time.Second
	// DefaultMaxDelay caps the backoff curve.
	DefaultMaxDelay = 10 * time.Minute
	// DefaultMultiplier doubles the delay per consumed retry.
	DefaultMultiplier = 2.0
	// DefaultJitter spreads delays ±20% to avoid thundering-herd resubmission.
	DefaultJitter = 0.2
	// DefaultMaxAttempts bounds retries per record unless the content type
	// overrides it.
	DefaultMaxAttempts = 3
)

// Options configures a Policy. Zero fields fall back to the defaults above.
type Options struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      float64
	MaxAttempts map[domain.ContentType]int
	// Rand overrides the jitter source; tests pin it.
	Rand func() float64
}

// Policy is safe for concurrent use.
type Policy struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	multiplier  float64
	jitter      float64
	maxAttempts map[domain.ContentType]int
	randFloat   func() float64
}

func New(opts Options) *Policy {
	p := &Policy{
		baseDelay:   opts.BaseDelay,
		maxDelay:    opts.MaxDelay,
		multiplier:  opts.Multiplier,
		jitter:      opts.Jitter,
		maxAttempts: opts.MaxAttempts,
		randFloat:   opts.Rand,
	}
	if p.baseDelay <= 0 {
		p.baseDelay = DefaultBaseDelay
	}
	if p.maxDelay <= 0 {
		p.maxDelay = DefaultMaxDelay
	}
	if p.multiplier <= 0 {
		p.multiplier = DefaultMultiplier
	}
	if p.jitter < 0 {
		p.jitter = 0
	} else if p.jitter == 0 {
		p.jitter = DefaultJitter
	}
	if p.randFloat == nil {
		p.randFloat = rand.Float64
	}
	return p
}

// MaxAttempts returns the retry budget for a content type.
func (p *Policy) MaxAttempts(ct domain.ContentType) int {
	if n, ok := p.maxAttempts[ct]; ok && n >= 0 {
		return n
	}
	return DefaultMaxAttempts
}

// Allow reports whether the FAILED record may re-queue under its budget.
func (p *Policy) Allow(rec *domain.GenerationRecord) bool {
	return rec.RetryEligible(p.MaxAttempts(rec.ContentType))
}

// Delay computes the wait before retry number retryCount+1:
// min(maxDelay, baseDelay·multiplier^retryCount), spread by ±jitter.
func (p *Policy) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	raw := float64(p.baseDelay) * math.Pow(p.multiplier, float64(retryCount))
	if raw > float64(p.maxDelay) {
		raw = float64(p.maxDelay)
	}
	// Uniform in [1-jitter, 1+jitter].
	factor := 1 + p.jitter*(2*p.randFloat()-1)
	d := time.Duration(raw * factor)
	if d < 0 {
		d = 0
	}
	return d
}

// NextRetryAt is the earliest dispatch time for the re-queued record.
func (p *Policy) NextRetryAt(now time.Time, retryCount int) time.Time {
	return now.Add(p.Delay(retryCount))
}
