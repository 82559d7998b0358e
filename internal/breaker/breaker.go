// Package breaker guards each generation provider with a failure-rate switch.
// Outcomes land in a ring of one-second buckets; when the failure rate over
// the window crosses the threshold the breaker opens and dispatch fails fast
// until a cooldown passes, then a small trial volume decides between closing
// and re-opening.
package breaker

import (
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

const (
	// DefaultWindow is the sliding failure-rate window.
	DefaultWindow = time.Minute
	// DefaultFailureThreshold opens the breaker when exceeded.
	DefaultFailureThreshold = 0.5
	// DefaultMinSamples keeps a quiet provider from tripping on one bad call.
	DefaultMinSamples = 10
	// DefaultCooldown is how long an open breaker rejects before trialing.
	DefaultCooldown = 30 * time.Second
	// DefaultHalfOpenTrials is the probe volume allowed while half-open.
	DefaultHalfOpenTrials = 3
)

// Options tunes a Breaker. Zero fields use the defaults above.
type Options struct {
	Window           time.Duration
	FailureThreshold float64
	MinSamples       int
	Cooldown         time.Duration
	HalfOpenTrials   int
}

func (o Options) withDefaults() Options {
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = DefaultFailureThreshold
	}
	if o.MinSamples <= 0 {
		o.MinSamples = DefaultMinSamples
	}
	if o.Cooldown <= 0 {
		o.Cooldown = DefaultCooldown
	}
	if o.HalfOpenTrials <= 0 {
		o.HalfOpenTrials = DefaultHalfOpenTrials
	}
	return o
}

type bucket struct {
	sec     int64
	success int
	failure int
}

// Breaker is safe for concurrent use by every worker reporting outcomes for
// one provider.
type Breaker struct {
	mu   sync.Mutex
	opts Options
	now  func() time.Time

	state    State
	buckets  []bucket
	openedAt time.Time

	trialStarted int
	trialPassed  int
}

func New(opts Options) *Breaker {
	o := opts.withDefaults()
	return &Breaker{
		opts:    o,
		now:     time.Now,
		state:   StateClosed,
		buckets: make([]bucket, int(o.Window/time.Second)+1),
	}
}

// Allow reports whether a call to the provider may proceed right now. While
// open it flips to half-open once the cooldown has elapsed; while half-open
// it grants at most HalfOpenTrials probes.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(b.openedAt) < b.opts.Cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.trialStarted = 0
		b.trialPassed = 0
		fallthrough
	case StateHalfOpen:
		if b.trialStarted >= b.opts.HalfOpenTrials {
			return false
		}
		b.trialStarted++
		return true
	}
	return false
}

// Ready reports whether the provider is worth claiming work for, without
// consuming a half-open trial token. Dispatch checks this before every claim;
// only the call site that actually invokes the provider draws from the trial
// budget via Allow.
func (b *Breaker) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		return b.now().Sub(b.openedAt) >= b.opts.Cooldown
	case StateHalfOpen:
		return b.trialStarted < b.opts.HalfOpenTrials
	}
	return false
}

// Success records a successful provider call.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.record(now, true)

	if b.state == StateHalfOpen {
		b.trialPassed++
		if b.trialPassed >= b.opts.HalfOpenTrials {
			b.state = StateClosed
			b.reset()
		}
	}
}

// Failure records a failed provider call and re-evaluates the window.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.record(now, false)

	switch b.state {
	case StateHalfOpen:
		// A failed probe sends the breaker straight back to open.
		b.state = StateOpen
		b.openedAt = now
	case StateClosed:
		success, failure := b.tally(now)
		total := success + failure
		if total >= b.opts.MinSamples && float64(failure)/float64(total) > b.opts.FailureThreshold {
			b.state = StateOpen
			b.openedAt = now
		}
	}
}

// State returns the current position, accounting for an elapsed cooldown.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.opts.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// record drops the outcome into the current second's bucket.
func (b *Breaker) record(now time.Time, success bool) {
	sec := now.Unix()
	idx := int(sec % int64(len(b.buckets)))
	bk := &b.buckets[idx]
	if bk.sec != sec {
		*bk = bucket{sec: sec}
	}
	if success {
		bk.success++
	} else {
		bk.failure++
	}
}

// tally sums outcomes still inside the window.
func (b *Breaker) tally(now time.Time) (success, failure int) {
	oldest := now.Add(-b.opts.Window).Unix()
	for i := range b.buckets {
		bk := &b.buckets[i]
		if bk.sec <= oldest {
			continue
		}
		success += bk.success
		failure += bk.failure
	}
	return success, failure
}

func (b *Breaker) reset() {
	for i := range b.buckets {
		b.buckets[i] = bucket{}
	}
	b.trialStarted = 0
	b.trialPassed = 0
}

// Registry hands out one breaker per provider name.
type Registry struct {
	mu       sync.Mutex
	opts     Options
	breakers map[string]*Breaker
}

func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:     opts.withDefaults(),
		breakers: make(map[string]*Breaker),
	}
}

// For returns the provider's breaker, creating it on first use.
func (r *Registry) For(provider string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	br, ok := r.breakers[provider]
	if !ok {
		br = New(r.opts)
		r.breakers[provider] = br
	}
	return br
}

// States snapshots every known provider's state for logging and metrics.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]State, len(r.breakers))
	for name, br := range r.breakers {
		out[name] = br.State()
	}
	return out
}
