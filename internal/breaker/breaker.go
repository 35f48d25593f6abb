// Package breaker implements the per-instance circuit breaker state machine
// and error classifier of the design's circuit breaker component. It is
// deliberately generalized from the teacher's provider-keyed breaker
// (internal/proxy/circuitbreaker.go in the reference tree) to be keyed per
// provider instance, since load balancing fans out across many instances of
// the same provider type.
package breaker

import (
	"math/rand"
	"sync"
	"time"
)

// CBState is the discriminant of the three-state machine.
type CBState int

const (
	StateClosed CBState = iota
	StateOpen
	StateHalfOpen
)

func (s CBState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	FailureThreshold = 3
	SuccessThreshold = 2
	FailureWindow    = 60 * time.Second

	backoffInitial    = 60 * time.Second
	backoffMultiplier = 2.0
	backoffMax        = 600 * time.Second
	jitterMin   = 0.8
	jitterWidth = 0.4 // jitter is drawn uniformly from [jitterMin, jitterMin+jitterWidth) = [0.8, 1.2)
)

// instanceHealth is the mutable per-instance record guarded by its own
// mutex; the design calls for a single read-write lock guarding the whole
// map, but per-entry mutexes give the same correctness with less
// contention between unrelated instances and are what the teacher's
// providerCB already does.
type instanceHealth struct {
	mu sync.Mutex

	state CBState

	// Open
	openedAt    time.Time
	attempt     int
	nextRetryAt time.Time

	// HalfOpen
	probesInFlight int
	successes      int

	consecutiveFailures int
	failureWindowStart  time.Time
	lastFailureTime     time.Time
}

// Breaker owns health state for every instance key ("provider_type/name").
// Entries are created lazily on first touch and never removed; the
// instance set is small and bounded by configuration.
type Breaker struct {
	mu      sync.RWMutex
	entries map[string]*instanceHealth

	now func() time.Time
	rng func() float64
}

// New constructs an empty Breaker.
func New() *Breaker {
	return &Breaker{
		entries: make(map[string]*instanceHealth),
		now:     time.Now,
		rng:     rand.Float64,
	}
}

func (b *Breaker) entry(key string) *instanceHealth {
	b.mu.RLock()
	h, ok := b.entries[key]
	b.mu.RUnlock()
	if ok {
		return h
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if h, ok := b.entries[key]; ok {
		return h
	}
	h = &instanceHealth{state: StateClosed}
	b.entries[key] = h
	return h
}

// Backoff computes the next-retry delay for the k-th open transition
// (k starts at 1), per the design's exponential-with-jitter schedule. base
// is the instance's configured FailureTimeout (spec §3's "initial CB open
// duration"); a zero or negative base (no per-instance value configured)
// falls back to backoffInitial.
func Backoff(attempt int, base time.Duration, rng func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = backoffInitial
	}
	d := float64(base) * pow(backoffMultiplier, attempt-1)
	if d < float64(base) {
		d = float64(base)
	}
	if d > float64(backoffMax) {
		d = float64(backoffMax)
	}
	jitter := jitterMin + rng()*jitterWidth
	return time.Duration(d * jitter)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// Allow reports whether key may be selected right now, and performs the
// Open→HalfOpen transition if next_retry_at has elapsed. The triggering
// caller becomes the probe when that transition fires.
func (b *Breaker) Allow(key string) bool {
	h := b.entry(key)
	h.mu.Lock()
	defer h.mu.Unlock()

	now := b.now()
	switch h.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if h.probesInFlight >= 1 {
			return false
		}
		h.probesInFlight = 1
		return true
	case StateOpen:
		if now.Before(h.nextRetryAt) {
			return false
		}
		h.state = StateHalfOpen
		h.probesInFlight = 1
		h.successes = 0
		return true
	default:
		return false
	}
}

// State returns the current state without mutating it.
func (b *Breaker) State(key string) CBState {
	h := b.entry(key)
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// CanSelect reports whether key could currently be chosen, without
// claiming a HalfOpen probe slot or performing the Open→HalfOpen
// transition. Callers enumerating multiple candidates before picking one
// must use this instead of Allow — Allow's side effects are only correct
// when called on the single instance actually selected.
func (b *Breaker) CanSelect(key string) bool {
	h := b.entry(key)
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		return h.probesInFlight == 0
	case StateOpen:
		return !b.now().Before(h.nextRetryAt)
	default:
		return false
	}
}

// NextRetryAt returns the instant an Open instance becomes eligible for a
// probe; the zero time if the instance is not Open.
func (b *Breaker) NextRetryAt(key string) time.Time {
	h := b.entry(key)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateOpen {
		return time.Time{}
	}
	return h.nextRetryAt
}

// ConsecutiveFailures returns the current run length of failures within the
// active failure window, for observability records.
func (b *Breaker) ConsecutiveFailures(key string) int {
	h := b.entry(key)
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.consecutiveFailures
}

// RecordSuccess reports a Success (2xx) outcome for key.
func (b *Breaker) RecordSuccess(key string) {
	h := b.entry(key)
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case StateHalfOpen:
		h.successes++
		h.probesInFlight = 0
		if h.successes >= SuccessThreshold {
			b.resetLocked(h)
		}
	case StateClosed:
		h.consecutiveFailures = 0
	}
}

// RecordFailure reports an InstanceFailure-class outcome for key
// (RateLimit and Transient classes don't count toward the threshold and
// should not call this; see classifier.go). baseTimeout is the instance's
// configured FailureTimeout (spec §3); pass 0 to fall back to the package
// default backoffInitial.
func (b *Breaker) RecordFailure(key string, baseTimeout time.Duration) {
	h := b.entry(key)
	h.mu.Lock()
	defer h.mu.Unlock()

	now := b.now()

	switch h.state {
	case StateHalfOpen:
		h.probesInFlight = 0
		h.attempt++
		h.openedAt = now
		h.nextRetryAt = now.Add(Backoff(h.attempt, baseTimeout, b.rng))
		h.state = StateOpen
		h.consecutiveFailures = 0
		return
	case StateOpen:
		// A failure arriving while already Open (e.g. a losing race on a
		// concurrent probe) is absorbed; the existing schedule stands.
		return
	}

	if h.failureWindowStart.IsZero() || now.Sub(h.failureWindowStart) > FailureWindow {
		h.failureWindowStart = now
		h.consecutiveFailures = 1
	} else {
		h.consecutiveFailures++
	}
	h.lastFailureTime = now

	if h.consecutiveFailures >= FailureThreshold {
		h.attempt = 1
		h.openedAt = now
		h.nextRetryAt = now.Add(Backoff(h.attempt, baseTimeout, b.rng))
		h.state = StateOpen
	}
}

// MarkDegraded records a RateLimit- or Transient-class outcome: it neither counts toward
// the failure threshold nor changes state, but ends a HalfOpen probe so a
// subsequent request can probe again.
func (b *Breaker) MarkDegraded(key string) {
	h := b.entry(key)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateHalfOpen {
		h.probesInFlight = 0
	}
}

func (b *Breaker) resetLocked(h *instanceHealth) {
	h.state = StateClosed
	h.attempt = 0
	h.successes = 0
	h.probesInFlight = 0
	h.consecutiveFailures = 0
	h.failureWindowStart = time.Time{}
	h.nextRetryAt = time.Time{}
}

// TickRecovery transitions every Open instance whose next_retry_at has
// elapsed to HalfOpen, without waiting for a request to trigger it. It is
// driven by the load balancer's background ticker (§4.2).
func (b *Breaker) TickRecovery() {
	b.mu.RLock()
	keys := make([]string, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	b.mu.RUnlock()

	now := b.now()
	for _, k := range keys {
		h := b.entry(k)
		h.mu.Lock()
		if h.state == StateOpen && !now.Before(h.nextRetryAt) {
			h.state = StateHalfOpen
			h.probesInFlight = 0
			h.successes = 0
		}
		h.mu.Unlock()
	}
}
