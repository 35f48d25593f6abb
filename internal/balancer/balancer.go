// Package balancer implements the load balancer component: sticky-session
// affinity over an API key identity, priority + weighted instance
// selection, and the background session-sweeper and CB-recovery-tick tasks.
// It is grounded on the teacher's failover.go/healthchecker.go pair
// (internal/proxy in the reference tree), generalized from a flat
// fallback-order list to the priority/weight/session model.
package balancer

import (
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/relaylayer/llmcore/internal/breaker"
	"github.com/relaylayer/llmcore/internal/model"
)

const defaultWeight = 100

// Balancer selects a ProviderInstance for a (provider_type, api_key_id)
// pair, consulting circuit-breaker state and sticky sessions.
type Balancer struct {
	instances atomic.Pointer[map[model.ProviderType][]model.ProviderInstance]

	sessions SessionStore
	cb       *breaker.Breaker

	rng func() float64

	stop chan struct{}
}

// New constructs a Balancer. store is typically a *SegmentedSessionStore
// (in-process) or *RedisSessionStore (distributed); cb owns the circuit
// breaker state the selection algorithm consults.
func New(store SessionStore, cb *breaker.Breaker) *Balancer {
	b := &Balancer{
		sessions: store,
		cb:       cb,
		rng:      rand.Float64,
		stop:     make(chan struct{}),
	}
	empty := map[model.ProviderType][]model.ProviderInstance{}
	b.instances.Store(&empty)
	return b
}

// Reload atomically replaces the instance set. Existing sessions bound to
// instances absent from the new set are discarded lazily on next lookup,
// per the design's "discard on next lookup" invariant; Reload itself
// doesn't walk the session store.
func (b *Balancer) Reload(instances map[model.ProviderType][]model.ProviderInstance) {
	snapshot := make(map[model.ProviderType][]model.ProviderInstance, len(instances))
	for k, v := range instances {
		cp := make([]model.ProviderInstance, len(v))
		copy(cp, v)
		snapshot[k] = cp
	}
	b.instances.Store(&snapshot)
}

// Select returns an instance for providerType bound to apiKeyID, honoring
// sticky sessions, health, priority, and weight.
func (b *Balancer) Select(providerType model.ProviderType, apiKeyID string) (model.ProviderInstance, error) {
	return b.SelectExcluding(providerType, apiKeyID, nil)
}

// SelectExcluding is Select with a set of instance keys (model.ProviderInstance.Key())
// the retry loop has already tried this request and must not offer again.
// A sticky session bound to an excluded instance is treated the same as one
// bound to an unhealthy instance: the binding is dropped and selection falls
// through to the priority/weight algorithm.
func (b *Balancer) SelectExcluding(providerType model.ProviderType, apiKeyID string, excluded map[string]bool) (model.ProviderInstance, error) {
	snapshot := *b.instances.Load()
	candidates := snapshot[providerType]

	now := time.Now()
	ptKey := string(providerType)

	if sess, ok := b.sessions.Get(ptKey, apiKeyID); ok {
		if inst, found := findEnabled(candidates, sess.InstanceName); found && !excluded[inst.Key()] {
			state := b.cb.State(inst.Key())
			if state == breaker.StateClosed || state == breaker.StateHalfOpen {
				b.sessions.Touch(ptKey, apiKeyID, now)
				return inst, nil
			}
		}
		// Bound instance is Open, excluded, or gone; drop the stale binding.
		b.sessions.Delete(ptKey, apiKeyID)
	}

	// CanSelect is a non-mutating peek: only one instance ends up chosen
	// below, and claiming a HalfOpen probe slot (Allow's side effect) on
	// every candidate here would wedge every unchosen recovering instance
	// with probesInFlight stuck at 1 and no request ever sent to clear it.
	healthy := make([]model.ProviderInstance, 0, len(candidates))
	for _, inst := range candidates {
		if !inst.Enabled || excluded[inst.Key()] {
			continue
		}
		if b.cb.CanSelect(inst.Key()) {
			healthy = append(healthy, inst)
		}
	}

	for len(healthy) > 0 {
		minPriority := healthy[0].Priority
		for _, inst := range healthy[1:] {
			if inst.Priority < minPriority {
				minPriority = inst.Priority
			}
		}
		var top []model.ProviderInstance
		for _, inst := range healthy {
			if inst.Priority == minPriority {
				top = append(top, inst)
			}
		}

		chosen := top[0]
		if len(top) > 1 {
			chosen = weightedPick(top, b.rng())
		}

		// Allow is called on the chosen instance only, which both performs
		// the Open→HalfOpen transition and claims the single HalfOpen probe
		// slot. A false here means a concurrent Select just won that race;
		// drop chosen and retry among what's left instead of failing the
		// whole request.
		if !b.cb.Allow(chosen.Key()) {
			healthy = removeInstance(healthy, chosen.Key())
			continue
		}

		b.sessions.Set(ptKey, apiKeyID, chosen.Name, now)
		return chosen, nil
	}

	return model.ProviderInstance{}, model.NewNoHealthyInstances(providerType)
}

func removeInstance(instances []model.ProviderInstance, key string) []model.ProviderInstance {
	out := instances[:0]
	for _, inst := range instances {
		if inst.Key() != key {
			out = append(out, inst)
		}
	}
	return out
}

func findEnabled(candidates []model.ProviderInstance, name string) (model.ProviderInstance, bool) {
	for _, inst := range candidates {
		if inst.Name == name {
			if !inst.Enabled {
				return model.ProviderInstance{}, false
			}
			return inst, true
		}
	}
	return model.ProviderInstance{}, false
}

// weightedPick performs the uniform-draw-over-prefix-sum walk of §4.2 step 4.
// draw must be in [0, 1).
func weightedPick(candidates []model.ProviderInstance, draw float64) model.ProviderInstance {
	total := 0
	weights := make([]int, len(candidates))
	for i, inst := range candidates {
		w := inst.Weight
		if w <= 0 {
			w = defaultWeight
		}
		weights[i] = w
		total += w
	}
	target := draw * float64(total)

	running := 0.0
	for i, w := range weights {
		running += float64(w)
		if target < running {
			return candidates[i]
		}
	}
	return candidates[len(candidates)-1]
}

// MarkSuccess reports a successful attempt against inst, per the
// classifier's ClassSuccess outcome.
func (b *Balancer) MarkSuccess(inst model.ProviderInstance) {
	b.cb.RecordSuccess(inst.Key())
}

// MarkFailure reports a classified failure against inst and updates CB
// state. RateLimit- and Transient-class outcomes go to the breaker's
// MarkDegraded and do not count toward the failure threshold; only
// InstanceFailure is recorded as a failure.
func (b *Balancer) MarkFailure(inst model.ProviderInstance, class breaker.Class) {
	switch class {
	case breaker.ClassRateLimit, breaker.ClassTransient:
		b.cb.MarkDegraded(inst.Key())
	case breaker.ClassInstanceFailure:
		b.cb.RecordFailure(inst.Key(), inst.FailureTimeout)
	}
}

// NextRetryAt reports when an Open instance becomes eligible for a
// half-open probe, for observability records; the zero time otherwise.
func (b *Balancer) NextRetryAt(inst model.ProviderInstance) time.Time {
	return b.cb.NextRetryAt(inst.Key())
}

// ConsecutiveFailures reports inst's current failure run length, for
// observability records.
func (b *Balancer) ConsecutiveFailures(inst model.ProviderInstance) int {
	return b.cb.ConsecutiveFailures(inst.Key())
}

// Close stops the background tasks started by StartBackgroundTasks.
func (b *Balancer) Close() {
	select {
	case <-b.stop:
	default:
		close(b.stop)
	}
}
