package breaker

import (
	"testing"
	"time"
)

func newTestBreaker(clock *fakeClock) *Breaker {
	b := New()
	b.now = clock.Now
	b.rng = func() float64 { return 0.5 } // mid-range jitter, deterministic
	return b
}

type fakeClock struct {
	t time.Time
}

func (f *fakeClock) Now() time.Time { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	b := newTestBreaker(clock)
	key := "openai/primary"

	if !b.Allow(key) {
		t.Fatal("expected Closed instance to be allowed")
	}
	b.RecordFailure(key, 0)
	b.RecordFailure(key, 0)
	if b.State(key) != StateClosed {
		t.Fatalf("expected Closed after 2 failures, got %v", b.State(key))
	}
	b.RecordFailure(key, 0)
	if b.State(key) != StateOpen {
		t.Fatalf("expected Open after 3rd failure within window, got %v", b.State(key))
	}
	if b.Allow(key) {
		t.Fatal("expected Open instance to not be selectable immediately")
	}
}

func TestBreaker_OpenToHalfOpenAtNextRetry(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	b := newTestBreaker(clock)
	key := "anthropic/primary"

	b.RecordFailure(key, 0)
	b.RecordFailure(key, 0)
	b.RecordFailure(key, 0)
	if b.State(key) != StateOpen {
		t.Fatalf("expected Open, got %v", b.State(key))
	}

	next := b.NextRetryAt(key)
	clock.Advance(next.Sub(clock.Now()) + time.Second)

	if !b.Allow(key) {
		t.Fatal("expected the instance to be allowed (as probe) once next_retry_at has elapsed")
	}
	if b.State(key) != StateHalfOpen {
		t.Fatalf("expected HalfOpen after probe admitted, got %v", b.State(key))
	}
	if b.Allow(key) {
		t.Fatal("expected only one probe in flight at a time")
	}
}

func TestBreaker_HalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	b := newTestBreaker(clock)
	key := "gemini/primary"

	b.RecordFailure(key, 0)
	b.RecordFailure(key, 0)
	b.RecordFailure(key, 0)
	clock.Advance(time.Hour)
	b.Allow(key) // admits the probe, moves to HalfOpen

	b.RecordSuccess(key)
	if b.State(key) != StateHalfOpen {
		t.Fatalf("expected still HalfOpen after 1 success (threshold 2), got %v", b.State(key))
	}
	if !b.Allow(key) {
		t.Fatal("expected a second probe slot to open after the first probe resolved")
	}
	b.RecordSuccess(key)
	if b.State(key) != StateClosed {
		t.Fatalf("expected Closed after 2 consecutive successes, got %v", b.State(key))
	}
}

func TestBreaker_HalfOpenFailureReopensWithIncrementedAttempt(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	b := newTestBreaker(clock)
	key := "openai/primary"

	b.RecordFailure(key, 0)
	b.RecordFailure(key, 0)
	b.RecordFailure(key, 0)
	clock.Advance(time.Hour)
	b.Allow(key)

	firstRetry := b.NextRetryAt(key)
	b.RecordFailure(key, 0) // probe fails
	if b.State(key) != StateOpen {
		t.Fatalf("expected Open again after failed probe, got %v", b.State(key))
	}
	secondRetry := b.NextRetryAt(key)
	if !secondRetry.After(clock.Now()) {
		t.Fatal("expected next_retry_at to be in the future")
	}
	_ = firstRetry
}

// TestBreaker_CanSelectDoesNotClaimProbeSlot reproduces the balancer's
// enumeration bug directly against the breaker: a candidate that is merely
// peeked at with CanSelect while it's past next_retry_at or HalfOpen must
// not have its probe slot claimed, since enumerating several candidates and
// choosing only one must leave the others exactly as it found them.
func TestBreaker_CanSelectDoesNotClaimProbeSlot(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	b := newTestBreaker(clock)
	key := "openai/b"

	b.RecordFailure(key, 0)
	b.RecordFailure(key, 0)
	b.RecordFailure(key, 0)
	if b.State(key) != StateOpen {
		t.Fatalf("expected Open, got %v", b.State(key))
	}

	clock.Advance(b.NextRetryAt(key).Sub(clock.Now()) + time.Second)
	b.TickRecovery()
	if b.State(key) != StateHalfOpen {
		t.Fatalf("expected HalfOpen after TickRecovery, got %v", b.State(key))
	}

	// An enumeration that never picks key must be able to peek at it
	// any number of times without claiming its single probe slot.
	for i := 0; i < 5; i++ {
		if !b.CanSelect(key) {
			t.Fatalf("CanSelect() = false on peek %d, want true (no slot claimed yet)", i)
		}
	}

	if !b.Allow(key) {
		t.Fatal("expected Allow to claim the HalfOpen probe slot")
	}

	// Once the slot is actually claimed, both a further peek and a
	// concurrent claim attempt must report it unavailable.
	if b.CanSelect(key) {
		t.Error("CanSelect() = true after the probe slot was claimed, want false")
	}
	if b.Allow(key) {
		t.Error("Allow() = true for a second concurrent claim attempt, want false")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		o    Outcome
		want Class
	}{
		{"success", Outcome{StatusCode: 200}, ClassSuccess},
		{"rate_limit", Outcome{StatusCode: 429}, ClassRateLimit},
		{"transient", Outcome{StatusCode: 503}, ClassTransient},
		{"instance_failure_500", Outcome{StatusCode: 500}, ClassInstanceFailure},
		{"instance_failure_502", Outcome{StatusCode: 502}, ClassInstanceFailure},
		{"instance_failure_504", Outcome{StatusCode: 504}, ClassInstanceFailure},
		{"instance_failure_401", Outcome{StatusCode: 401}, ClassInstanceFailure},
		{"business_error_400", Outcome{StatusCode: 400}, ClassBusinessError},
		{"business_error_404", Outcome{StatusCode: 404}, ClassBusinessError},
	}
	for _, c := range cases {
		if got := Classify(c.o); got != c.want {
			t.Errorf("%s: Classify() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestBackoff_ClampsAndJitters(t *testing.T) {
	rng := func() float64 { return 0.0 } // minimum jitter
	d := Backoff(1, 0, rng)
	wantMin := time.Duration(float64(backoffInitial) * jitterMin)
	if d != wantMin {
		t.Errorf("Backoff(1) with min jitter = %v, want %v", d, wantMin)
	}

	rngMax := func() float64 { return 0.999999 }
	d = Backoff(100, 0, rngMax)
	wantMax := time.Duration(float64(backoffMax) * (jitterMin + jitterWidth))
	if d > wantMax {
		t.Errorf("Backoff(100) = %v, exceeds clamp+jitter bound %v", d, wantMax)
	}
}
