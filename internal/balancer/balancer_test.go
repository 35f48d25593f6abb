package balancer

import (
	"testing"

	"github.com/relaylayer/llmcore/internal/breaker"
	"github.com/relaylayer/llmcore/internal/model"
)

func newTestBalancer() *Balancer {
	return New(NewSegmentedSessionStore(), breaker.New())
}

func twoInstances() map[model.ProviderType][]model.ProviderInstance {
	return map[model.ProviderType][]model.ProviderInstance{
		model.ProviderOpenAI: {
			{Name: "primary", ProviderType: model.ProviderOpenAI, Enabled: true, Priority: 0, Weight: 100},
			{Name: "secondary", ProviderType: model.ProviderOpenAI, Enabled: true, Priority: 1, Weight: 100},
		},
	}
}

func TestSelect_PrefersLowerPriority(t *testing.T) {
	b := newTestBalancer()
	b.Reload(twoInstances())

	inst, err := b.Select(model.ProviderOpenAI, "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.Name != "primary" {
		t.Errorf("got %q, want primary (lower priority)", inst.Name)
	}
}

func TestSelect_StickySessionPersists(t *testing.T) {
	b := newTestBalancer()
	b.Reload(twoInstances())

	first, err := b.Select(model.ProviderOpenAI, "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := b.Select(model.ProviderOpenAI, "key-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again.Name != first.Name {
			t.Fatalf("session did not stick: got %q then %q", first.Name, again.Name)
		}
	}
}

func TestSelect_FallsBackWhenSessionInstanceOpen(t *testing.T) {
	b := newTestBalancer()
	b.Reload(twoInstances())

	first, err := b.Select(model.ProviderOpenAI, "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Name != "primary" {
		t.Fatalf("expected primary first, got %q", first.Name)
	}

	// Trip the circuit breaker on primary.
	key := first.Key()
	b.cb.RecordFailure(key, 0)
	b.cb.RecordFailure(key, 0)
	b.cb.RecordFailure(key, 0)

	next, err := b.Select(model.ProviderOpenAI, "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Name != "secondary" {
		t.Errorf("expected failover to secondary once primary's breaker opened, got %q", next.Name)
	}
}

func TestSelect_NoHealthyInstances(t *testing.T) {
	b := newTestBalancer()
	b.Reload(map[model.ProviderType][]model.ProviderInstance{
		model.ProviderAnthropic: {
			{Name: "only", ProviderType: model.ProviderAnthropic, Enabled: false, Priority: 0},
		},
	})

	_, err := b.Select(model.ProviderAnthropic, "key-1")
	if err == nil {
		t.Fatal("expected NoHealthyInstances when the only instance is disabled")
	}
}

func TestSelect_WeightedPickRespectsDraw(t *testing.T) {
	candidates := []model.ProviderInstance{
		{Name: "a", Weight: 25},
		{Name: "b", Weight: 75},
	}
	if got := weightedPick(candidates, 0.1); got.Name != "a" {
		t.Errorf("draw 0.1 over weights 25/75 = %q, want a", got.Name)
	}
	if got := weightedPick(candidates, 0.5); got.Name != "b" {
		t.Errorf("draw 0.5 over weights 25/75 = %q, want b", got.Name)
	}
}

func TestSelect_DisabledInstanceSkipped(t *testing.T) {
	b := newTestBalancer()
	b.Reload(map[model.ProviderType][]model.ProviderInstance{
		model.ProviderOpenAI: {
			{Name: "off", ProviderType: model.ProviderOpenAI, Enabled: false, Priority: 0},
			{Name: "on", ProviderType: model.ProviderOpenAI, Enabled: true, Priority: 1},
		},
	})

	inst, err := b.Select(model.ProviderOpenAI, "key-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.Name != "on" {
		t.Errorf("got %q, want the only enabled instance", inst.Name)
	}
}
