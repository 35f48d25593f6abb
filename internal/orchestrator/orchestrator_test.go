package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relaylayer/llmcore/internal/balancer"
	"github.com/relaylayer/llmcore/internal/breaker"
	"github.com/relaylayer/llmcore/internal/metrics"
	"github.com/relaylayer/llmcore/internal/model"
	"github.com/relaylayer/llmcore/internal/router"
	"github.com/relaylayer/llmcore/internal/sink"
	"github.com/relaylayer/llmcore/internal/upstream"
)

// fakeSink records every emitted record for assertions without touching
// slog or ClickHouse.
type fakeSink struct {
	mu        sync.Mutex
	requests  []sink.RequestRecord
	failovers []sink.FailoverEvent
}

func (f *fakeSink) RecordRequest(r sink.RequestRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r)
}

func (f *fakeSink) RecordFailover(e sink.FailoverEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failovers = append(f.failovers, e)
}

func (f *fakeSink) Dropped() int64 { return 0 }
func (f *fakeSink) Close() error   { return nil }

func (f *fakeSink) failoverCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.failovers)
}

func newTestOrchestrator(t *testing.T, instances []model.ProviderInstance) (*Orchestrator, *fakeSink) {
	t.Helper()
	r := router.New([]router.Rule{{Prefix: "gpt-", ProviderType: model.ProviderOpenAI, Priority: 0}}, "")
	cb := breaker.New()
	bal := balancer.New(balancer.NewSegmentedSessionStore(), cb)
	bal.Reload(map[model.ProviderType][]model.ProviderInstance{
		model.ProviderOpenAI: instances,
	})
	exec := upstream.NewExecutor(nil)
	sk := &fakeSink{}
	mx := metrics.New()
	o := New(r, bal, exec, sk, mx, nil)
	o.sleep = func(time.Duration) {} // don't actually block in tests
	return o, sk
}

func instanceFor(name string, srv *httptest.Server) model.ProviderInstance {
	return model.ProviderInstance{
		Name:         name,
		ProviderType: model.ProviderOpenAI,
		Enabled:      true,
		BaseURL:      srv.URL,
		Timeout:      5 * time.Second,
		Priority:     0,
		Weight:       100,
		Auth:         model.Auth{Kind: model.AuthBearer, Secret: "test-key"},
	}
}

func openAISuccessBody() string {
	return `{"id":"resp1","model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":"hi"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`
}

// Scenario B: the first instance returns 503 (transient) once, the request
// fails over to a second instance that succeeds.
func TestExecuteChat_FailsOverOn503(t *testing.T) {
	var calls int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"unavailable"}`))
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(openAISuccessBody()))
	}))
	defer good.Close()

	instA := instanceFor("a", bad)
	instA.Priority = 0
	instB := instanceFor("b", good)
	instB.Priority = 1

	o, sk := newTestOrchestrator(t, []model.ProviderInstance{instA, instB})

	resp, _, err := o.ExecuteChat(context.Background(), "key1", model.ChatRequest{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("ExecuteChat() error = %v", err)
	}
	if resp.Content != "hi" {
		t.Errorf("Content = %q, want %q", resp.Content, "hi")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("bad instance called %d times, want 1", calls)
	}
	if sk.failoverCount() == 0 {
		t.Error("expected at least one failover event recorded")
	}
}

// Scenario C: with a single instance in the pool, each request's own retry
// loop only gets one attempt against it (the instance is added to that
// request's exclusion set after failing, so a second attempt within the
// same request finds no healthy instances left and surfaces the first
// failure). The circuit breaker's three-failure threshold is a persistent
// count across separate requests, not attempts within one retry loop: the
// third separate request's failure is what opens the circuit, after which
// a fourth request fails immediately with no upstream call at all.
func TestExecuteChat_CircuitOpensAfterThreeFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	inst := instanceFor("solo", srv)
	o, _ := newTestOrchestrator(t, []model.ProviderInstance{inst})

	for i := 0; i < breaker.FailureThreshold; i++ {
		if _, _, err := o.ExecuteChat(context.Background(), "key1", model.ChatRequest{Model: "gpt-4o"}); err == nil {
			t.Fatalf("request %d: expected an error", i)
		}
	}
	if atomic.LoadInt32(&calls) != breaker.FailureThreshold {
		t.Errorf("upstream called %d times, want %d", calls, breaker.FailureThreshold)
	}
	if o.Balancer.NextRetryAt(inst).IsZero() {
		t.Fatal("expected circuit to be open after three failed requests")
	}

	// The instance is now Open; a further request must fail immediately
	// without another round trip.
	atomic.StoreInt32(&calls, 0)
	_, _, err := o.ExecuteChat(context.Background(), "key1", model.ChatRequest{Model: "gpt-4o"})
	if err == nil {
		t.Fatal("expected no_healthy_instances once the circuit is open")
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("upstream called %d times while circuit open, want 0", calls)
	}
}

// Scenario E: a 429 with Retry-After excludes the rate-limited instance and
// retries against a second instance without marking the first unhealthy.
func TestExecuteChat_RateLimitFailsOverWithoutOpeningCircuit(t *testing.T) {
	var calls int32
	limited := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer limited.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(openAISuccessBody()))
	}))
	defer good.Close()

	instA := instanceFor("a", limited)
	instA.Priority = 0
	instB := instanceFor("b", good)
	instB.Priority = 1

	o, _ := newTestOrchestrator(t, []model.ProviderInstance{instA, instB})

	resp, _, err := o.ExecuteChat(context.Background(), "key1", model.ChatRequest{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("ExecuteChat() error = %v", err)
	}
	if resp.Content != "hi" {
		t.Errorf("Content = %q, want %q", resp.Content, "hi")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("rate-limited instance called %d times, want 1", calls)
	}
	if o.Balancer.ConsecutiveFailures(instA) != 0 {
		t.Error("rate limiting must not count toward the failure threshold")
	}
}

// The half-open-probe recovery scenario (three failures open the circuit,
// a probe at next_retry_at succeeds twice and closes it) is covered at the
// breaker package level (TestBreaker_OpenToHalfOpenAtNextRetry,
// TestBreaker_HalfOpenClosesAfterSuccessThreshold), where the breaker's
// clock can be injected deterministically. Reproducing it here would
// require sleeping past the real 60s backoff window, which orchestrator
// tests have no way to fake since the balancer only exposes the breaker
// through its own wall-clock-driven Allow/Select path.
