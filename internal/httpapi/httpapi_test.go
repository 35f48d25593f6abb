package httpapi

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/relaylayer/llmcore/internal/balancer"
	"github.com/relaylayer/llmcore/internal/breaker"
	"github.com/relaylayer/llmcore/internal/metrics"
	"github.com/relaylayer/llmcore/internal/model"
	"github.com/relaylayer/llmcore/internal/orchestrator"
	"github.com/relaylayer/llmcore/internal/router"
	"github.com/relaylayer/llmcore/internal/sink"
	"github.com/relaylayer/llmcore/internal/upstream"
)

type nopSink struct{}

func (nopSink) RecordRequest(sink.RequestRecord) {}
func (nopSink) RecordFailover(sink.FailoverEvent) {}
func (nopSink) Dropped() int64                    { return 0 }
func (nopSink) Close() error                      { return nil }

func newTestServer(t *testing.T, upstreamURL string) (*http.Client, func()) {
	t.Helper()
	r := router.New([]router.Rule{{Prefix: "gpt-", ProviderType: model.ProviderOpenAI, Priority: 0}}, "")
	bal := balancer.New(balancer.NewSegmentedSessionStore(), breaker.New())
	bal.Reload(map[model.ProviderType][]model.ProviderInstance{
		model.ProviderOpenAI: {{
			Name:         "primary",
			ProviderType: model.ProviderOpenAI,
			Enabled:      true,
			BaseURL:      upstreamURL,
			Timeout:      5 * time.Second,
			Weight:       100,
			Auth:         model.Auth{Kind: model.AuthBearer, Secret: "test"},
		}},
	})
	orch := orchestrator.New(r, bal, upstream.NewExecutor(nil), nopSink{}, metrics.New(), nil)
	srv := New(orch, nil)

	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = fasthttp.Serve(ln, srv.Handler()) }()

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return ln.Dial()
			},
		},
	}
	return client, func() { ln.Close() }
}

func doPost(t *testing.T, client *http.Client, path, body string) *http.Response {
	t.Helper()
	resp, err := client.Post("http://test"+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func TestHandleChatCompletions_Success(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"resp1","model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":"hi there"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`))
	}))
	defer upstream.Close()

	client, cleanup := newTestServer(t, upstream.URL)
	defer cleanup()

	resp := doPost(t, client, "/v1/chat/completions", `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "hi there") {
		t.Errorf("body = %s, want content %q", body, "hi there")
	}
}

func TestHandleChatCompletions_UpstreamFailureReturnsBadGateway(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	client, cleanup := newTestServer(t, upstream.URL)
	defer cleanup()

	resp := doPost(t, client, "/v1/chat/completions", `{"model":"gpt-4o","messages":[{"role":"user","content":"hi"}]}`)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d, body = %s", resp.StatusCode, http.StatusBadGateway, body)
	}
	if !strings.Contains(string(body), "provider_error") {
		t.Errorf("body = %s, want provider_error envelope", body)
	}
}

func TestHandleChatCompletions_MissingModel(t *testing.T) {
	client, cleanup := newTestServer(t, "http://unused.invalid")
	defer cleanup()

	resp := doPost(t, client, "/v1/chat/completions", `{"messages":[{"role":"user","content":"hi"}]}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestHandleChatCompletions_Streaming(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		io.WriteString(w, "data: {\"id\":\"1\",\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\"}}]}\n\n")
		flusher.Flush()
		io.WriteString(w, "data: {\"id\":\"1\",\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"hi\"}}]}\n\n")
		flusher.Flush()
		io.WriteString(w, "data: {\"id\":\"1\",\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		flusher.Flush()
		io.WriteString(w, "data: [DONE]\n\n")
		flusher.Flush()
	}))
	defer upstream.Close()

	client, cleanup := newTestServer(t, upstream.URL)
	defer cleanup()

	resp := doPost(t, client, "/v1/chat/completions", `{"model":"gpt-4o","stream":true,"messages":[{"role":"user","content":"hi"}]}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	var frames []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data:") {
			frames = append(frames, line)
		}
	}
	if len(frames) == 0 {
		t.Fatal("expected at least one SSE data frame")
	}
	if frames[len(frames)-1] != "data: [DONE]" {
		t.Errorf("last frame = %q, want data: [DONE]", frames[len(frames)-1])
	}
}

func TestHandleHealth(t *testing.T) {
	client, cleanup := newTestServer(t, "http://unused.invalid")
	defer cleanup()

	resp, err := client.Get("http://test/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
