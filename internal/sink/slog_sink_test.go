package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestSink(t *testing.T) (*SlogSink, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	s, err := NewSlogSink(context.Background(), logger)
	if err != nil {
		t.Fatalf("NewSlogSink: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, &buf
}

func TestSlogSink_RecordRequestFlushesOnClose(t *testing.T) {
	s, buf := newTestSink(t)

	s.RecordRequest(RequestRecord{
		RequestID: uuid.New(), Provider: "openai", Instance: "primary",
		Model: "gpt-4o", InputTokens: 10, OutputTokens: 20,
		LatencyMs: 123, Status: 200, CreatedAt: time.Now(),
	})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `"msg":"request"`) {
		t.Errorf("expected flushed request log, got %q", out)
	}
	var decoded map[string]any
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if decoded["provider"] != "openai" {
		t.Errorf("provider = %v, want openai", decoded["provider"])
	}
}

func TestSlogSink_RecordFailoverFlushesOnTicker(t *testing.T) {
	s, buf := newTestSink(t)

	s.RecordFailover(FailoverEvent{
		RequestID: uuid.New(), Provider: "anthropic", Instance: "us-east",
		Class: "transient", ConsecutiveFailures: 2, CreatedAt: time.Now(),
	})

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(buf.String(), `"msg":"failover"`) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("expected failover log flushed by ticker, got %q", buf.String())
}

func TestSlogSink_DropsOldestWhenFull(t *testing.T) {
	// Built directly, bypassing NewSlogSink, so no background goroutine
	// drains the channel concurrently with the fill loop below.
	s := &SlogSink{
		ch:      make(chan sinkEvent, 4),
		done:    make(chan struct{}),
		baseCtx: context.Background(),
		log:     slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)),
	}

	for i := 0; i < 4; i++ {
		s.enqueue(sinkEvent{kind: kindRequest, request: RequestRecord{Instance: "filler"}})
	}
	s.enqueue(sinkEvent{kind: kindRequest, request: RequestRecord{Instance: "newest"}})

	if d := s.Dropped(); d != 1 {
		t.Errorf("Dropped() = %d, want 1", d)
	}
	if len(s.ch) != 4 {
		t.Errorf("channel length = %d, want 4", len(s.ch))
	}
}
