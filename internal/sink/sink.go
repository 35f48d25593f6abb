// Package sink implements the event sink side channel: non-blocking,
// batched recording of per-attempt outcomes and request-level aggregates.
// Grounded on the teacher's internal/logger package (a batched, channel-fed
// async logger), generalized from one fixed RequestLog shape flushed only
// to slog into an EventSink interface with two concrete backends: the
// teacher's slog approach (default) and ClickHouse (wiring a dependency
// the teacher's go.mod carries but never uses).
package sink

import (
	"time"

	"github.com/google/uuid"
)

// RequestRecord is the single observability record emitted after a
// request's stream completes, per §4.5's "request-level aggregates".
type RequestRecord struct {
	RequestID    uuid.UUID
	Provider     string
	Instance     string
	Model        string
	InputTokens  int
	OutputTokens int
	LatencyMs    int
	Status       int
	Warnings     int
	CreatedAt    time.Time
}

// FailoverEvent is emitted for every attempt that does not succeed (rate
// limit, transient, instance failure, or business error), per §4.3's
// observability paragraph. Successful attempts emit none.
type FailoverEvent struct {
	RequestID           uuid.UUID
	Provider            string
	Instance            string
	Class               string
	ConsecutiveFailures int
	NextRetryAt         time.Time // zero if not applicable
	CreatedAt           time.Time
}

// EventSink is the non-blocking recording interface the core depends on.
// Implementations must never block the caller; a full internal buffer
// drops the oldest entry and increments a counter instead.
type EventSink interface {
	RecordRequest(r RequestRecord)
	RecordFailover(e FailoverEvent)
	// Dropped returns the number of entries dropped so far due to a full
	// buffer, for the /metrics exporter to surface.
	Dropped() int64
	Close() error
}
