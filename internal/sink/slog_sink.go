package sink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

const (
	channelBuffer = 10_000
	batchSize     = 100
	flushInterval = time.Second
)

type eventKind int

const (
	kindRequest eventKind = iota
	kindFailover
)

type sinkEvent struct {
	kind     eventKind
	request  RequestRecord
	failover FailoverEvent
}

// SlogSink is the default EventSink: a buffered channel drained by a
// background goroutine that flushes batched slog records. Adapted from the
// teacher's internal/logger.Logger, generalized from one fixed RequestLog
// shape to the two record kinds this gateway emits, and changed from
// drop-newest to drop-oldest overflow handling.
type SlogSink struct {
	ch        chan sinkEvent
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	dropped int64

	baseCtx context.Context
	log     *slog.Logger
}

// NewSlogSink builds a SlogSink. A nil slogger falls back to a JSON handler
// on stdout, matching the teacher's default.
func NewSlogSink(ctx context.Context, slogger *slog.Logger) (*SlogSink, error) {
	if ctx == nil {
		return nil, fmt.Errorf("sink: context must not be nil")
	}
	if slogger == nil {
		slogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	s := &SlogSink{
		ch:      make(chan sinkEvent, channelBuffer),
		done:    make(chan struct{}),
		baseCtx: ctx,
		log:     slogger,
	}

	s.wg.Add(1)
	go s.run()

	return s, nil
}

// enqueue is non-blocking. When the buffer is full, the oldest queued event
// is evicted to make room for the new one and counted as dropped, so recent
// activity is kept in favor of stale activity. If the buffer fills again
// before the retry, the incoming event is dropped and counted instead.
func (s *SlogSink) enqueue(ev sinkEvent) {
	select {
	case s.ch <- ev:
		return
	default:
	}
	select {
	case <-s.ch:
		atomic.AddInt64(&s.dropped, 1)
	default:
	}
	select {
	case s.ch <- ev:
	default:
		atomic.AddInt64(&s.dropped, 1)
	}
}

func (s *SlogSink) RecordRequest(r RequestRecord) {
	s.enqueue(sinkEvent{kind: kindRequest, request: r})
}

func (s *SlogSink) RecordFailover(e FailoverEvent) {
	s.enqueue(sinkEvent{kind: kindFailover, failover: e})
}

func (s *SlogSink) Dropped() int64 {
	return atomic.LoadInt64(&s.dropped)
}

func (s *SlogSink) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
	return nil
}

func (s *SlogSink) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]sinkEvent, 0, batchSize)

	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		for _, ev := range batch {
			switch ev.kind {
			case kindRequest:
				r := ev.request
				s.log.InfoContext(ctx, "request",
					slog.String("id", r.RequestID.String()),
					slog.String("provider", r.Provider),
					slog.String("instance", r.Instance),
					slog.String("model", r.Model),
					slog.Int("input_tokens", r.InputTokens),
					slog.Int("output_tokens", r.OutputTokens),
					slog.Int("latency_ms", r.LatencyMs),
					slog.Int("status", r.Status),
					slog.Int("warnings", r.Warnings),
					slog.Time("created_at", normalizeTime(r.CreatedAt)),
				)
			case kindFailover:
				e := ev.failover
				s.log.WarnContext(ctx, "failover",
					slog.String("id", e.RequestID.String()),
					slog.String("provider", e.Provider),
					slog.String("instance", e.Instance),
					slog.String("class", e.Class),
					slog.Int("consecutive_failures", e.ConsecutiveFailures),
					slog.Time("next_retry_at", e.NextRetryAt),
					slog.Time("created_at", normalizeTime(e.CreatedAt)),
				)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev := <-s.ch:
			batch = append(batch, ev)
			if len(batch) >= batchSize {
				flush(s.baseCtx)
			}

		case <-ticker.C:
			flush(s.baseCtx)

		case <-s.done:
			for {
				select {
				case ev := <-s.ch:
					batch = append(batch, ev)
					if len(batch) >= batchSize {
						flush(s.baseCtx)
					}
				default:
					flush(s.baseCtx)
					return
				}
			}
		}
	}
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
