package sink

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseConfig names the connection and table targets for ClickHouseSink.
// The teacher's go.mod carries clickhouse-go/v2 as a dependency but no
// package in the reference tree ever opens a connection with it; this is
// that wiring, repurposed as the gateway's durable event sink.
type ClickHouseConfig struct {
	Addr           []string
	Database       string
	Username       string
	Password       string
	RequestsTable  string
	FailoversTable string
	DialTimeout    time.Duration
}

// ClickHouseSink batches RequestRecord/FailoverEvent rows and inserts them
// asynchronously via PrepareBatch, following the same buffered-channel,
// background-flusher shape as SlogSink so both sinks share one overflow
// policy (drop oldest, count drops).
type ClickHouseSink struct {
	conn driver.Conn
	cfg  ClickHouseConfig

	ch        chan sinkEvent
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	dropped int64
	baseCtx context.Context
}

// NewClickHouseSink opens a connection and starts the background flusher.
func NewClickHouseSink(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseSink, error) {
	if ctx == nil {
		return nil, fmt.Errorf("sink: context must not be nil")
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addr,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("sink: clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("sink: clickhouse ping: %w", err)
	}

	s := &ClickHouseSink{
		conn:    conn,
		cfg:     cfg,
		ch:      make(chan sinkEvent, channelBuffer),
		done:    make(chan struct{}),
		baseCtx: ctx,
	}
	s.wg.Add(1)
	go s.run()
	return s, nil
}

func (s *ClickHouseSink) enqueue(ev sinkEvent) {
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

func (s *ClickHouseSink) RecordRequest(r RequestRecord) {
	s.enqueue(sinkEvent{kind: kindRequest, request: r})
}

func (s *ClickHouseSink) RecordFailover(e FailoverEvent) {
	s.enqueue(sinkEvent{kind: kindFailover, failover: e})
}

func (s *ClickHouseSink) Dropped() int64 {
	return atomic.LoadInt64(&s.dropped)
}

func (s *ClickHouseSink) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
	return s.conn.Close()
}

func (s *ClickHouseSink) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]sinkEvent, 0, batchSize)

	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := s.insertBatch(ctx, batch); err != nil {
			// Best-effort: a ClickHouse outage must not block the hot path
			// or crash the flusher. The batch is dropped and counted.
			atomic.AddInt64(&s.dropped, int64(len(batch)))
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

func (s *ClickHouseSink) insertBatch(ctx context.Context, events []sinkEvent) error {
	requestsTable := s.cfg.RequestsTable
	if requestsTable == "" {
		requestsTable = "gateway_requests"
	}
	failoversTable := s.cfg.FailoversTable
	if failoversTable == "" {
		failoversTable = "gateway_failovers"
	}

	var reqBatch, failBatch driver.Batch
	var err error

	for _, ev := range events {
		switch ev.kind {
		case kindRequest:
			if reqBatch == nil {
				reqBatch, err = s.conn.PrepareBatch(ctx, "INSERT INTO "+requestsTable)
				if err != nil {
					return fmt.Errorf("prepare requests batch: %w", err)
				}
			}
			r := ev.request
			if err := reqBatch.Append(
				r.RequestID, r.Provider, r.Instance, r.Model,
				uint32(r.InputTokens), uint32(r.OutputTokens),
				uint32(r.LatencyMs), uint16(r.Status), uint16(r.Warnings),
				normalizeTime(r.CreatedAt),
			); err != nil {
				return fmt.Errorf("append request row: %w", err)
			}

		case kindFailover:
			if failBatch == nil {
				failBatch, err = s.conn.PrepareBatch(ctx, "INSERT INTO "+failoversTable)
				if err != nil {
					return fmt.Errorf("prepare failovers batch: %w", err)
				}
			}
			e := ev.failover
			if err := failBatch.Append(
				e.RequestID, e.Provider, e.Instance, e.Class,
				uint32(e.ConsecutiveFailures), e.NextRetryAt,
				normalizeTime(e.CreatedAt),
			); err != nil {
				return fmt.Errorf("append failover row: %w", err)
			}
		}
	}

	if reqBatch != nil {
		if err := reqBatch.Send(); err != nil {
			return fmt.Errorf("send requests batch: %w", err)
		}
	}
	if failBatch != nil {
		if err := failBatch.Send(); err != nil {
			return fmt.Errorf("send failovers batch: %w", err)
		}
	}
	return nil
}
