// Package storage persists tool call audit events.
package storage

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	queueSize     = 10_000
	maxBatch      = 1000
	flushEvery    = 100 * time.Millisecond
	insertTimeout = 5 * time.Second
)

const insertEventsSQL = `
	INSERT INTO tool_call_events (
		request_id, timestamp, tool_name, operation, arguments_json,
		outcome, error_kind, error_field, error_message,
		row_count, latency_ms, source
	)`

// ClickHouseWriter queues tool call events and inserts them in batches from
// a single background goroutine. A batch is sent when it reaches maxBatch
// events or when flushEvery elapses, whichever comes first.
type ClickHouseWriter struct {
	conn    driver.Conn
	queue   chan *ToolCallEvent
	stop    chan struct{}
	stopped chan struct{}
	logger  *zap.Logger
}

// NewClickHouseWriter connects to dsn, verifies the connection and starts
// the batching goroutine.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, err
	}

	w := &ClickHouseWriter{
		conn:    conn,
		queue:   make(chan *ToolCallEvent, queueSize),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  logger,
	}
	go w.run()
	return w, nil
}

// Write enqueues event. When the queue is full the event is dropped and a
// warning logged; tool calls never wait on the audit trail.
func (w *ClickHouseWriter) Write(event *ToolCallEvent) {
	select {
	case w.queue <- event:
	default:
		w.logger.Warn("audit queue full, dropping tool call event",
			zap.String("request_id", event.RequestID),
			zap.String("operation", event.Operation),
		)
	}
}

// Close sends whatever is still queued and closes the connection.
func (w *ClickHouseWriter) Close() {
	close(w.stop)
	<-w.stopped
	if err := w.conn.Close(); err != nil {
		w.logger.Warn("clickhouse close failed", zap.Error(err))
	}
}

func (w *ClickHouseWriter) run() {
	defer close(w.stopped)

	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	pending := make([]*ToolCallEvent, 0, maxBatch)
	send := func() {
		if len(pending) == 0 {
			return
		}
		w.insert(pending)
		pending = pending[:0]
	}

	for {
		select {
		case event := <-w.queue:
			pending = append(pending, event)
			if len(pending) == maxBatch {
				send()
			}
		case <-ticker.C:
			send()
		case <-w.stop:
			for _, event := range w.drain() {
				pending = append(pending, event)
				if len(pending) == maxBatch {
					send()
				}
			}
			send()
			return
		}
	}
}

// drain empties the queue without blocking.
func (w *ClickHouseWriter) drain() []*ToolCallEvent {
	var out []*ToolCallEvent
	for {
		select {
		case event := <-w.queue:
			out = append(out, event)
		default:
			return out
		}
	}
}

func (w *ClickHouseWriter) insert(events []*ToolCallEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, insertEventsSQL)
	if err != nil {
		w.logger.Error("prepare tool call batch failed", zap.Error(err))
		return
	}

	for _, e := range events {
		err := batch.Append(
			e.RequestID, e.Timestamp, e.ToolName, e.Operation, e.ArgumentsJSON,
			e.Outcome, e.ErrorKind, e.ErrorField, e.ErrorMessage,
			e.RowCount, e.LatencyMs, e.Source,
		)
		if err != nil {
			w.logger.Error("append tool call event failed",
				zap.String("request_id", e.RequestID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("send tool call batch failed",
			zap.Int("events", len(events)),
			zap.Error(err),
		)
	}
}
