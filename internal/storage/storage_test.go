package storage

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogWriter_WritesStructuredEvent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	w := NewLogWriter(zap.New(core))
	defer w.Close()

	w.Write(&ToolCallEvent{
		RequestID: "req-1",
		Timestamp: time.Now(),
		ToolName:  "get_top_suppliers",
		Operation: "top_suppliers",
		Outcome:   "ok",
		RowCount:  7,
		LatencyMs: 3.5,
		Source:    "mcp",
	})

	entries := logs.FilterMessage("tool_call_event").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 event log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["operation"] != "top_suppliers" {
		t.Fatalf("expected operation field, got %v", fields["operation"])
	}
	if fields["row_count"] != int32(7) {
		t.Fatalf("expected row_count 7, got %#v", fields["row_count"])
	}
}

func TestClickHouseWriter_WriteDropsWhenBufferFull(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	w := &ClickHouseWriter{
		queue:  make(chan *ToolCallEvent, 1),
		logger: zap.New(core),
	}

	w.Write(&ToolCallEvent{RequestID: "a"})
	w.Write(&ToolCallEvent{RequestID: "b"})

	if got := len(w.queue); got != 1 {
		t.Fatalf("expected 1 queued event, got %d", got)
	}
	dropped := logs.FilterMessage("audit queue full, dropping tool call event").All()
	if len(dropped) != 1 || dropped[0].ContextMap()["request_id"] != "b" {
		t.Fatalf("expected a drop warning for b, got %v", dropped)
	}
}

func TestClickHouseWriter_DrainEmptiesQueue(t *testing.T) {
	w := &ClickHouseWriter{
		queue:  make(chan *ToolCallEvent, 4),
		logger: zap.NewNop(),
	}
	w.Write(&ToolCallEvent{RequestID: "a"})
	w.Write(&ToolCallEvent{RequestID: "b"})

	got := w.drain()
	if len(got) != 2 || got[0].RequestID != "a" || got[1].RequestID != "b" {
		t.Fatalf("expected [a b] in order, got %v", got)
	}
	if len(w.queue) != 0 {
		t.Fatalf("expected empty queue, got %d", len(w.queue))
	}
	if w.drain() != nil {
		t.Fatal("expected nothing left to drain")
	}
}
