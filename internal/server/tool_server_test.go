package server

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/triage-ai/icio-mcp/internal/apperr"
	"github.com/triage-ai/icio-mcp/internal/metrics"
	"github.com/triage-ai/icio-mcp/internal/operations"
	"github.com/triage-ai/icio-mcp/internal/storage"
	"go.uber.org/zap"
)

// stubCaller returns a fixed result or error and records the last call.
type stubCaller struct {
	result   *operations.Result
	err      error
	lastName string
	lastArgs map[string]any
}

func (c *stubCaller) Call(_ context.Context, name string, args map[string]any) (*operations.Result, error) {
	c.lastName = name
	c.lastArgs = args
	return c.result, c.err
}

// recordingWriter keeps every event in memory.
type recordingWriter struct {
	events []*storage.ToolCallEvent
}

func (w *recordingWriter) Write(e *storage.ToolCallEvent) { w.events = append(w.events, e) }
func (w *recordingWriter) Close()                         {}

func setupToolServer(t *testing.T, caller Caller) (*ToolServer, *recordingWriter, *metrics.Metrics) {
	t.Helper()
	catalog, err := operations.LoadCatalog()
	if err != nil {
		t.Fatal(err)
	}
	w := &recordingWriter{}
	m := metrics.New(prometheus.NewRegistry())
	return NewToolServer(catalog, caller, w, m, zap.NewNop()), w, m
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("expected 1 content item, got %d", len(res.Content))
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func TestToolServer_RegistersEveryNameAndAlias(t *testing.T) {
	s, _, _ := setupToolServer(t, &stubCaller{})

	tools := s.Tools()
	names := make(map[string]mcp.Tool, len(tools))
	for _, tool := range tools {
		names[tool.Name] = tool
	}

	want := []string{
		"top_suppliers", "get_top_suppliers",
		"top_sectors", "get_top_sectors",
		"compare_countries", "get_country_comparison",
		"time_series", "get_time_series",
		"health", "health_db", "db_info",
	}
	if len(tools) != len(want) {
		t.Fatalf("expected %d tools, got %d", len(want), len(tools))
	}
	for _, name := range want {
		tool, ok := names[name]
		if !ok {
			t.Fatalf("tool %q not registered", name)
		}
		if tool.Annotations.ReadOnlyHint == nil || !*tool.Annotations.ReadOnlyHint {
			t.Fatalf("tool %q should be read-only", name)
		}
		if len(tool.RawInputSchema) == 0 {
			t.Fatalf("tool %q has no input schema", name)
		}
	}

	var schema map[string]any
	if err := json.Unmarshal(names["get_top_suppliers"].RawInputSchema, &schema); err != nil {
		t.Fatal(err)
	}
	if schema["type"] != "object" {
		t.Fatalf("expected object schema, got %v", schema["type"])
	}
}

func TestToolServer_Success(t *testing.T) {
	caller := &stubCaller{result: &operations.Result{
		Operation: "top_suppliers",
		Output:    map[string]any{"year": 2022, "top_suppliers": []any{}},
		RowCount:  0,
	}}
	s, w, m := setupToolServer(t, caller)

	handler := s.handler("get_top_suppliers")
	req := mcp.CallToolRequest{}
	req.Params.Name = "get_top_suppliers"
	req.Params.Arguments = map[string]any{"buyer_country": "fra", "buyer_sector": "c26"}

	res, err := handler(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("expected success, got error result %q", resultText(t, res))
	}
	if caller.lastName != "get_top_suppliers" {
		t.Fatalf("expected alias passed through, got %q", caller.lastName)
	}
	if caller.lastArgs["buyer_country"] != "fra" {
		t.Fatalf("expected raw arguments passed through, got %v", caller.lastArgs)
	}
	if !strings.Contains(resultText(t, res), `"year":2022`) {
		t.Fatalf("expected JSON text, got %q", resultText(t, res))
	}
	if _, ok := res.StructuredContent.(map[string]any); !ok {
		t.Fatalf("expected structured content, got %T", res.StructuredContent)
	}

	if len(w.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(w.events))
	}
	e := w.events[0]
	if e.Operation != "top_suppliers" || e.ToolName != "get_top_suppliers" || e.Outcome != "ok" {
		t.Fatalf("unexpected event %+v", e)
	}
	if e.RequestID == "" || e.Source != "mcp" {
		t.Fatalf("expected request id and source, got %+v", e)
	}
	if got := testutil.ToFloat64(m.ToolCalls.WithLabelValues("top_suppliers", "ok")); got != 1 {
		t.Fatalf("expected 1 ok call, got %v", got)
	}
}

func TestToolServer_ValidationError(t *testing.T) {
	caller := &stubCaller{
		err: apperr.New(apperr.KindNotFound, "buyer_country", "buyer_country %q not found in countries", "XXX"),
	}
	s, w, m := setupToolServer(t, caller)

	res := s.Call(context.Background(), "top_suppliers", map[string]any{"buyer_country": "XXX"})
	if !res.IsError {
		t.Fatal("expected error result")
	}
	if text := resultText(t, res); !strings.HasPrefix(text, "not_found: ") {
		t.Fatalf("expected kind prefix, got %q", text)
	}

	payload, ok := res.StructuredContent.(map[string]any)
	if !ok {
		t.Fatalf("expected structured error, got %T", res.StructuredContent)
	}
	detail := payload["error"].(map[string]any)
	if detail["kind"] != "not_found" || detail["field"] != "buyer_country" {
		t.Fatalf("unexpected error detail %v", detail)
	}

	if w.events[0].Outcome != "invalid_input" || w.events[0].ErrorKind != "not_found" {
		t.Fatalf("unexpected event %+v", w.events[0])
	}
	if w.events[0].ArgumentsJSON != `{"buyer_country":"XXX"}` {
		t.Fatalf("unexpected arguments json %q", w.events[0].ArgumentsJSON)
	}
	if got := testutil.ToFloat64(m.ToolCalls.WithLabelValues("top_suppliers", "invalid_input")); got != 1 {
		t.Fatalf("expected 1 invalid call, got %v", got)
	}
}

func TestToolServer_ExecutionError(t *testing.T) {
	caller := &stubCaller{err: apperr.QueryExecution(errors.New("connection refused"))}
	s, w, _ := setupToolServer(t, caller)

	res := s.Call(context.Background(), "time_series", nil)
	if !res.IsError {
		t.Fatal("expected error result")
	}
	text := resultText(t, res)
	if !strings.HasPrefix(text, "query_execution_error: ") || !strings.Contains(text, "connection refused") {
		t.Fatalf("unexpected text %q", text)
	}
	if w.events[0].Outcome != "error" || w.events[0].ArgumentsJSON != "{}" {
		t.Fatalf("unexpected event %+v", w.events[0])
	}
}

func TestToolServer_UnclassifiedErrorIsExecutionError(t *testing.T) {
	s, _, _ := setupToolServer(t, &stubCaller{err: context.DeadlineExceeded})

	res := s.Call(context.Background(), "health_db", nil)
	if !strings.HasPrefix(resultText(t, res), "query_execution_error: ") {
		t.Fatalf("unexpected text %q", resultText(t, res))
	}
}
