package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/triage-ai/icio-mcp/internal/apperr"
	"github.com/triage-ai/icio-mcp/internal/metrics"
	"github.com/triage-ai/icio-mcp/internal/operations"
	"github.com/triage-ai/icio-mcp/internal/storage"
	"go.uber.org/zap"
)

const (
	serverName    = "icio-mcp"
	serverVersion = "0.1.0"

	outcomeOK           = "ok"
	outcomeInvalidInput = "invalid_input"
	outcomeError        = "error"
)

// Caller dispatches one named operation.
type Caller interface {
	Call(ctx context.Context, name string, args map[string]any) (*operations.Result, error)
}

// ToolServer exposes every catalogue operation as a read-only MCP tool.
type ToolServer struct {
	mcp     *mcpserver.MCPServer
	catalog *operations.Catalog
	caller  Caller
	writer  storage.EventWriter
	metrics *metrics.Metrics
	logger  *zap.Logger
	tools   []mcp.Tool
}

// NewToolServer registers one tool per operation name and alias.
func NewToolServer(
	catalog *operations.Catalog,
	caller Caller,
	writer storage.EventWriter,
	m *metrics.Metrics,
	logger *zap.Logger,
) *ToolServer {
	s := &ToolServer{
		mcp: mcpserver.NewMCPServer(serverName, serverVersion,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithRecovery(),
		),
		catalog: catalog,
		caller:  caller,
		writer:  writer,
		metrics: m,
		logger:  logger,
	}

	for _, d := range catalog.Descriptors() {
		for _, name := range d.Names() {
			tool := mcp.NewToolWithRawSchema(name, d.Description, d.InputSchema())
			tool.Annotations.ReadOnlyHint = mcp.ToBoolPtr(true)
			tool.Annotations.DestructiveHint = mcp.ToBoolPtr(false)
			tool.Annotations.IdempotentHint = mcp.ToBoolPtr(true)
			tool.Annotations.OpenWorldHint = mcp.ToBoolPtr(false)

			s.mcp.AddTool(tool, s.handler(name))
			s.tools = append(s.tools, tool)
		}
	}
	return s
}

// MCPServer returns the underlying protocol server for mounting on a transport.
func (s *ToolServer) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// Tools returns the registered tool definitions in registration order.
func (s *ToolServer) Tools() []mcp.Tool {
	out := make([]mcp.Tool, len(s.tools))
	copy(out, s.tools)
	return out
}

func (s *ToolServer) handler(name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return s.Call(ctx, name, req.GetArguments()), nil
	}
}

// Call runs one tool invocation. Failures are returned as tool error results,
// never as protocol errors.
func (s *ToolServer) Call(ctx context.Context, name string, args map[string]any) *mcp.CallToolResult {
	start := time.Now()
	requestID := uuid.New().String()

	res, err := s.caller.Call(ctx, name, args)
	elapsed := time.Since(start)

	operation := s.operationName(name)
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
		if apperr.IsInvalidInput(err) {
			outcome = outcomeInvalidInput
		}
	}

	s.metrics.ObserveCall(operation, outcome, elapsed)
	s.logCall(requestID, name, operation, outcome, elapsed, err)

	event := &storage.ToolCallEvent{
		RequestID:     requestID,
		Timestamp:     start,
		ToolName:      name,
		Operation:     operation,
		ArgumentsJSON: argumentsJSON(args),
		Outcome:       outcome,
		LatencyMs:     float32(float64(elapsed) / float64(time.Millisecond)),
		Source:        "mcp",
	}

	if err != nil {
		result, kind, field, msg := errorResult(err)
		event.ErrorKind = string(kind)
		event.ErrorField = field
		event.ErrorMessage = msg
		s.writer.Write(event)
		return result
	}

	event.RowCount = int32(res.RowCount)
	s.writer.Write(event)

	text, err := json.Marshal(res.Output)
	if err != nil {
		s.logger.Error("encode tool result failed", zap.String("operation", operation), zap.Error(err))
		result, _, _, _ := errorResult(apperr.QueryExecution(fmt.Errorf("encode result: %w", err)))
		return result
	}
	return mcp.NewToolResultStructured(res.Output, string(text))
}

func (s *ToolServer) operationName(name string) string {
	if d, ok := s.catalog.Lookup(name); ok {
		return d.Name
	}
	return "unknown"
}

func (s *ToolServer) logCall(requestID, tool, operation, outcome string, elapsed time.Duration, err error) {
	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("tool_name", tool),
		zap.String("operation", operation),
		zap.String("outcome", outcome),
		zap.Duration("latency", elapsed),
	}
	switch outcome {
	case outcomeOK:
		s.logger.Info("tool call", fields...)
	case outcomeInvalidInput:
		s.logger.Info("tool call rejected", append(fields,
			zap.String("error_kind", string(apperr.KindOf(err))),
			zap.Error(err),
		)...)
	default:
		s.logger.Error("tool call failed", append(fields, zap.Error(err))...)
	}
}

// errorResult renders err as a tool error whose text starts with the kind.
func errorResult(err error) (*mcp.CallToolResult, apperr.Kind, string, string) {
	kind := apperr.KindQueryExecution
	field := ""
	var e *apperr.Error
	if errors.As(err, &e) {
		kind = e.Kind
		field = e.Field
	}
	msg := err.Error()

	payload := map[string]any{
		"error": map[string]any{
			"kind":    string(kind),
			"field":   field,
			"message": msg,
		},
	}
	result := mcp.NewToolResultStructured(payload, fmt.Sprintf("%s: %s", kind, msg))
	result.IsError = true
	return result, kind, field, msg
}

func argumentsJSON(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}
