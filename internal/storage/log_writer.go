package storage

import "go.uber.org/zap"

// LogWriter emits tool call events as structured log lines. It is used when
// no ClickHouse DSN is configured or the connection fails at startup.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter on logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *ToolCallEvent) {
	w.logger.Info("tool_call_event",
		zap.String("request_id", event.RequestID),
		zap.String("tool_name", event.ToolName),
		zap.String("operation", event.Operation),
		zap.String("outcome", event.Outcome),
		zap.String("error_kind", event.ErrorKind),
		zap.String("error_field", event.ErrorField),
		zap.Int32("row_count", event.RowCount),
		zap.Float32("latency_ms", event.LatencyMs),
	)
}

func (w *LogWriter) Close() {}
