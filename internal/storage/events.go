package storage

import "time"

// EventWriter receives one audit event per tool call. Write must not block.
type EventWriter interface {
	Write(event *ToolCallEvent)
	Close()
}

// ToolCallEvent records one invocation of an analytical tool.
type ToolCallEvent struct {
	RequestID     string
	Timestamp     time.Time
	ToolName      string // name the caller used, possibly an alias
	Operation     string // primary operation name, "" if unknown
	ArgumentsJSON string
	Outcome       string // "ok", "invalid_input", "error"
	ErrorKind     string
	ErrorField    string
	ErrorMessage  string
	RowCount      int32
	LatencyMs     float32
	Source        string
}
