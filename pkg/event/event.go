package event

import (
	"context"
	"time"
)

// Level is the severity of a diagnostic event.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Event is a normalized diagnostic produced while sending telemetry. It is
// purely observational: nothing in the send path branches on it.
type Event struct {
	Timestamp  time.Time              `json:"timestamp"`
	Level      Level                  `json:"level,omitempty"`
	Stage      string                 `json:"stage,omitempty"` // invalid_action, beacon_unavailable, image_error, etc.
	Message    string                 `json:"message,omitempty"`
	TraceID    string                 `json:"trace_id,omitempty"`
	DurationNS int64                  `json:"duration_ns,omitempty"`
	Tags       map[string]string      `json:"tags,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
}

// Emitter receives diagnostic events and forwards them to sinks (stdout, buffer, slog).
type Emitter interface {
	Emit(ctx context.Context, e Event) error
}

// NoopEmitter drops every event.
type NoopEmitter struct{}

func (NoopEmitter) Emit(context.Context, Event) error { return nil }

// Normalize returns NoopEmitter when e is nil.
func Normalize(e Emitter) Emitter {
	if e == nil {
		return NoopEmitter{}
	}
	return e
}
