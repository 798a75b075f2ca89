package event

import (
	"context"
	"time"
)

type traceIDKey struct{}

// WithTraceID returns a context carrying the trace id of the send in progress.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// TraceIDFrom returns the trace id stored by WithTraceID, or "".
func TraceIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey{}).(string)
	return id
}

func resolveTraceID(ctx context.Context, traceID string) string {
	if traceID != "" {
		return traceID
	}
	return TraceIDFrom(ctx)
}

// Support emits a diagnostic when cond is true. Emission errors are
// swallowed: diagnostics never alter the outcome of a send.
func Support(ctx context.Context, emitter Emitter, cond bool, stage, msg string, level Level, traceID string, payload map[string]interface{}) {
	if !cond || emitter == nil {
		return
	}
	e := Event{Timestamp: time.Now().UTC(), Level: level, Stage: stage, Message: msg, TraceID: resolveTraceID(ctx, traceID)}
	if len(payload) > 0 {
		e.Payload = payload
	}
	_ = emitter.Emit(ctx, e)
}

// EmitLifecycle emits a debug-level lifecycle event with optional duration, tags and payload.
func EmitLifecycle(ctx context.Context, emitter Emitter, stage, traceID string, durationNS int64, tags map[string]string, payload map[string]interface{}) {
	if emitter == nil {
		return
	}
	e := Event{Timestamp: time.Now().UTC(), Level: LevelDebug, Stage: stage, TraceID: resolveTraceID(ctx, traceID)}
	if durationNS != 0 {
		e.DurationNS = durationNS
	}
	if len(tags) > 0 {
		e.Tags = tags
	}
	if payload != nil {
		e.Payload = payload
	}
	_ = emitter.Emit(ctx, e)
}

// EmitError emits an error-level event for a specific stage. A nil err is ignored.
func EmitError(ctx context.Context, emitter Emitter, stage, traceID string, err error) {
	if err == nil || emitter == nil {
		return
	}
	_ = emitter.Emit(ctx, Event{Timestamp: time.Now().UTC(), Level: LevelError, Stage: stage, TraceID: resolveTraceID(ctx, traceID), Message: err.Error()})
}
