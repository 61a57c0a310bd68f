package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

type contextKey struct{}

// LogContext holds the fields shared by every line of one operation.
type LogContext struct {
	RunID     string // correlates all lines of one sync run
	Operation string // refresh, image_fetch, ...
}

func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, contextKey{}, lc)
}

// FromContext returns the LogContext carried by ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	lc, _ := ctx.Value(contextKey{}).(*LogContext)
	return lc
}

func NewLogContext(operation string) *LogContext {
	return &LogContext{Operation: operation}
}

// WithRunID returns a copy with the run id set.
func (lc *LogContext) WithRunID(runID string) *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	clone.RunID = runID
	return &clone
}

// contextFields prepends the trace id of the active span and the
// LogContext fields to args.
func contextFields(ctx context.Context, args []any) []any {
	var fields []any
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields = append(fields, KeyTraceID, sc.TraceID().String())
	}
	if lc := FromContext(ctx); lc != nil {
		if lc.RunID != "" {
			fields = append(fields, KeyRunID, lc.RunID)
		}
		if lc.Operation != "" {
			fields = append(fields, KeyOperation, lc.Operation)
		}
	}
	if len(fields) == 0 {
		return args
	}
	return append(fields, args...)
}
