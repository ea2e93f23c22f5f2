package logging

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

type contextKey int

const (
	workflowIDKey contextKey = iota
	gateIDKey
	correlationIDKey
)

// WithWorkflowID tags ctx with the workflow being operated on.
func WithWorkflowID(ctx context.Context, id string) context.Context {
	return withString(ctx, workflowIDKey, id)
}

// WithGateID tags ctx with the review gate being checked.
func WithGateID(ctx context.Context, gate string) context.Context {
	return withString(ctx, gateIDKey, gate)
}

// WithCorrelationID tags ctx with a request id. An empty id generates one.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}
	return withString(ctx, correlationIDKey, id)
}

// CorrelationID returns the request id carried by ctx.
func CorrelationID(ctx context.Context) (string, bool) {
	return stringFrom(ctx, correlationIDKey)
}

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func stringFrom(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(key).(string)
	return value, ok && value != ""
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	fields := make([]slog.Attr, 0, 3)
	if id, ok := stringFrom(ctx, workflowIDKey); ok {
		fields = append(fields, slog.String(FieldWorkflowID, id))
	}
	if gate, ok := stringFrom(ctx, gateIDKey); ok {
		fields = append(fields, slog.String(FieldGateID, gate))
	}
	if rid, ok := stringFrom(ctx, correlationIDKey); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
