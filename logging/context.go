package logging

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID extracts the request ID from context if present.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// FromContext enriches the supplied logger with the request ID carried by ctx.
func FromContext(ctx context.Context, l zerolog.Logger) zerolog.Logger {
	rid := RequestID(ctx)
	if rid == "" {
		return l
	}
	return l.With().Str("request_id", rid).Logger()
}
