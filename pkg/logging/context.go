package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey int

const (
	loggerKey contextKey = iota
	requestIDKey
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	if logger == nil {
		logger = Default()
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext extracts the logger from context, or returns the default logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return Default()
	}
	if logger, ok := ctx.Value(loggerKey).(*zerolog.Logger); ok && logger != nil {
		return logger
	}
	return Default()
}

// WithRequestID adds a request ID to the context and its logger.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	return WithField(ctx, "request_id", requestID)
}

// RequestID extracts the request ID from context.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithField adds a single field to the logger in the context.
func WithField(ctx context.Context, key string, value any) context.Context {
	logCtx := addField(FromContext(ctx).With(), key, value)
	logger := logCtx.Logger()
	return WithLogger(ctx, &logger)
}

// WithEventID adds the special event id to the context logger.
func WithEventID(ctx context.Context, eventID string) context.Context {
	return WithField(ctx, "event_id", eventID)
}

// WithPrincipal adds the authenticated caller to the context logger.
func WithPrincipal(ctx context.Context, subject string) context.Context {
	return WithField(ctx, "principal", subject)
}

// WithConnection adds an observer connection id to the context logger.
func WithConnection(ctx context.Context, connectionID string) context.Context {
	return WithField(ctx, "connection_id", connectionID)
}
