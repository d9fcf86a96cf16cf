package logging

import (
	"context"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// PoolKey is the context key for quota pool names.
	PoolKey contextKey = "pool"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithPool adds a pool name to the context.
func WithPool(ctx context.Context, pool string) context.Context {
	return context.WithValue(ctx, PoolKey, pool)
}

// GetPool retrieves the pool name from the context.
func GetPool(ctx context.Context) string {
	if pool, ok := ctx.Value(PoolKey).(string); ok {
		return pool
	}
	return ""
}

// extractContextFields returns the context's log fields as key-value pairs.
func extractContextFields(ctx context.Context) []any {
	var fields []any

	if pool := GetPool(ctx); pool != "" {
		fields = append(fields, "pool", pool)
	}
	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}

	return fields
}
