package teamauth

import (
	"context"

	"github.com/google/uuid"
)

var requestIDCtxKey = &contextKey{"request_id"}

type contextKey struct {
	name string
}

// WithRequestID pins the X-Request-ID used for outbound calls made with ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey, id)
}

// RequestIDFromContext returns the pinned request ID, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	raw, ok := ctx.Value(requestIDCtxKey).(string)
	return raw, ok && raw != ""
}

// ensureRequestID returns ctx carrying a request ID, minting one when absent.
func ensureRequestID(ctx context.Context) (context.Context, string) {
	if id, ok := RequestIDFromContext(ctx); ok {
		return ctx, id
	}
	id := uuid.NewString()
	return WithRequestID(ctx, id), id
}
