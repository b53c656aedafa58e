package httpx

import (
	"context"

	"github.com/target/webfront-auth/internal/service"
)

// resolutionKey is an unexported context key type to avoid collisions across packages.
type resolutionKey struct{}

// SetResolutionInContext returns a child context carrying the request's authentication.
func SetResolutionInContext(ctx context.Context, res service.Resolution) context.Context {
	return context.WithValue(ctx, resolutionKey{}, res)
}

// ResolutionFromContext returns the authentication resolved for the request, if any.
func ResolutionFromContext(ctx context.Context) (service.Resolution, bool) {
	res, ok := ctx.Value(resolutionKey{}).(service.Resolution)
	return res, ok
}

// requestIDKey carries the request id set by the RequestID middleware.
type requestIDKey struct{}

// RequestIDFromContext returns the request id, or an empty string.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
