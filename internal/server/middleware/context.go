package middleware

import (
	"context"

	"transitwatch/backend/internal/security"
)

type contextKey struct{ name string }

var (
	identityKey  = contextKey{"identity"}
	requestIDKey = contextKey{"request_id"}
	clientIPKey  = contextKey{"client_ip"}
)

// WithIdentity returns a context carrying the authenticated identity from the access token.
func WithIdentity(ctx context.Context, id security.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity returns the identity from context and true if the request is authenticated.
func GetIdentity(ctx context.Context) (security.Identity, bool) {
	v, ok := ctx.Value(identityKey).(security.Identity)
	return v, ok
}

// WithRequestMeta returns a context with the client IP and request id set.
func WithRequestMeta(ctx context.Context, clientIP, requestID string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey, clientIP)
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestMeta returns the client IP and request id from context, or empty strings.
// It satisfies audit.MetaExtractor.
func RequestMeta(ctx context.Context) (ip, requestID string) {
	ip, _ = ctx.Value(clientIPKey).(string)
	requestID, _ = ctx.Value(requestIDKey).(string)
	return ip, requestID
}
