package authcore

import "context"

type contextKey string

const clientIPKey contextKey = "authcore.client-ip"

// WithClientIP attaches the caller's network address to the context.
// The engine uses it for rate-limit bucketing and audit events; when
// absent both fall back to an empty address.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

func clientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
