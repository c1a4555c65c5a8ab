package authcore

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type locationContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine snapshots
// it into issued token records and uses it for rate limiting, IP mismatch
// detection, and audit logging.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx. It is parsed
// into browser/OS/device info for session listings.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithLocation attaches a coarse, caller-resolved location string to ctx.
// The engine treats it as opaque; geolocation is the host's concern.
func WithLocation(ctx context.Context, location string) context.Context {
	return context.WithValue(ctx, locationContextKey{}, location)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func locationFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	location, _ := ctx.Value(locationContextKey{}).(string)
	return location
}
