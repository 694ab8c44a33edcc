package middleware

import (
	"context"
	"net"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// HeaderRequestID carries the request identifier in both directions.
const HeaderRequestID = "X-Request-ID"

// RequestInfo holds HTTP request metadata attached to decision events.
type RequestInfo struct {
	RequestID string
	ClientIP  string
	UserAgent string
}

type requestInfoKey struct{}

// ContextWithRequestInfo adds request metadata to context.
func ContextWithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFromContext extracts request metadata from context.
func RequestInfoFromContext(ctx context.Context) RequestInfo {
	if v, ok := ctx.Value(requestInfoKey{}).(RequestInfo); ok {
		return v
	}

	return RequestInfo{}
}

// RequestMeta is a middleware that adds a request id, client IP and user-agent to the request context.
// An incoming X-Request-ID is kept; otherwise newID generates one. The id is echoed in the response.
func RequestMeta(_ huma.API, newID func() string) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		id := ctx.Header(HeaderRequestID)
		if id == "" {
			id = newID()
		}

		info := RequestInfo{
			RequestID: id,
			ClientIP:  clientIP(ctx),
			UserAgent: ctx.Header("User-Agent"),
		}

		ctx.SetHeader(HeaderRequestID, id)

		newCtx := ContextWithRequestInfo(ctx.Context(), info)
		ctx = huma.WithContext(ctx, newCtx)

		next(ctx)
	}
}

// clientIP extracts the client IP from the request, considering proxies.
func clientIP(ctx huma.Context) string {
	// Check X-Forwarded-For header (may contain multiple IPs)
	if xff := ctx.Header("X-Forwarded-For"); xff != "" {
		// Take the first IP (original client)
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}

		return strings.TrimSpace(xff)
	}

	if xri := ctx.Header("X-Real-IP"); xri != "" {
		return xri
	}

	addr := ctx.RemoteAddr()
	if addr == "" {
		addr = ctx.Host()
	}

	ip, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}

	return ip
}
