package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/admission/internal/ratelimit"
)

// Scope categorizes a request for rate limiting purposes.
// Each scope is charged to its own limiter.
type Scope string

const (
	// ScopeGlobal applies to all requests regardless of type.
	ScopeGlobal Scope = "global"
	// ScopeRead applies to read operations (GET, HEAD, OPTIONS).
	ScopeRead Scope = "read"
	// ScopeWrite applies to write operations (POST, PUT, PATCH, DELETE).
	ScopeWrite Scope = "write"
)

// ScopeResolver determines which scopes apply to a given request.
type ScopeResolver interface {
	Resolve(ctx huma.Context) []Scope
}

// MethodScopeResolver resolves scopes based on HTTP method.
// GET, HEAD, OPTIONS are classified as read operations.
// All other methods are classified as write operations.
type MethodScopeResolver struct{}

// NewMethodScopeResolver creates a new method-based scope resolver.
func NewMethodScopeResolver() *MethodScopeResolver {
	return &MethodScopeResolver{}
}

// Resolve returns the global scope plus the read or write scope of the request method.
func (r *MethodScopeResolver) Resolve(ctx huma.Context) []Scope {
	scopes := []Scope{ScopeGlobal}

	switch ctx.Method() {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		scopes = append(scopes, ScopeRead)
	default:
		scopes = append(scopes, ScopeWrite)
	}

	return scopes
}

// OperationScopeResolver prefers the Scope set in the operation's EndpointConfig and falls
// back to method-based detection.
type OperationScopeResolver struct {
	fallback *MethodScopeResolver
}

// NewOperationScopeResolver creates a new operation-aware scope resolver.
func NewOperationScopeResolver() *OperationScopeResolver {
	return &OperationScopeResolver{
		fallback: NewMethodScopeResolver(),
	}
}

// Resolve returns the scopes for a request, checking operation metadata first.
func (r *OperationScopeResolver) Resolve(ctx huma.Context) []Scope {
	if cfg := GetEndpointConfig(ctx); cfg != nil && cfg.Scope != "" {
		return []Scope{ScopeGlobal, cfg.Scope}
	}

	return r.fallback.Resolve(ctx)
}

// ScopeDecision is the decision of the limiter behind Scope.
type ScopeDecision struct {
	ratelimit.Decision

	Scope  Scope
	Config ratelimit.Config
}

type scopeLimiter struct {
	consumer ratelimit.Consumer
	config   ratelimit.Config
}

// ScopedLimiter keeps one limiter per scope. The limiters are expected to use distinct
// key prefixes so the same client key is counted independently in every scope.
type ScopedLimiter struct {
	limiters map[Scope]scopeLimiter
}

// NewScopedLimiter creates a ScopedLimiter with no scopes.
func NewScopedLimiter() *ScopedLimiter {
	return &ScopedLimiter{limiters: make(map[Scope]scopeLimiter)}
}

// Add registers consumer for scope. cfg names the key and algorithm in denied events.
func (l *ScopedLimiter) Add(scope Scope, consumer ratelimit.Consumer, cfg ratelimit.Config) *ScopedLimiter {
	l.limiters[scope] = scopeLimiter{consumer: consumer, config: cfg}

	return l
}

// Consume charges points for key to the limiter of every scope in order, skipping scopes
// without one. It stops at the first rejection and returns it. When every scope admits,
// it returns the decision with the fewest remaining points. ok is false when no scope had
// a limiter.
func (l *ScopedLimiter) Consume(
	ctx context.Context,
	key string,
	points float64,
	scopes []Scope,
) (binding ScopeDecision, ok bool, err error) {
	for _, scope := range scopes {
		sl, found := l.limiters[scope]
		if !found {
			continue
		}

		dec, consumeErr := sl.consumer.Consume(ctx, key, points)
		if consumeErr != nil {
			return ScopeDecision{}, false, fmt.Errorf("%s scope: %w", scope, consumeErr)
		}

		current := ScopeDecision{Decision: dec, Scope: scope, Config: sl.config}

		if !dec.Success {
			return current, true, nil
		}

		if !ok || dec.Remaining < binding.Remaining {
			binding = current
			ok = true
		}
	}

	return binding, ok, nil
}
