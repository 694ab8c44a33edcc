package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/admission/internal/events"
	"github.com/serroba/admission/internal/messaging"
	"github.com/serroba/admission/internal/ratelimit"
	"go.uber.org/zap"
)

// Response headers describing the decision of the current request.
const (
	HeaderLimit      = "RateLimit-Limit"
	HeaderRemaining  = "RateLimit-Remaining"
	HeaderReset      = "RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// MetadataKey is the key used to store rate limit config in operation metadata.
const MetadataKey = "rateLimit"

// EndpointConfig defines per-endpoint rate limit configuration.
// It is attached to Huma operations via the Metadata field.
type EndpointConfig struct {
	// Points charged per request. Zero or less charges one point.
	Points float64

	// Scope overrides the read or write scope derived from the HTTP method.
	// The global scope always applies.
	Scope Scope

	// Disabled skips rate limiting entirely for this endpoint.
	Disabled bool
}

// GetEndpointConfig extracts the EndpointConfig from operation metadata, if present.
func GetEndpointConfig(ctx huma.Context) *EndpointConfig {
	op := ctx.Operation()
	if op == nil || op.Metadata == nil {
		return nil
	}

	cfg, ok := op.Metadata[MetadataKey].(EndpointConfig)
	if !ok {
		return nil
	}

	return &cfg
}

// RateLimitOption configures the RateLimiter middleware.
type RateLimitOption func(*rateLimitSettings)

type rateLimitSettings struct {
	failOpen bool
	logger   *zap.Logger
	publish  messaging.Publish[events.DecisionEvent]
	resolver ScopeResolver
	clock    func() time.Time
}

// WithFailOpen lets requests through when the limiter cannot reach its store.
func WithFailOpen(failOpen bool) RateLimitOption {
	return func(s *rateLimitSettings) {
		s.failOpen = failOpen
	}
}

// WithLogger sets the middleware logger.
func WithLogger(logger *zap.Logger) RateLimitOption {
	return func(s *rateLimitSettings) {
		s.logger = logger
	}
}

// WithDeniedEvents publishes an event for every rejected request.
func WithDeniedEvents(publish messaging.Publish[events.DecisionEvent]) RateLimitOption {
	return func(s *rateLimitSettings) {
		s.publish = publish
	}
}

// WithScopeResolver replaces the default OperationScopeResolver.
func WithScopeResolver(resolver ScopeResolver) RateLimitOption {
	return func(s *rateLimitSettings) {
		s.resolver = resolver
	}
}

// RateLimiter returns a Huma middleware that charges each request to a key derived from
// client IP and User-Agent, once per resolved scope. Rejected requests get 429; store
// failures get 503 unless fail-open is set.
func RateLimiter(api huma.API, limiter *ScopedLimiter, opts ...RateLimitOption) func(ctx huma.Context, next func(huma.Context)) {
	s := &rateLimitSettings{
		logger:   zap.NewNop(),
		publish:  messaging.Discard[events.DecisionEvent](),
		resolver: NewOperationScopeResolver(),
		clock:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return func(ctx huma.Context, next func(huma.Context)) {
		points := 1.0

		if cfg := GetEndpointConfig(ctx); cfg != nil {
			if cfg.Disabled {
				next(ctx)

				return
			}

			if cfg.Points > 0 {
				points = cfg.Points
			}
		}

		key := clientKey(ctx)

		dec, ok, err := limiter.Consume(ctx.Context(), key, points, s.resolver.Resolve(ctx))
		if err != nil {
			s.logger.Error("rate limit check failed",
				zap.String("path", operationPath(ctx)),
				zap.Bool("failOpen", s.failOpen),
				zap.Error(err),
			)

			if s.failOpen {
				next(ctx)

				return
			}

			_ = huma.WriteErr(api, ctx, http.StatusServiceUnavailable, "rate limiter unavailable", err)

			return
		}

		if !ok {
			next(ctx)

			return
		}

		WriteDecisionHeaders(ctx, dec.Decision)

		if !dec.Success {
			s.logger.Warn("rate limit exceeded",
				zap.String("path", operationPath(ctx)),
				zap.String("method", ctx.Method()),
				zap.String("scope", string(dec.Scope)),
				zap.Int64("limit", dec.Limit),
				zap.Duration("resetAfter", dec.ResetAfter),
				zap.String("client_ip", clientIP(ctx)),
			)
			s.publishDenied(ctx, key, dec)

			_ = huma.WriteErr(api, ctx, http.StatusTooManyRequests,
				fmt.Sprintf("rate limit exceeded: %s scope", dec.Scope))

			return
		}

		next(ctx)
	}
}

func (s *rateLimitSettings) publishDenied(ctx huma.Context, key string, dec ScopeDecision) {
	event := events.NewDecisionEvent(dec.Config, key, dec.Decision, s.clock())
	event.Scope = string(dec.Scope)

	info := RequestInfoFromContext(ctx.Context())
	event.RequestID = info.RequestID
	event.ClientIP = info.ClientIP

	if err := s.publish(ctx.Context(), event); err != nil {
		s.logger.Error("failed to publish decision event", zap.String("key", event.Key), zap.Error(err))
	}
}

// DecisionHeaders are the response headers describing a decision. They double as huma
// output header fields.
type DecisionHeaders struct {
	Limit      string `header:"RateLimit-Limit"`
	Remaining  string `header:"RateLimit-Remaining"`
	Reset      string `header:"RateLimit-Reset"`
	RetryAfter string `header:"Retry-After"`
}

// NewDecisionHeaders renders dec. Reset is in whole seconds rounded up; RetryAfter is only
// set for rejections.
func NewDecisionHeaders(dec ratelimit.Decision) DecisionHeaders {
	h := DecisionHeaders{
		Limit:     strconv.FormatInt(dec.Limit, 10),
		Remaining: strconv.FormatInt(dec.Remaining, 10),
		Reset:     strconv.FormatInt(seconds(dec.ResetAfter), 10),
	}

	if !dec.Success {
		h.RetryAfter = h.Reset
	}

	return h
}

// WriteDecisionHeaders sets the RateLimit-* headers, plus Retry-After when dec is a rejection.
func WriteDecisionHeaders(ctx huma.Context, dec ratelimit.Decision) {
	h := NewDecisionHeaders(dec)

	ctx.SetHeader(HeaderLimit, h.Limit)
	ctx.SetHeader(HeaderRemaining, h.Remaining)
	ctx.SetHeader(HeaderReset, h.Reset)

	if h.RetryAfter != "" {
		ctx.SetHeader(HeaderRetryAfter, h.RetryAfter)
	}
}

// seconds rounds d up to whole seconds.
func seconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}

	return int64(math.Ceil(d.Seconds()))
}

// clientKey generates a unique key for rate limiting based on IP and User-Agent.
func clientKey(ctx huma.Context) string {
	ip := clientIP(ctx)
	ua := ctx.Header("User-Agent")

	hash := sha256.Sum256([]byte(ip + "|" + ua))

	return hex.EncodeToString(hash[:])
}

func operationPath(ctx huma.Context) string {
	if op := ctx.Operation(); op != nil {
		return op.Path
	}

	return ""
}
