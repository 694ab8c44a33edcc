package container

import (
	"github.com/samber/do"
	"github.com/serroba/admission/internal/metrics"
	"github.com/serroba/admission/internal/middleware"
	"github.com/serroba/admission/internal/ratelimit"
	"go.uber.org/zap"
)

// HTTPScopes are the scopes of the limiters guarding the HTTP API.
var HTTPScopes = []middleware.Scope{middleware.ScopeGlobal, middleware.ScopeRead, middleware.ScopeWrite}

// HTTPLimiter names the limiter guarding the HTTP API in scope.
func HTTPLimiter(scope middleware.Scope) string {
	return "http:" + string(scope)
}

// MetricsPackage provides the *metrics.Collector observing every limiter.
func MetricsPackage(injector *do.Injector) {
	do.Provide(injector, func(_ *do.Injector) (*metrics.Collector, error) {
		return metrics.NewCollector()
	})
}

// RateLimitPackage provides the decision *ratelimit.Limiter, one named limiter per HTTP
// scope and the *middleware.ScopedLimiter combining them. All share the configured backend.
func RateLimitPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*ratelimit.Limiter, error) {
		opts := do.MustInvoke[*Options](i)

		cfg, err := opts.LimiterConfig()
		if err != nil {
			return nil, err
		}

		return newLimiter(i, cfg, "limiter")
	})

	for _, scope := range HTTPScopes {
		do.ProvideNamed(injector, HTTPLimiter(scope), func(i *do.Injector) (*ratelimit.Limiter, error) {
			opts := do.MustInvoke[*Options](i)

			cfg, err := opts.HTTPLimiterConfig(scope)
			if err != nil {
				return nil, err
			}

			return newLimiter(i, cfg, "http-limiter."+string(scope))
		})
	}

	do.Provide(injector, func(i *do.Injector) (*middleware.ScopedLimiter, error) {
		scoped := middleware.NewScopedLimiter()

		for _, scope := range HTTPScopes {
			limiter := do.MustInvokeNamed[*ratelimit.Limiter](i, HTTPLimiter(scope))
			scoped.Add(scope, limiter, limiter.Config())
		}

		return scoped, nil
	})
}

func newLimiter(i *do.Injector, cfg ratelimit.Config, name string) (*ratelimit.Limiter, error) {
	opts := do.MustInvoke[*Options](i)
	backend := do.MustInvoke[*Backend](i)
	collector := do.MustInvoke[*metrics.Collector](i)
	logger := do.MustInvoke[*zap.Logger](i)

	return ratelimit.New(cfg, backend.Store,
		ratelimit.WithTimeout(opts.timeout()),
		ratelimit.WithObserver(collector),
		ratelimit.WithLogger(logger.Named(name)),
	)
}
