package container

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	"github.com/jaevor/go-nanoid"
	"github.com/samber/do"
	"github.com/serroba/admission/internal/events"
	"github.com/serroba/admission/internal/handlers"
	"github.com/serroba/admission/internal/health"
	"github.com/serroba/admission/internal/messaging"
	"github.com/serroba/admission/internal/metrics"
	"github.com/serroba/admission/internal/middleware"
	"github.com/serroba/admission/internal/ratelimit"
	"go.uber.org/zap"
)

const requestIDLength = 21

// HTTPPackage provides the *chi.Mux and the huma.API with middleware and routes registered.
func HTTPPackage(injector *do.Injector) {
	do.Provide(injector, func(_ *do.Injector) (*chi.Mux, error) {
		return chi.NewMux(), nil
	})

	do.Provide(injector, func(i *do.Injector) (huma.API, error) {
		opts := do.MustInvoke[*Options](i)
		router := do.MustInvoke[*chi.Mux](i)
		logger := do.MustInvoke[*zap.Logger](i)
		backend := do.MustInvoke[*Backend](i)
		collector := do.MustInvoke[*metrics.Collector](i)
		limiter := do.MustInvoke[*ratelimit.Limiter](i)
		httpLimiter := do.MustInvoke[*middleware.ScopedLimiter](i)
		publish := do.MustInvoke[messaging.Publish[events.DecisionEvent]](i)

		newID, err := nanoid.Standard(requestIDLength)
		if err != nil {
			return nil, err
		}

		router.Handle("/metrics", collector.Handler())

		api := humachi.New(router, huma.DefaultConfig("Admission", "1.0.0"))

		api.UseMiddleware(middleware.RequestMeta(api, newID))
		api.UseMiddleware(middleware.RateLimiter(api, httpLimiter,
			middleware.WithFailOpen(opts.FailOpen),
			middleware.WithLogger(logger.Named("middleware")),
			middleware.WithDeniedEvents(publish),
		))

		handlers.RegisterRoutes(api, handlers.NewDecisionHandler(limiter, publish, logger.Named("handlers")))
		health.RegisterRoutes(api, health.NewHandler(backend.Checks))

		return api, nil
	})
}
