package container_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/samber/do"
	"github.com/serroba/admission/internal/container"
	"github.com/serroba/admission/internal/middleware"
	"github.com/serroba/admission/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func memoryOptions() *container.Options {
	return &container.Options{
		Port:            8888,
		Store:           container.StoreMemory,
		Algorithm:       string(ratelimit.AlgorithmFixedWindow),
		Limit:           2,
		WindowMs:        60000,
		Prefix:          "rl",
		HTTPLimit:       100,
		HTTPReadLimit:   100,
		HTTPWriteLimit:  100,
		TimeoutMs:       500,
		MaxLogEntries:   100,
		SweepIntervalMs: 1000,
		LogFormat:       "console",
		LogLevel:        "error",
	}
}

func newInjector(opts *container.Options) *do.Injector {
	injector := do.New()
	do.ProvideValue(injector, opts)
	container.LoggerPackage(injector)
	container.RedisPackage(injector)
	container.PostgresPackage(injector)
	container.StorePackage(injector)
	container.MetricsPackage(injector)
	container.RateLimitPackage(injector)
	container.PublisherGroupPackage(injector)
	container.HTTPPackage(injector)

	return injector
}

func TestOptions_LimiterConfig(t *testing.T) {
	t.Run("builds both limiter configs", func(t *testing.T) {
		opts := memoryOptions()

		cfg, err := opts.LimiterConfig()
		require.NoError(t, err)
		assert.Equal(t, "rl", cfg.Prefix)
		assert.Equal(t, ratelimit.FixedWindow(2, time.Minute), cfg.Policy)

		httpCfg, err := opts.HTTPLimiterConfig(middleware.ScopeGlobal)
		require.NoError(t, err)
		assert.Equal(t, "rl:http:global", httpCfg.Prefix)
		assert.Equal(t, int64(100), httpCfg.Policy.Limit)
	})

	t.Run("builds one http config per scope", func(t *testing.T) {
		opts := memoryOptions()
		opts.HTTPReadLimit = 50
		opts.HTTPWriteLimit = 5

		readCfg, err := opts.HTTPLimiterConfig(middleware.ScopeRead)
		require.NoError(t, err)
		assert.Equal(t, "rl:http:read", readCfg.Prefix)
		assert.Equal(t, int64(50), readCfg.Policy.Limit)

		writeCfg, err := opts.HTTPLimiterConfig(middleware.ScopeWrite)
		require.NoError(t, err)
		assert.Equal(t, "rl:http:write", writeCfg.Prefix)
		assert.Equal(t, int64(5), writeCfg.Policy.Limit)

		_, err = opts.HTTPLimiterConfig(middleware.Scope("admin"))
		require.ErrorContains(t, err, "unknown http scope")
	})

	t.Run("rejects an unknown algorithm", func(t *testing.T) {
		opts := memoryOptions()
		opts.Algorithm = "leaky-bucket"

		_, err := opts.LimiterConfig()

		assert.ErrorIs(t, err, ratelimit.ErrInvalidConfig)
	})

	t.Run("rejects a non-positive limit", func(t *testing.T) {
		opts := memoryOptions()
		opts.Limit = 0

		_, err := opts.LimiterConfig()

		assert.ErrorIs(t, err, ratelimit.ErrInvalidConfig)
	})
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := container.NewLogger(format, "debug")

		require.NoError(t, err, format)
		assert.NotNil(t, logger)
	}

	_, err := container.NewLogger("xml", "info")
	require.Error(t, err)

	_, err = container.NewLogger("json", "loud")
	require.Error(t, err)
}

func TestStorePackage_UnknownStore(t *testing.T) {
	opts := memoryOptions()
	opts.Store = "cassandra"

	injector := newInjector(opts)

	_, err := do.Invoke[*container.Backend](injector)

	assert.ErrorContains(t, err, "unknown store")
}

func TestHTTPPackage_MemoryStore(t *testing.T) {
	injector := newInjector(memoryOptions())

	t.Cleanup(func() {
		_ = injector.Shutdown()
	})

	router := do.MustInvoke[*chi.Mux](injector)
	_ = do.MustInvoke[huma.API](injector)
	_ = do.MustInvoke[*zap.Logger](injector)

	consume := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/consume", bytes.NewBufferString(`{"identifier":"user-1"}`))
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		return w
	}

	assert.Equal(t, http.StatusOK, consume().Code)
	assert.Equal(t, http.StatusOK, consume().Code)

	denied := consume()
	assert.Equal(t, http.StatusTooManyRequests, denied.Code)
	assert.NotEmpty(t, denied.Header().Get(middleware.HeaderRequestID))

	health := httptest.NewRecorder()
	router.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, health.Code)
	assert.Contains(t, health.Body.String(), `"status":"ok"`)

	record := httptest.NewRecorder()
	router.ServeHTTP(record, httptest.NewRequest(http.MethodGet, "/v1/records/user-1", nil))
	assert.Equal(t, http.StatusOK, record.Code)
	assert.Contains(t, record.Body.String(), `"key":"rl:user-1"`)

	scrape := httptest.NewRecorder()
	router.ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, scrape.Code)
	assert.Contains(t, scrape.Body.String(), "ratelimit_decisions_total")
}

func TestHTTPPackage_ScopedLimits(t *testing.T) {
	opts := memoryOptions()
	opts.Limit = 100
	opts.HTTPWriteLimit = 1

	injector := newInjector(opts)

	t.Cleanup(func() {
		_ = injector.Shutdown()
	})

	router := do.MustInvoke[*chi.Mux](injector)
	_ = do.MustInvoke[huma.API](injector)

	consume := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/consume", bytes.NewBufferString(`{"identifier":"user-1"}`))
		req.Header.Set("Content-Type", "application/json")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		return w
	}

	assert.Equal(t, http.StatusOK, consume().Code)

	denied := consume()
	assert.Equal(t, http.StatusTooManyRequests, denied.Code)
	assert.Contains(t, denied.Body.String(), "write scope")
	assert.Equal(t, "1", denied.Header().Get(middleware.HeaderLimit))

	record := httptest.NewRecorder()
	router.ServeHTTP(record, httptest.NewRequest(http.MethodGet, "/v1/records/user-1", nil))
	assert.Equal(t, http.StatusOK, record.Code)

	readLimiter := do.MustInvokeNamed[*ratelimit.Limiter](injector, container.HTTPLimiter(middleware.ScopeRead))
	assert.Equal(t, "rl:http:read", readLimiter.Config().Prefix)
}
