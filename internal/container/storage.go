package container

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/admission/internal/health"
	"github.com/serroba/admission/internal/ratelimit"
	"github.com/serroba/admission/internal/store"
	"go.uber.org/zap"
)

const connectTimeout = 5 * time.Second

// RedisClient is the shared redis client, closed on injector shutdown.
type RedisClient struct {
	*redis.Client
}

// Shutdown closes the client.
func (c *RedisClient) Shutdown() error {
	return c.Close()
}

// PostgresPool is the shared connection pool, closed on injector shutdown.
type PostgresPool struct {
	*pgxpool.Pool
}

// Shutdown closes the pool.
func (p *PostgresPool) Shutdown() error {
	p.Close()

	return nil
}

// RedisPackage provides the shared *RedisClient.
func RedisPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*RedisClient, error) {
		opts := do.MustInvoke[*Options](i)

		return &RedisClient{Client: redis.NewClient(&redis.Options{Addr: opts.RedisAddr})}, nil
	})
}

// PostgresPackage provides the shared *PostgresPool.
func PostgresPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*PostgresPool, error) {
		opts := do.MustInvoke[*Options](i)

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		pool, err := pgxpool.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}

		return &PostgresPool{Pool: pool}, nil
	})
}

// Backend is the configured record store together with its expiry sweeper and the
// dependencies reported by the health check.
type Backend struct {
	Store   ratelimit.Store
	Checks  map[string]health.Checker
	sweeper *store.Sweeper
}

// Shutdown stops the sweeper, if any.
func (b *Backend) Shutdown() error {
	if b.sweeper == nil {
		return nil
	}

	return b.sweeper.Shutdown()
}

// StorePackage provides the *Backend selected by Options.Store. Memory and postgres
// backends get a running sweeper; redis expires keys itself.
func StorePackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*Backend, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		switch opts.Store {
		case StoreMemory:
			s := store.NewMemoryStore(store.WithMemoryMaxLogEntries(opts.MaxLogEntries))

			return startBackend(s, s, nil, opts, logger)
		case StoreRedis:
			client := do.MustInvoke[*RedisClient](i)
			s := store.NewRedisStore(client.Client, store.WithRedisMaxLogEntries(opts.MaxLogEntries))

			return &Backend{
				Store:  s,
				Checks: map[string]health.Checker{"redis": health.NewRedisChecker(client.Client)},
			}, nil
		case StorePostgres:
			pool := do.MustInvoke[*PostgresPool](i)
			s := store.NewPostgresStore(pool.Pool, opts.MaxLogEntries)

			ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
			defer cancel()

			if err := s.EnsureSchema(ctx); err != nil {
				return nil, fmt.Errorf("ensure rate limit schema: %w", err)
			}

			checks := map[string]health.Checker{"postgres": health.NewPostgresChecker(pool.Pool)}

			return startBackend(s, s, checks, opts, logger)
		default:
			return nil, fmt.Errorf("unknown store %q", opts.Store)
		}
	})
}

func startBackend(
	s ratelimit.Store,
	target store.Sweepable,
	checks map[string]health.Checker,
	opts *Options,
	logger *zap.Logger,
) (*Backend, error) {
	sweeper := store.NewSweeper(target, opts.sweepInterval(), logger.Named("sweeper"))

	if err := sweeper.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("start sweeper: %w", err)
	}

	return &Backend{Store: s, Checks: checks, sweeper: sweeper}, nil
}
