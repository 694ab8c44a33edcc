package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/admission/internal/ratelimit"
)

const defaultRedisMaxRetries = 16

// RedisStore is a Redis implementation of ratelimit.Store.
// Updates use WATCH/MULTI and retry when another client changed the key first.
// Records are written with PX so Redis expires idle keys on its own.
type RedisStore struct {
	client        redis.UniversalClient
	maxRetries    int
	maxLogEntries int
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisMaxRetries bounds the optimistic retries of one update.
func WithRedisMaxRetries(n int) RedisOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// WithRedisMaxLogEntries caps the sliding log of every key.
func WithRedisMaxLogEntries(n int) RedisOption {
	return func(s *RedisStore) {
		s.maxLogEntries = n
	}
}

// NewRedisStore creates a new Redis-backed rate limit store.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:        client,
		maxRetries:    defaultRedisMaxRetries,
		maxLogEntries: DefaultMaxLogEntries,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (r *RedisStore) Get(ctx context.Context, key string) (ratelimit.Record, error) {
	return readRecord(ctx, r.client, key)
}

func (r *RedisStore) Update(
	ctx context.Context, key string, ttl time.Duration, fn ratelimit.Transition,
) (ratelimit.Record, error) {
	var committed ratelimit.Record

	txf := func(tx *redis.Tx) error {
		prev, err := readRecord(ctx, tx, key)
		if err != nil && !errors.Is(err, ratelimit.ErrNotFound) {
			return err
		}

		next, err := fn(prev)
		if err != nil {
			return err
		}

		next = ratelimit.BoundLog(next, r.maxLogEntries)

		data, err := ratelimit.MarshalRecord(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)

			return nil
		})
		if err == nil {
			committed = next
		}

		return err
	}

	for attempt := range r.maxRetries {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return committed, nil
		}

		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}

		if err := backoff(ctx, attempt); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: key %q after %d attempts", ratelimit.ErrConflict, key, r.maxRetries)
}

// Ping checks Redis connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Shutdown is a no-op for RedisStore (client managed externally).
func (r *RedisStore) Shutdown() error {
	return nil
}

// stringGetter is satisfied by both clients and transactions.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readRecord(ctx context.Context, c stringGetter, key string) (ratelimit.Record, error) {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ratelimit.ErrNotFound
		}

		return nil, err
	}

	rec, err := ratelimit.UnmarshalRecord(data)
	if err != nil {
		return nil, fmt.Errorf("key %q: %w", key, err)
	}

	return rec, nil
}

func backoff(ctx context.Context, attempt int) error {
	t := time.NewTimer(time.Duration(attempt+1) * time.Millisecond)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Compile-time check.
var _ ratelimit.Store = (*RedisStore)(nil)
