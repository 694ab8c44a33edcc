package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
)

// Consumer is the decision contract shared by the limiter and its callers.
type Consumer interface {
	// Consume charges points to identifier and reports whether the operation may proceed.
	Consume(ctx context.Context, identifier string, points float64) (Decision, error)
}

// Limiter binds a configuration to a store and a strategy.
// It holds no per-key state and is safe for concurrent use.
type Limiter struct {
	config   Config
	store    Store
	strategy Strategy
	ttl      time.Duration
	timeout  time.Duration
	clock    Clock
	observer Observer
	logger   *zap.Logger
}

// New validates cfg and returns a limiter backed by store.
func New(cfg Config, store Store, opts ...Option) (*Limiter, error) {
	strategy, err := NewStrategy(cfg.Policy)
	if err != nil {
		return nil, err
	}

	if store == nil {
		return nil, &ConfigError{Field: "store", Reason: "is required"}
	}

	l := &Limiter{
		config:   cfg,
		store:    store,
		strategy: strategy,
		ttl:      cfg.Policy.Window,
		clock:    time.Now,
		observer: nopObserver{},
		logger:   zap.NewNop(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Config returns the configuration the limiter was built with.
func (l *Limiter) Config() Config {
	return l.config
}

// Allow consumes a single point.
func (l *Limiter) Allow(ctx context.Context, identifier string) (Decision, error) {
	return l.Consume(ctx, identifier, 1)
}

// Consume charges points to identifier. Zero points report the current state without
// charging anything.
func (l *Limiter) Consume(ctx context.Context, identifier string, points float64) (Decision, error) {
	if err := validatePoints(points); err != nil {
		return Decision{}, err
	}

	key := l.config.Key(identifier)

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	start := time.Now()

	// Optimistic stores may run the transition more than once; the last run is the committed one.
	var dec Decision

	_, err := l.store.Update(ctx, key, l.ttl, func(prev Record) (Record, error) {
		next, d, err := l.strategy.Apply(prev, l.clock(), points)
		if err != nil {
			return nil, err
		}

		dec = d

		return next, nil
	})
	if err != nil {
		err = wrapStoreError("update", key, err)
		l.observer.ObserveError(l.strategy.Algorithm(), err)
		l.logger.Error("rate limit store update failed", zap.String("key", key), zap.Error(err))

		return Decision{}, err
	}

	l.observer.ObserveDecision(l.strategy.Algorithm(), dec, time.Since(start))

	if !dec.Success {
		l.logger.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.Int64("limit", dec.Limit),
			zap.Float64("points", points),
			zap.Duration("resetAfter", dec.ResetAfter),
		)
	}

	return dec, nil
}

// Record returns the live record of identifier without changing it.
// The store call is bounded by the same deadline as Consume.
func (l *Limiter) Record(ctx context.Context, identifier string) (Record, error) {
	key := l.config.Key(identifier)

	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	rec, err := l.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}

		return nil, wrapStoreError("get", key, err)
	}

	return rec, nil
}

func (l *Limiter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, l.timeout)
}

func validatePoints(points float64) error {
	switch {
	case math.IsNaN(points) || math.IsInf(points, 0):
		return &ValidationError{Points: points, Reason: "must be finite"}
	case points < 0:
		return &ValidationError{Points: points, Reason: "must not be negative"}
	default:
		return nil
	}
}

func wrapStoreError(op, key string, err error) error {
	var serr *StoreError
	if errors.As(err, &serr) {
		return err
	}

	return &StoreError{Op: op, Key: key, Err: err}
}

var _ Consumer = (*Limiter)(nil)
