package ratelimit

import (
	"time"

	"go.uber.org/zap"
)

// Clock returns the current time.
type Clock func() time.Time

// Observer is notified of every Consume outcome.
type Observer interface {
	ObserveDecision(algorithm Algorithm, dec Decision, elapsed time.Duration)
	ObserveError(algorithm Algorithm, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveDecision(Algorithm, Decision, time.Duration) {}
func (nopObserver) ObserveError(Algorithm, error)                      {}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(clock Clock) Option {
	return func(l *Limiter) {
		l.clock = clock
	}
}

// WithTimeout bounds each store call. A call that runs out of time fails with a StoreError.
func WithTimeout(timeout time.Duration) Option {
	return func(l *Limiter) {
		l.timeout = timeout
	}
}

// WithRetention keeps records for longer than one window. Values below the window are ignored.
func WithRetention(ttl time.Duration) Option {
	return func(l *Limiter) {
		if ttl > l.ttl {
			l.ttl = ttl
		}
	}
}

// WithObserver reports decisions and failures, typically to metrics.
func WithObserver(o Observer) Option {
	return func(l *Limiter) {
		if o != nil {
			l.observer = o
		}
	}
}

// WithLogger sets the logger used for store failures and denials.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}
