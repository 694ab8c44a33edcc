package ratelimit

import (
	"context"
	"time"
)

// Transition computes the next record of a key from its previous one (nil when absent).
// It must be pure: optimistic stores may call it several times and commit only the last result.
type Transition func(prev Record) (Record, error)

// Store holds one record per key, each with a bounded lifetime.
type Store interface {
	// Get returns the live record of key, or ErrNotFound.
	Get(ctx context.Context, key string) (Record, error)

	// Update atomically reads the record of key, applies fn and persists the result with
	// the given time to live. Concurrent updates of one key are linearized.
	Update(ctx context.Context, key string, ttl time.Duration, fn Transition) (Record, error)
}
