package store

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/serroba/admission/internal/ratelimit"
)

const defaultMemoryShards = 64

type memoryEntry struct {
	record    ratelimit.Record
	expiresAt time.Time
}

// memoryShard serializes updates for the keys hashed to it.
type memoryShard struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// MemoryStore is an in-memory implementation of ratelimit.Store.
// Expired records are dropped lazily on access and in bulk by Sweep.
type MemoryStore struct {
	shards        []*memoryShard
	clock         func() time.Time
	maxLogEntries int
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock replaces time.Now for expiry decisions.
func WithMemoryClock(clock func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.clock = clock
	}
}

// WithMemoryMaxLogEntries caps the sliding log of every key.
func WithMemoryMaxLogEntries(n int) MemoryOption {
	return func(s *MemoryStore) {
		s.maxLogEntries = n
	}
}

// WithMemoryShards sets the number of lock shards.
func WithMemoryShards(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.shards = newShards(n)
		}
	}
}

// NewMemoryStore creates a new in-memory rate limit store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		shards:        newShards(defaultMemoryShards),
		clock:         time.Now,
		maxLogEntries: DefaultMaxLogEntries,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func newShards(n int) []*memoryShard {
	shards := make([]*memoryShard, n)
	for i := range shards {
		shards[i] = &memoryShard{entries: make(map[string]memoryEntry)}
	}

	return shards
}

func (s *MemoryStore) shard(key string) *memoryShard {
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

func (s *MemoryStore) Get(ctx context.Context, key string) (ratelimit.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sh := s.shard(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec := s.live(sh, key)
	if rec == nil {
		return nil, ratelimit.ErrNotFound
	}

	return ratelimit.CloneRecord(rec), nil
}

func (s *MemoryStore) Update(
	ctx context.Context, key string, ttl time.Duration, fn ratelimit.Transition,
) (ratelimit.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sh := s.shard(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	next, err := fn(ratelimit.CloneRecord(s.live(sh, key)))
	if err != nil {
		return nil, err
	}

	next = ratelimit.BoundLog(next, s.maxLogEntries)
	sh.entries[key] = memoryEntry{record: next, expiresAt: s.clock().Add(ttl)}

	return ratelimit.CloneRecord(next), nil
}

// live returns the unexpired record of key. The caller holds sh.mu.
func (s *MemoryStore) live(sh *memoryShard, key string) ratelimit.Record {
	e, ok := sh.entries[key]
	if !ok {
		return nil
	}

	if !e.expiresAt.After(s.clock()) {
		delete(sh.entries, key)

		return nil
	}

	return e.record
}

// Sweep removes every expired record and returns how many were removed.
func (s *MemoryStore) Sweep(ctx context.Context) (int, error) {
	removed := 0

	for _, sh := range s.shards {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		now := s.clock()

		sh.mu.Lock()
		for key, e := range sh.entries {
			if !e.expiresAt.After(now) {
				delete(sh.entries, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}

	return removed, nil
}

// Len returns the number of stored records, expired or not.
func (s *MemoryStore) Len() int {
	n := 0

	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}

	return n
}

// Shutdown is a no-op; records vanish with the process.
func (s *MemoryStore) Shutdown() error {
	return nil
}

// Compile-time check.
var _ ratelimit.Store = (*MemoryStore)(nil)
