package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/serroba/admission/internal/ratelimit"
	"github.com/serroba/admission/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// increment is a transition adding one to a fixed window count.
func increment(prev ratelimit.Record) (ratelimit.Record, error) {
	next := &ratelimit.FixedWindowRecord{Count: 1}
	if r, ok := prev.(*ratelimit.FixedWindowRecord); ok {
		next.Count = r.Count + 1
	}

	return next, nil
}

func TestMemoryStore(t *testing.T) {
	t.Run("creates and updates records", func(t *testing.T) {
		s := store.NewMemoryStore()

		_, err := s.Get(context.Background(), "key1")
		assert.ErrorIs(t, err, ratelimit.ErrNotFound)

		for want := 1.0; want <= 3; want++ {
			rec, err := s.Update(context.Background(), "key1", time.Minute, increment)

			require.NoError(t, err)
			assert.InDelta(t, want, rec.(*ratelimit.FixedWindowRecord).Count, 0)
		}

		rec, err := s.Get(context.Background(), "key1")

		require.NoError(t, err)
		assert.InDelta(t, 3.0, rec.(*ratelimit.FixedWindowRecord).Count, 0)
	})

	t.Run("tracks keys independently", func(t *testing.T) {
		s := store.NewMemoryStore()

		_, _ = s.Update(context.Background(), "key1", time.Minute, increment)
		_, _ = s.Update(context.Background(), "key1", time.Minute, increment)

		rec, err := s.Update(context.Background(), "key2", time.Minute, increment)

		require.NoError(t, err)
		assert.InDelta(t, 1.0, rec.(*ratelimit.FixedWindowRecord).Count, 0, "key2 should have its own record")
	})

	t.Run("expires records after their ttl", func(t *testing.T) {
		clock := newTestClock()
		s := store.NewMemoryStore(store.WithMemoryClock(clock.Now))

		_, _ = s.Update(context.Background(), "key1", 50*time.Millisecond, increment)
		_, _ = s.Update(context.Background(), "key1", 50*time.Millisecond, increment)

		clock.Advance(50 * time.Millisecond)

		_, err := s.Get(context.Background(), "key1")
		assert.ErrorIs(t, err, ratelimit.ErrNotFound)

		rec, err := s.Update(context.Background(), "key1", 50*time.Millisecond, increment)

		require.NoError(t, err)
		assert.InDelta(t, 1.0, rec.(*ratelimit.FixedWindowRecord).Count, 0, "expired records start over")
	})

	t.Run("every update extends the ttl", func(t *testing.T) {
		clock := newTestClock()
		s := store.NewMemoryStore(store.WithMemoryClock(clock.Now))

		_, _ = s.Update(context.Background(), "key1", time.Second, increment)
		clock.Advance(900 * time.Millisecond)
		_, _ = s.Update(context.Background(), "key1", time.Second, increment)
		clock.Advance(900 * time.Millisecond)

		rec, err := s.Get(context.Background(), "key1")

		require.NoError(t, err)
		assert.InDelta(t, 2.0, rec.(*ratelimit.FixedWindowRecord).Count, 0)
	})

	t.Run("keeps the previous record when the transition fails", func(t *testing.T) {
		s := store.NewMemoryStore()
		boom := errors.New("boom")

		_, _ = s.Update(context.Background(), "key1", time.Minute, increment)

		_, err := s.Update(context.Background(), "key1", time.Minute, func(ratelimit.Record) (ratelimit.Record, error) {
			return nil, boom
		})

		assert.ErrorIs(t, err, boom)

		rec, err := s.Get(context.Background(), "key1")

		require.NoError(t, err)
		assert.InDelta(t, 1.0, rec.(*ratelimit.FixedWindowRecord).Count, 0)
	})

	t.Run("transitions cannot alias stored state", func(t *testing.T) {
		s := store.NewMemoryStore()

		_, _ = s.Update(context.Background(), "key1", time.Minute, increment)

		_, err := s.Update(context.Background(), "key1", time.Minute, func(prev ratelimit.Record) (ratelimit.Record, error) {
			prev.(*ratelimit.FixedWindowRecord).Count = 100

			return nil, errors.New("abandon")
		})
		require.Error(t, err)

		rec, _ := s.Get(context.Background(), "key1")
		assert.InDelta(t, 1.0, rec.(*ratelimit.FixedWindowRecord).Count, 0)
	})

	t.Run("caps sliding logs", func(t *testing.T) {
		s := store.NewMemoryStore(store.WithMemoryMaxLogEntries(3))
		base := time.Now()

		for i := range 5 {
			_, err := s.Update(context.Background(), "key1", time.Minute, func(prev ratelimit.Record) (ratelimit.Record, error) {
				rec := &ratelimit.SlidingWindowRecord{}
				if r, ok := prev.(*ratelimit.SlidingWindowRecord); ok {
					rec.Entries = r.Entries
				}

				rec.Entries = append(rec.Entries, ratelimit.Entry{At: base.Add(time.Duration(i) * time.Second), Weight: 1})

				return rec, nil
			})
			require.NoError(t, err)
		}

		rec, err := s.Get(context.Background(), "key1")

		require.NoError(t, err)

		entries := rec.(*ratelimit.SlidingWindowRecord).Entries
		require.Len(t, entries, 3)
		assert.Equal(t, ratelimit.Entry{At: base.Add(2 * time.Second), Weight: 3}, entries[0])
		assert.InDelta(t, 5.0, rec.(*ratelimit.SlidingWindowRecord).Used(), 0)
	})

	t.Run("honors a cancelled context", func(t *testing.T) {
		s := store.NewMemoryStore()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := s.Update(ctx, "key1", time.Minute, increment)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, s.Len())
	})

	t.Run("serializes concurrent updates of one key", func(t *testing.T) {
		s := store.NewMemoryStore(store.WithMemoryShards(4))

		var wg sync.WaitGroup

		for range 500 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				_, _ = s.Update(context.Background(), "hot", time.Minute, increment)
			}()
		}

		wg.Wait()

		rec, err := s.Get(context.Background(), "hot")

		require.NoError(t, err)
		assert.InDelta(t, 500.0, rec.(*ratelimit.FixedWindowRecord).Count, 0)
	})

	t.Run("sweeps expired records", func(t *testing.T) {
		clock := newTestClock()
		s := store.NewMemoryStore(store.WithMemoryClock(clock.Now))

		_, _ = s.Update(context.Background(), "short", time.Second, increment)
		_, _ = s.Update(context.Background(), "long", time.Hour, increment)

		clock.Advance(time.Minute)

		removed, err := s.Sweep(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 1, removed)
		assert.Equal(t, 1, s.Len())
	})
}

func TestMemoryStore_SlidingLimitAboveLogCap(t *testing.T) {
	clock := newTestClock()
	s := store.NewMemoryStore(store.WithMemoryClock(clock.Now), store.WithMemoryMaxLogEntries(100))

	limiter, err := ratelimit.New(
		ratelimit.Config{Prefix: "cap", Policy: ratelimit.SlidingWindow(150, time.Hour)},
		s,
		ratelimit.WithClock(clock.Now),
	)
	require.NoError(t, err)

	admitted := 0

	for range 1000 {
		dec, err := limiter.Allow(context.Background(), "user")
		require.NoError(t, err)

		if dec.Success {
			admitted++
		}

		clock.Advance(time.Millisecond)
	}

	assert.Equal(t, 150, admitted)

	rec, err := s.Get(context.Background(), "cap:user")
	require.NoError(t, err)

	sw := rec.(*ratelimit.SlidingWindowRecord)
	assert.Len(t, sw.Entries, 100)
	assert.InDelta(t, 150.0, sw.Used(), 0)
}
