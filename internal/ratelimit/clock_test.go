package ratelimit_test

import (
	"sync"
	"time"
)

var epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// manualClock is a test clock that only moves when told to.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: epoch}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// At moves the clock to ms milliseconds after epoch.
func (c *manualClock) At(ms int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = epoch.Add(time.Duration(ms) * time.Millisecond)
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func at(ms int64) time.Time {
	return epoch.Add(time.Duration(ms) * time.Millisecond)
}
