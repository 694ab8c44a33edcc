package ratelimit

import (
	"math"
	"time"
)

// fixedWindow counts points in consecutive windows anchored at the first access after expiry.
// The count is not clamped at the limit, so a window keeps accumulating after it is exhausted.
type fixedWindow struct {
	limit  int64
	window time.Duration
}

func (w *fixedWindow) Algorithm() Algorithm {
	return AlgorithmFixedWindow
}

func (w *fixedWindow) Apply(prev Record, now time.Time, points float64) (Record, Decision, error) {
	var rec FixedWindowRecord

	switch r := prev.(type) {
	case nil:
		rec = FixedWindowRecord{Count: points, WindowStart: now}
	case *FixedWindowRecord:
		rec = *r
		if !rec.WindowStart.Add(w.window).After(now) {
			rec.WindowStart = now
			rec.Count = points
		} else {
			rec.Count += points
		}
	case *TokenBucketRecord, *SlidingWindowRecord:
		return nil, Decision{}, mismatch(prev, AlgorithmFixedWindow)
	}

	rec.TouchedAt = now

	dec := newDecision(w.limit, rec.Count, rec.WindowStart.Add(w.window), now)
	dec.Success = rec.Count <= float64(w.limit)
	// Reported, not charged: the count above may exceed the limit.
	dec.ConsumedPoints = math.Min(points, float64(w.limit))

	return &rec, dec, nil
}
