package ratelimit

import (
	"math"
	"time"
)

// tokenBucket refills Limit tokens evenly over Window, holding at most Limit.
type tokenBucket struct {
	limit    int64
	capacity float64
	rate     float64 // tokens per millisecond
}

func newTokenBucket(p Policy) *tokenBucket {
	return &tokenBucket{
		limit:    p.Limit,
		capacity: float64(p.Limit),
		rate:     float64(p.Limit) / float64(p.WindowMs()),
	}
}

func (b *tokenBucket) Algorithm() Algorithm {
	return AlgorithmTokenBucket
}

func (b *tokenBucket) Apply(prev Record, now time.Time, points float64) (Record, Decision, error) {
	var rec TokenBucketRecord

	switch r := prev.(type) {
	case nil:
		rec = TokenBucketRecord{Tokens: b.capacity, LastRefill: now}
	case *TokenBucketRecord:
		rec = *r
	case *FixedWindowRecord, *SlidingWindowRecord:
		return nil, Decision{}, mismatch(prev, AlgorithmTokenBucket)
	}

	available := math.Min(b.capacity, rec.Tokens+elapsedMs(rec.LastRefill, now)*b.rate)

	var (
		success bool
		waitMs  float64
	)

	if available >= points {
		success = true
		rec.Tokens = available - points
		waitMs = (b.capacity - rec.Tokens) / b.rate
	} else {
		rec.Tokens = available
		waitMs = (points - available) / b.rate
	}

	// A clock that went backwards must not earn the same refill twice.
	if now.After(rec.LastRefill) {
		rec.LastRefill = now
	}

	rec.Capacity = b.capacity
	rec.RefillRatePerMs = b.rate
	rec.TouchedAt = now

	dec := newDecision(b.limit, b.capacity-rec.Tokens, now.Add(fromMs(waitMs)), now)
	dec.Success = success

	if success {
		dec.ConsumedPoints = points
	}

	return &rec, dec, nil
}
