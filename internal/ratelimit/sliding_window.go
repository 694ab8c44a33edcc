package ratelimit

import (
	"sort"
	"time"
)

// slidingWindow admits points while the weighted log of the trailing window stays within the limit.
type slidingWindow struct {
	limit  int64
	window time.Duration
}

func (w *slidingWindow) Algorithm() Algorithm {
	return AlgorithmSlidingWindow
}

func (w *slidingWindow) Apply(prev Record, now time.Time, points float64) (Record, Decision, error) {
	var entries []Entry

	switch r := prev.(type) {
	case nil:
	case *SlidingWindowRecord:
		entries = prune(r.Entries, now.Add(-w.window))
	case *TokenBucketRecord, *FixedWindowRecord:
		return nil, Decision{}, mismatch(prev, AlgorithmSlidingWindow)
	}

	rec := &SlidingWindowRecord{Entries: entries, TouchedAt: now}
	used := rec.Used()

	var consumed float64

	success := used+points <= float64(w.limit)
	if success {
		consumed = points
		if points > 0 {
			rec.Entries = insert(rec.Entries, Entry{At: now, Weight: points})
		}
	}

	reset := now
	if len(rec.Entries) > 0 {
		reset = rec.Entries[0].At.Add(w.window)
	}

	dec := newDecision(w.limit, used+consumed, reset, now)
	dec.Success = success
	dec.ConsumedPoints = consumed

	return rec, dec, nil
}

// prune copies the entries newer than cutoff. An entry exactly one window old has expired.
func prune(entries []Entry, cutoff time.Time) []Entry {
	kept := make([]Entry, 0, len(entries)+1)

	for _, e := range entries {
		if e.At.After(cutoff) {
			kept = append(kept, e)
		}
	}

	return kept
}

// insert keeps the log ordered even when the clock went backwards.
func insert(entries []Entry, e Entry) []Entry {
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].At.After(e.At)
	})

	entries = append(entries, Entry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e

	return entries
}
