package ratelimit

import "time"

// Record is the per-key state of one algorithm. It is implemented only by
// *TokenBucketRecord, *FixedWindowRecord and *SlidingWindowRecord.
type Record interface {
	Algorithm() Algorithm
	LastTouched() time.Time
	record()
}

// TokenBucketRecord holds a continuously refilled bucket.
type TokenBucketRecord struct {
	Tokens          float64   `json:"tokens"`
	LastRefill      time.Time `json:"lastRefill"`
	Capacity        float64   `json:"capacity"`
	RefillRatePerMs float64   `json:"refillRatePerMs"`
	TouchedAt       time.Time `json:"touchedAt"`
}

// FixedWindowRecord holds the points counted in the window starting at WindowStart.
type FixedWindowRecord struct {
	Count       float64   `json:"count"`
	WindowStart time.Time `json:"windowStart"`
	TouchedAt   time.Time `json:"touchedAt"`
}

// Entry is one admitted consumption in a sliding log.
type Entry struct {
	At     time.Time `json:"at"`
	Weight float64   `json:"weight"`
}

// SlidingWindowRecord holds admitted consumptions in ascending time order.
type SlidingWindowRecord struct {
	Entries   []Entry   `json:"entries"`
	TouchedAt time.Time `json:"touchedAt"`
}

func (*TokenBucketRecord) Algorithm() Algorithm   { return AlgorithmTokenBucket }
func (*FixedWindowRecord) Algorithm() Algorithm   { return AlgorithmFixedWindow }
func (*SlidingWindowRecord) Algorithm() Algorithm { return AlgorithmSlidingWindow }

func (r *TokenBucketRecord) LastTouched() time.Time   { return r.TouchedAt }
func (r *FixedWindowRecord) LastTouched() time.Time   { return r.TouchedAt }
func (r *SlidingWindowRecord) LastTouched() time.Time { return r.TouchedAt }

func (*TokenBucketRecord) record()   {}
func (*FixedWindowRecord) record()   {}
func (*SlidingWindowRecord) record() {}

// Used returns the summed weight of the log.
func (r *SlidingWindowRecord) Used() float64 {
	var used float64
	for _, e := range r.Entries {
		used += e.Weight
	}

	return used
}

// BoundLog folds the oldest entries of a sliding log into one so that at most maxEntries
// remain. The folded entry carries their summed weight at the latest of their timestamps,
// so the log never under-counts the window; it only expires that weight later.
// Other records and non-positive bounds are left untouched.
func BoundLog(rec Record, maxEntries int) Record {
	sw, ok := rec.(*SlidingWindowRecord)
	if !ok || maxEntries <= 0 || len(sw.Entries) <= maxEntries {
		return rec
	}

	cut := len(sw.Entries) - maxEntries + 1

	var folded Entry
	for _, e := range sw.Entries[:cut] {
		folded.Weight += e.Weight
		if e.At.After(folded.At) {
			folded.At = e.At
		}
	}

	bounded := make([]Entry, 0, maxEntries)
	bounded = append(bounded, folded)
	bounded = append(bounded, sw.Entries[cut:]...)
	sw.Entries = bounded

	return sw
}

// CloneRecord returns a deep copy of rec so transitions never alias stored state.
func CloneRecord(rec Record) Record {
	switch r := rec.(type) {
	case nil:
		return nil
	case *TokenBucketRecord:
		c := *r
		return &c
	case *FixedWindowRecord:
		c := *r
		return &c
	case *SlidingWindowRecord:
		c := *r
		c.Entries = append([]Entry(nil), r.Entries...)

		return &c
	default:
		panic("ratelimit: unknown record type")
	}
}
