package ratelimit

import (
	"fmt"
	"time"
)

// Strategy is the pure transition of one algorithm. Apply never mutates prev.
// prev is nil for a key without a live record.
type Strategy interface {
	Algorithm() Algorithm
	Apply(prev Record, now time.Time, points float64) (Record, Decision, error)
}

// NewStrategy returns the strategy for a validated policy.
func NewStrategy(p Policy) (Strategy, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	switch p.Algorithm {
	case AlgorithmTokenBucket:
		return newTokenBucket(p), nil
	case AlgorithmFixedWindow:
		return &fixedWindow{limit: p.Limit, window: p.Window}, nil
	case AlgorithmSlidingWindow:
		return &slidingWindow{limit: p.Limit, window: p.Window}, nil
	default:
		return nil, &ConfigError{Field: "algorithm", Reason: fmt.Sprintf("%q is not supported", p.Algorithm)}
	}
}

func mismatch(prev Record, want Algorithm) error {
	return fmt.Errorf("%w: found %s record, want %s", ErrRecordMismatch, prev.Algorithm(), want)
}
