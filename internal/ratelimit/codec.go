package ratelimit

import (
	"encoding/json"
	"errors"
	"fmt"
)

var errUnknownRecord = errors.New("unknown record algorithm")

// envelope tags an encoded record with its algorithm.
type envelope struct {
	Algorithm Algorithm       `json:"algorithm"`
	Record    json.RawMessage `json:"record"`
}

// MarshalRecord encodes rec for external stores.
func MarshalRecord(rec Record) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil", errUnknownRecord)
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}

	return json.Marshal(envelope{Algorithm: rec.Algorithm(), Record: body})
}

// UnmarshalRecord decodes data written by MarshalRecord.
func UnmarshalRecord(data []byte) (Record, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode record envelope: %w", err)
	}

	var rec Record

	switch env.Algorithm {
	case AlgorithmTokenBucket:
		rec = &TokenBucketRecord{}
	case AlgorithmFixedWindow:
		rec = &FixedWindowRecord{}
	case AlgorithmSlidingWindow:
		rec = &SlidingWindowRecord{}
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownRecord, env.Algorithm)
	}

	if err := json.Unmarshal(env.Record, rec); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", env.Algorithm, err)
	}

	return rec, nil
}
