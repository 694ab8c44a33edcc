package ratelimit

import (
	"fmt"
	"time"
)

// Algorithm selects the windowing strategy of a limiter.
type Algorithm string

const (
	AlgorithmTokenBucket   Algorithm = "token-bucket"
	AlgorithmFixedWindow   Algorithm = "fixed-window"
	AlgorithmSlidingWindow Algorithm = "sliding-window"
)

// ParseAlgorithm maps a configuration string to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(s); a {
	case AlgorithmTokenBucket, AlgorithmFixedWindow, AlgorithmSlidingWindow:
		return a, nil
	default:
		return "", &ConfigError{Field: "algorithm", Reason: fmt.Sprintf("%q is not supported", s)}
	}
}

// Policy is the per-window allowance shared by every key of a limiter.
type Policy struct {
	Algorithm Algorithm
	// Limit is the number of points allowed per window.
	Limit int64
	// Window is the window length. It is a whole number of milliseconds.
	Window time.Duration
}

// TokenBucket returns a policy refilling limit tokens evenly over window.
func TokenBucket(limit int64, window time.Duration) Policy {
	return Policy{Algorithm: AlgorithmTokenBucket, Limit: limit, Window: window}
}

// FixedWindow returns a policy counting points in consecutive windows.
func FixedWindow(limit int64, window time.Duration) Policy {
	return Policy{Algorithm: AlgorithmFixedWindow, Limit: limit, Window: window}
}

// SlidingWindow returns a policy counting points over the trailing window.
func SlidingWindow(limit int64, window time.Duration) Policy {
	return Policy{Algorithm: AlgorithmSlidingWindow, Limit: limit, Window: window}
}

// WindowMs returns the window length in milliseconds.
func (p Policy) WindowMs() int64 {
	return p.Window.Milliseconds()
}

// Validate reports the first field that makes the policy unusable.
func (p Policy) Validate() error {
	if _, err := ParseAlgorithm(string(p.Algorithm)); err != nil {
		return err
	}

	if p.Limit <= 0 {
		return &ConfigError{Field: "limit", Reason: fmt.Sprintf("must be positive, got %d", p.Limit)}
	}

	if p.Window <= 0 {
		return &ConfigError{Field: "window", Reason: fmt.Sprintf("must be positive, got %s", p.Window)}
	}

	if p.Window%time.Millisecond != 0 {
		return &ConfigError{Field: "window", Reason: fmt.Sprintf("must be whole milliseconds, got %s", p.Window)}
	}

	return nil
}

// Config binds a policy to a key namespace.
type Config struct {
	// Prefix namespaces storage keys as "{prefix}:{identifier}". Empty leaves identifiers as-is.
	Prefix string
	Policy Policy
}

// Key returns the storage key for identifier.
func (c Config) Key(identifier string) string {
	if c.Prefix == "" {
		return identifier
	}

	return c.Prefix + ":" + identifier
}
