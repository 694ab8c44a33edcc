package ratelimit

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is matched by every *ConfigError.
	ErrInvalidConfig = errors.New("invalid rate limit configuration")
	// ErrInvalidPoints is matched by every *ValidationError.
	ErrInvalidPoints = errors.New("invalid points")
	// ErrStore is matched by every *StoreError.
	ErrStore = errors.New("rate limit store failure")
	// ErrNotFound is returned by Store.Get when a key has no live record.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned by optimistic stores that gave up retrying an update.
	ErrConflict = errors.New("record update conflict")
	// ErrRecordMismatch is returned when a stored record belongs to another algorithm.
	ErrRecordMismatch = errors.New("record does not match algorithm")
)

// ConfigError reports a configuration that cannot produce a limiter.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidConfig, e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// ValidationError reports a rejected Consume argument. No record is touched.
type ValidationError struct {
	Points float64
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %v: %s", ErrInvalidPoints, e.Points, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidPoints
}

// StoreError wraps a failed store call. The limiter never turns it into a decision.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}
