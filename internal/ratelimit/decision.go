package ratelimit

import (
	"math"
	"time"
)

// Decision is the outcome of a single Consume call.
type Decision struct {
	Success bool  `json:"success"`
	Limit   int64 `json:"limit"`

	// Remaining is the number of whole points still available. Never negative.
	Remaining int64 `json:"remaining"`

	// Reset is when capacity meaningfully replenishes.
	Reset time.Time `json:"reset"`

	// ResetAfter is Reset relative to the decision time. Never negative.
	ResetAfter time.Duration `json:"resetAfter"`

	// ConsumedPoints is what this call charged, reported at most as Limit.
	ConsumedPoints float64 `json:"consumedPoints"`
}

func newDecision(limit int64, accounted float64, reset, now time.Time) Decision {
	return Decision{
		Limit:      limit,
		Remaining:  floorNonNegative(float64(limit) - accounted),
		Reset:      reset,
		ResetAfter: nonNegative(reset.Sub(now)),
	}
}

func floorNonNegative(v float64) int64 {
	if v <= 0 {
		return 0
	}

	return int64(math.Floor(v))
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}

	return d
}

// elapsedMs is the fractional milliseconds from since to now, zero when the clock went backwards.
func elapsedMs(since, now time.Time) float64 {
	d := now.Sub(since)
	if d <= 0 {
		return 0
	}

	return float64(d) / float64(time.Millisecond)
}

// fromMs rounds ms up to a Duration, saturating at the largest representable one.
func fromMs(ms float64) time.Duration {
	if ms <= 0 {
		return 0
	}

	ns := math.Ceil(ms * float64(time.Millisecond))
	if ns >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(ns)
}
