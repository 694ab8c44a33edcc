// Package events carries rate limit decisions to asynchronous consumers.
package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/serroba/admission/internal/ratelimit"
)

// TopicDecisionDenied receives an event for every rejected decision.
const TopicDecisionDenied = "ratelimit.denied"

// DecisionEvent describes one decision of a limiter.
type DecisionEvent struct {
	ID             string    `json:"id"`
	Key            string    `json:"key"`
	Algorithm      string    `json:"algorithm"`
	Success        bool      `json:"success"`
	Limit          int64     `json:"limit"`
	Remaining      int64     `json:"remaining"`
	ConsumedPoints float64   `json:"consumedPoints"`
	ResetAfterMs   int64     `json:"resetAfterMs"`
	RequestID      string    `json:"requestId,omitempty"`
	ClientIP       string    `json:"clientIp,omitempty"`
	Scope          string    `json:"scope,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// NewDecisionEvent builds the event of dec taken for key under cfg.
func NewDecisionEvent(cfg ratelimit.Config, identifier string, dec ratelimit.Decision, at time.Time) *DecisionEvent {
	return &DecisionEvent{
		ID:             uuid.NewString(),
		Key:            cfg.Key(identifier),
		Algorithm:      string(cfg.Policy.Algorithm),
		Success:        dec.Success,
		Limit:          dec.Limit,
		Remaining:      dec.Remaining,
		ConsumedPoints: dec.ConsumedPoints,
		ResetAfterMs:   dec.ResetAfter.Milliseconds(),
		OccurredAt:     at,
	}
}

// ErrInvalidEvent is returned by Validate for events no store should keep.
var ErrInvalidEvent = errors.New("invalid decision event")

// Validate reports whether e names its key and a known algorithm.
func (e *DecisionEvent) Validate() error {
	if e.ID == "" || e.Key == "" {
		return fmt.Errorf("%w: missing id or key", ErrInvalidEvent)
	}

	if _, err := ratelimit.ParseAlgorithm(e.Algorithm); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	return nil
}
