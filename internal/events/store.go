package events

import (
	"context"
	"fmt"

	"github.com/serroba/admission/internal/messaging"
	"go.uber.org/zap"
)

// Store persists decision events.
type Store interface {
	SaveDecision(ctx context.Context, event *DecisionEvent) error
}

// LogStore is a Store that writes events to the log.
type LogStore struct {
	logger *zap.Logger
}

// NewLogStore creates a new logging event store.
func NewLogStore(logger *zap.Logger) *LogStore {
	return &LogStore{logger: logger}
}

func (s *LogStore) SaveDecision(_ context.Context, event *DecisionEvent) error {
	s.logger.Info("rate limit decision received",
		zap.String("id", event.ID),
		zap.String("key", event.Key),
		zap.String("algorithm", event.Algorithm),
		zap.Bool("success", event.Success),
		zap.Int64("limit", event.Limit),
		zap.Int64("remaining", event.Remaining),
		zap.Int64("resetAfterMs", event.ResetAfterMs),
		zap.String("requestId", event.RequestID),
		zap.String("scope", event.Scope),
		zap.Time("occurredAt", event.OccurredAt),
	)

	return nil
}

// Handler adapts a Store to a message handler. Invalid events are dropped without
// reaching the store; store errors are retried by the consumer.
func Handler(store Store) messaging.Handler[DecisionEvent] {
	return func(ctx context.Context, event *DecisionEvent) error {
		if err := event.Validate(); err != nil {
			return fmt.Errorf("%w: %w", messaging.ErrDrop, err)
		}

		return store.SaveDecision(ctx, event)
	}
}
