package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/admission/internal/events"
	"github.com/serroba/admission/internal/messaging"
	"github.com/serroba/admission/internal/middleware"
	"github.com/serroba/admission/internal/ratelimit"
	"go.uber.org/zap"
)

// Limiter is what the decision API needs from a rate limiter.
type Limiter interface {
	ratelimit.Consumer
	Record(ctx context.Context, identifier string) (ratelimit.Record, error)
	Config() ratelimit.Config
}

// DecisionHandler exposes a limiter over HTTP.
type DecisionHandler struct {
	limiter       Limiter
	publishDenied messaging.Publish[events.DecisionEvent]
	logger        *zap.Logger
	now           func() time.Time
}

// NewDecisionHandler creates a new decision handler.
func NewDecisionHandler(
	limiter Limiter,
	publishDenied messaging.Publish[events.DecisionEvent],
	logger *zap.Logger,
) *DecisionHandler {
	return &DecisionHandler{
		limiter:       limiter,
		publishDenied: publishDenied,
		logger:        logger,
		now:           time.Now,
	}
}

func (h *DecisionHandler) Consume(ctx context.Context, req *ConsumeRequest) (*ConsumeResponse, error) {
	points := 1.0
	if req.Body.Points != nil {
		points = *req.Body.Points
	}

	dec, err := h.limiter.Consume(ctx, req.Body.Identifier, points)
	if err != nil {
		if errors.Is(err, ratelimit.ErrInvalidPoints) {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}

		h.logger.Error("consume failed",
			zap.String("identifier", req.Body.Identifier),
			zap.Error(err),
		)

		return nil, huma.Error503ServiceUnavailable("rate limit store unavailable")
	}

	resp := &ConsumeResponse{
		Status:          http.StatusOK,
		DecisionHeaders: middleware.NewDecisionHeaders(dec),
		Body:            decisionBody(dec),
	}

	if !dec.Success {
		resp.Status = http.StatusTooManyRequests

		h.publish(ctx, req.Body.Identifier, dec)
	}

	return resp, nil
}

func (h *DecisionHandler) publish(ctx context.Context, identifier string, dec ratelimit.Decision) {
	event := events.NewDecisionEvent(h.limiter.Config(), identifier, dec, h.now())

	info := middleware.RequestInfoFromContext(ctx)
	event.RequestID = info.RequestID
	event.ClientIP = info.ClientIP

	if err := h.publishDenied(ctx, event); err != nil {
		h.logger.Error("failed to publish decision event",
			zap.String("key", event.Key),
			zap.Error(err),
		)
	}
}

func (h *DecisionHandler) GetRecord(ctx context.Context, req *RecordRequest) (*RecordResponse, error) {
	rec, err := h.limiter.Record(ctx, req.Identifier)
	if err != nil {
		if errors.Is(err, ratelimit.ErrNotFound) {
			return nil, huma.Error404NotFound("no record for identifier")
		}

		h.logger.Error("record lookup failed",
			zap.String("identifier", req.Identifier),
			zap.Error(err),
		)

		return nil, huma.Error503ServiceUnavailable("rate limit store unavailable")
	}

	resp := &RecordResponse{}
	resp.Body.Key = h.limiter.Config().Key(req.Identifier)
	resp.Body.Algorithm = string(rec.Algorithm())
	resp.Body.Record = rec

	return resp, nil
}
