package handlers

import (
	"time"

	"github.com/serroba/admission/internal/middleware"
	"github.com/serroba/admission/internal/ratelimit"
)

// ConsumeRequest is the request body for charging points to an identifier.
type ConsumeRequest struct {
	Body struct {
		Identifier string   `doc:"Caller identity the points are charged to" example:"user-42" json:"identifier" maxLength:"512" minLength:"1"`
		Points     *float64 `doc:"Points to charge, 1 when omitted; 0 probes" example:"1"       json:"points,omitempty"          minimum:"0"`
	}
}

// DecisionBody is the wire form of a decision.
type DecisionBody struct {
	Success        bool      `doc:"Whether the operation may proceed"        json:"success"`
	Limit          int64     `doc:"Configured limit"                         json:"limit"`
	Remaining      int64     `doc:"Whole points still available"             json:"remaining"`
	Reset          time.Time `doc:"When capacity replenishes"                json:"reset"`
	ResetAfterMs   int64     `doc:"Milliseconds until reset"                 json:"resetAfterMs"`
	ConsumedPoints float64   `doc:"Points charged by this call"              json:"consumedPoints"`
}

// ConsumeResponse carries the decision and its rate limit headers.
// Status is 200 when the operation may proceed and 429 otherwise.
type ConsumeResponse struct {
	middleware.DecisionHeaders

	Status int
	Body   DecisionBody
}

// RecordRequest is the request for inspecting the record of an identifier.
type RecordRequest struct {
	Identifier string `doc:"Caller identity" example:"user-42" maxLength:"512" minLength:"1" path:"identifier"`
}

// RecordResponse is the current record stored for an identifier.
type RecordResponse struct {
	Body struct {
		Key       string `doc:"Store key"                   json:"key"`
		Algorithm string `doc:"Algorithm owning the record" json:"algorithm"`
		Record    any    `doc:"Algorithm specific state"    json:"record"`
	}
}

func decisionBody(dec ratelimit.Decision) DecisionBody {
	return DecisionBody{
		Success:        dec.Success,
		Limit:          dec.Limit,
		Remaining:      dec.Remaining,
		Reset:          dec.Reset,
		ResetAfterMs:   dec.ResetAfter.Milliseconds(),
		ConsumedPoints: dec.ConsumedPoints,
	}
}
