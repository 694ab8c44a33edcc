package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/admission/internal/middleware"
)

// RegisterRoutes registers the decision API with per-endpoint rate limit configuration.
func RegisterRoutes(api huma.API, h *DecisionHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "consume",
		Method:      http.MethodPost,
		Path:        "/v1/consume",
		Summary:     "Consume points",
		Description: "Charges points to an identifier and returns the decision. Rejections use status 429.",
		Tags:        []string{"Decisions"},
		Errors:      []int{http.StatusUnprocessableEntity, http.StatusServiceUnavailable},
	}, h.Consume)

	// Inspection reads the store but charges more to discourage polling
	huma.Register(api, huma.Operation{
		OperationID: "get-record",
		Method:      http.MethodGet,
		Path:        "/v1/records/{identifier}",
		Summary:     "Inspect record",
		Description: "Returns the record currently stored for an identifier.",
		Tags:        []string{"Decisions"},
		Errors:      []int{http.StatusNotFound, http.StatusServiceUnavailable},
		Metadata: map[string]any{
			middleware.MetadataKey: middleware.EndpointConfig{Points: 2},
		},
	}, h.GetRecord)
}
