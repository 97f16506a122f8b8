package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/shiva/medride/internal/model"
	"github.com/shiva/medride/internal/service"
)

// FareRequest is the JSON body for POST /api/v1/fare/estimate.
type FareRequest struct {
	Distance      float64 `json:"distance"`
	ScheduledTime string  `json:"scheduledTime"`
}

// PricingHandler serves the fare schedule and fare estimates.
type PricingHandler struct {
	pricing *service.PricingService
	log     zerolog.Logger
}

// NewPricingHandler creates a new pricing handler.
func NewPricingHandler(pricing *service.PricingService, log zerolog.Logger) *PricingHandler {
	return &PricingHandler{pricing: pricing, log: log}
}

// GetPricing handles GET /api/v1/pricing
func (h *PricingHandler) GetPricing(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.pricing.Current(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// EstimateFare handles POST /api/v1/fare/estimate
//
// Request body:
//
//	{"distance": 5.0, "scheduledTime": "2025-03-12T14:00:00Z"}
//
// Response: the fare with its full breakdown, exactly as it would be stored
// on a ride booked now.
func (h *PricingHandler) EstimateFare(w http.ResponseWriter, r *http.Request) {
	var req FareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	fare, err := h.pricing.Estimate(r.Context(), req.Distance, req.ScheduledTime)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, fare)
}

// UpdatePricing handles PUT /api/v1/admin/pricing
func (h *PricingHandler) UpdatePricing(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var cfg model.PricingConfig
	if err := decodeJSON(w, r, &cfg); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	updated, err := h.pricing.Update(r.Context(), a, cfg)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
