package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/shiva/medride/internal/model"
	"github.com/shiva/medride/internal/service"
)

// AdminHandler serves the administrative ride endpoints.
type AdminHandler struct {
	rides      *service.RideService
	reconciler *service.Reconciler
	log        zerolog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(rides *service.RideService, reconciler *service.Reconciler, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{rides: rides, reconciler: reconciler, log: log}
}

// RecomputeFare handles POST /api/v1/admin/rides/{id}/fare
//
// An empty body reprices with the stored distance and time:
//
//	{"distance": 7.5, "scheduledTime": "2025-03-12T18:30:00Z"}
func (h *AdminHandler) RecomputeFare(w http.ResponseWriter, r *http.Request) {
	var in service.RecomputeFareInput
	if err := decodeOptionalJSON(w, r, &in); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	a, err := actor(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	id, err := rideID(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	ride, err := h.rides.RecomputeFare(r.Context(), a, id, in)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

// Reconcile handles POST /api/v1/admin/reconcile
//
// Runs one orphan sweep synchronously and returns its counts.
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if a.Role != model.RoleAdmin {
		writeError(w, r, h.log, service.ErrForbidden)
		return
	}

	res, err := h.reconciler.Sweep(r.Context())
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.log.Info().Str("admin_id", a.ID.String()).Int("deleted", res.Deleted).Msg("on-demand orphan sweep")
	writeJSON(w, http.StatusOK, res)
}
