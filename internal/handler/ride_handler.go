package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shiva/medride/internal/model"
	"github.com/shiva/medride/internal/service"
)

// ─── Request/Response DTOs ──────────────────────────────────

// CancelRideBody is the optional JSON body of PATCH /rides/{id}/cancel.
type CancelRideBody struct {
	Reason string `json:"reason"`
}

// RateRideBody is the JSON body of POST /rides/{id}/rate.
type RateRideBody struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// PaymentBody is the JSON body of PUT /rides/{id}/payment.
type PaymentBody struct {
	PaymentStatus  model.PaymentStatus   `json:"paymentStatus"`
	PaymentDetails *model.PaymentDetails `json:"paymentDetails,omitempty"`
}

// RideList wraps list responses.
type RideList struct {
	Rides []model.Ride `json:"rides"`
	Count int          `json:"count"`
}

func rideList(rides []model.Ride) RideList {
	if rides == nil {
		rides = []model.Ride{}
	}
	return RideList{Rides: rides, Count: len(rides)}
}

// ─── RideHandler ────────────────────────────────────────────

// RideHandler serves the ride lifecycle endpoints.
type RideHandler struct {
	rides    *service.RideService
	dispatch *service.DispatchService
	log      zerolog.Logger
}

// NewRideHandler creates a new ride handler.
func NewRideHandler(rides *service.RideService, dispatch *service.DispatchService, log zerolog.Logger) *RideHandler {
	return &RideHandler{rides: rides, dispatch: dispatch, log: log}
}

// CreateRide handles POST /api/v1/rides
//
//	{
//	  "patientId": "…",                       (facility/admin only)
//	  "pickup":  {"address": "…", "location": {"longitude": -73.98, "latitude": 40.75}},
//	  "dropoff": {"address": "…", "location": {"longitude": -73.95, "latitude": 40.79}},
//	  "distance": 5.2,
//	  "scheduledTime": "2025-03-12T14:00:00Z",
//	  "specialRequirements": {"wheelchair": true},
//	  "notes": "…"
//	}
func (h *RideHandler) CreateRide(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	var in service.CreateRideInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.log, err)
		return
	}

	ride, err := h.rides.Create(r.Context(), a, in)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, ride)
}

// ListRides handles GET /api/v1/rides?status=pending,accepted&unassigned=true&limit=20
func (h *RideHandler) ListRides(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	q := r.URL.Query()
	var in service.ListRidesInput
	for _, raw := range q["status"] {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				in.Statuses = append(in.Statuses, model.RideStatus(s))
			}
		}
	}
	in.Unassigned = q.Get("unassigned") == "true"
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, h.log, &service.ValidationError{Field: "limit", Message: "must be a non-negative integer"})
			return
		}
		in.Limit = n
	}

	rides, err := h.rides.List(r.Context(), a, in)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, rideList(rides))
}

// GetRide handles GET /api/v1/rides/{id}
func (h *RideHandler) GetRide(w http.ResponseWriter, r *http.Request) {
	h.withRide(w, r, func(a service.Actor, id uuid.UUID) (*model.Ride, error) {
		return h.rides.Get(r.Context(), a, id)
	})
}

// NearbyRides handles GET /api/v1/rides/driver/nearby?longitude=…&latitude=…&maxDistance=…
//
// maxDistance is in meters and defaults to the configured dispatch radius.
func (h *RideHandler) NearbyRides(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}

	q := r.URL.Query()
	lon, err := strconv.ParseFloat(q.Get("longitude"), 64)
	if err != nil {
		writeError(w, r, h.log, &service.ValidationError{Field: "longitude", Message: "is required"})
		return
	}
	lat, err := strconv.ParseFloat(q.Get("latitude"), 64)
	if err != nil {
		writeError(w, r, h.log, &service.ValidationError{Field: "latitude", Message: "is required"})
		return
	}
	var radius float64
	if v := q.Get("maxDistance"); v != "" {
		if radius, err = strconv.ParseFloat(v, 64); err != nil {
			writeError(w, r, h.log, &service.ValidationError{Field: "maxDistance", Message: "must be a number of meters"})
			return
		}
	}

	rides, err := h.dispatch.NearbyPending(r.Context(), a, model.Point{Lon: lon, Lat: lat}, radius)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, rideList(rides))
}

// AssignedRides handles GET /api/v1/rides/driver/assigned
func (h *RideHandler) AssignedRides(w http.ResponseWriter, r *http.Request) {
	a, err := actor(r)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	rides, err := h.dispatch.DriverAssignments(r.Context(), a)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, rideList(rides))
}

// AcceptRide handles PATCH /api/v1/rides/{id}/accept
//
// Response codes:
//
//	200  ride claimed by the caller
//	404  ride not found
//	409  another driver won the race or the ride is no longer pending (retryable)
func (h *RideHandler) AcceptRide(w http.ResponseWriter, r *http.Request) {
	h.withRide(w, r, func(a service.Actor, id uuid.UUID) (*model.Ride, error) {
		return h.rides.Claim(r.Context(), a, id)
	})
}

// StartRide handles PATCH /api/v1/rides/{id}/start
func (h *RideHandler) StartRide(w http.ResponseWriter, r *http.Request) {
	h.withRide(w, r, func(a service.Actor, id uuid.UUID) (*model.Ride, error) {
		return h.rides.Start(r.Context(), a, id)
	})
}

// CompleteRide handles PATCH /api/v1/rides/{id}/complete
func (h *RideHandler) CompleteRide(w http.ResponseWriter, r *http.Request) {
	h.withRide(w, r, func(a service.Actor, id uuid.UUID) (*model.Ride, error) {
		return h.rides.Complete(r.Context(), a, id)
	})
}

// CancelRide handles PATCH /api/v1/rides/{id}/cancel with an optional {"reason": "…"} body.
func (h *RideHandler) CancelRide(w http.ResponseWriter, r *http.Request) {
	var body CancelRideBody
	if err := decodeOptionalJSON(w, r, &body); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.withRide(w, r, func(a service.Actor, id uuid.UUID) (*model.Ride, error) {
		return h.rides.Cancel(r.Context(), a, id, body.Reason)
	})
}

// RateRide handles POST /api/v1/rides/{id}/rate
func (h *RideHandler) RateRide(w http.ResponseWriter, r *http.Request) {
	var body RateRideBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.withRide(w, r, func(a service.Actor, id uuid.UUID) (*model.Ride, error) {
		return h.rides.Rate(r.Context(), a, id, body.Rating, body.Comment)
	})
}

// UpdatePayment handles PUT /api/v1/rides/{id}/payment
func (h *RideHandler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	var body PaymentBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, h.log, err)
		return
	}
	h.withRide(w, r, func(a service.Actor, id uuid.UUID) (*model.Ride, error) {
		return h.rides.UpdatePayment(r.Context(), a, id, body.PaymentStatus, body.PaymentDetails)
	})
}

// withRide resolves the caller and the {id} variable, runs op and writes the
// resulting ride.
func (h *RideHandler) withRide(w http.ResponseWriter, r *http.Request, op func(service.Actor, uuid.UUID) (*model.Ride, error)) {
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
	ride, err := op(a, id)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}
