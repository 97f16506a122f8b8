// Package handler contains the HTTP handlers of the ride API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/shiva/medride/internal/auth"
	"github.com/shiva/medride/internal/httperr"
	"github.com/shiva/medride/internal/service"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse = httperr.Response

// writeJSON is a helper that writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps a service error onto a status code and body. Unexpected
// errors are logged and reported as internal_error without detail.
func writeError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	var (
		ve *service.ValidationError
		te *service.TransitionError
	)

	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: ve.Error(), Field: ve.Field})
	case errors.Is(err, service.ErrInvalidFareInput):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_fare_input", Message: err.Error()})
	case errors.Is(err, service.ErrAuth):
		httperr.Write(w, http.StatusUnauthorized, httperr.Unauthorized)
	case errors.Is(err, service.ErrForbidden):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "forbidden", Message: "You are not permitted to perform this action."})
	case errors.Is(err, service.ErrRideNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Ride not found."})
	case errors.Is(err, service.ErrClaimConflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:     "claim_conflict",
			Message:   "This ride has already been accepted or is no longer available.",
			Retryable: true,
		})
	case errors.As(err, &te):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:              "invalid_transition",
			Message:            te.Error(),
			AllowedTransitions: te.Allowed,
		})
	case errors.Is(err, service.ErrStaleRide):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:     "stale_ride",
			Message:   "The ride changed while the request was processed.",
			Retryable: true,
		})
	case errors.Is(err, service.ErrPatientMissing):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: "patient_missing", Message: "The referenced patient does not exist."})
	default:
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		httperr.Write(w, http.StatusInternalServerError, httperr.Internal)
	}
}

// decodeJSON reads the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &service.ValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}

// decodeOptionalJSON is decodeJSON but leaves v untouched on an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return &service.ValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)}
}

// rideID parses the {id} path variable.
func rideID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, &service.ValidationError{Field: "id", Message: "must be a UUID"}
	}
	return id, nil
}

// actor returns the authenticated caller.
func actor(r *http.Request) (service.Actor, error) {
	a, ok := auth.ActorFrom(r.Context())
	if !ok {
		return service.Actor{}, service.ErrAuth
	}
	return a, nil
}
