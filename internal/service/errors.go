package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shiva/medride/internal/model"
	"github.com/shiva/medride/pkg/fare"
)

// ─── Errors ─────────────────────────────────────────────────

var (
	// ErrAuth is returned for a missing, expired or malformed credential, or
	// a credential whose identity no longer exists.
	ErrAuth = errors.New("authentication required")

	// ErrForbidden is returned when an authenticated caller has the wrong role
	// or is not a party to the ride.
	ErrForbidden = errors.New("not permitted")

	// ErrRideNotFound is returned when the ride does not exist.
	ErrRideNotFound = errors.New("ride not found")

	// ErrClaimConflict is returned when another driver claimed the ride first or
	// it left the pending state. Clients should re-query nearby rides.
	ErrClaimConflict = errors.New("ride is no longer available")

	// ErrPatientMissing is returned when a ride would reference a patient that
	// does not exist.
	ErrPatientMissing = errors.New("patient does not exist")

	// ErrInvalidFareInput is returned for a negative distance or unparsable scheduled time.
	ErrInvalidFareInput = fare.ErrInvalidInput

	// ErrStaleRide is returned when a conditional update lost to a concurrent
	// writer between read and write.
	ErrStaleRide = errors.New("ride was modified concurrently")

	// ErrInvalidTransition matches every *TransitionError via errors.Is.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError reports a malformed or missing input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TransitionError reports an illegal state edge together with the edges that
// are legal from the current state.
type TransitionError struct {
	From    model.RideStatus
	To      model.RideStatus
	Allowed []model.RideStatus
}

func (e *TransitionError) Error() string {
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	if len(allowed) == 0 {
		return fmt.Sprintf("cannot move ride from %s to %s: %s is terminal", e.From, e.To, e.From)
	}
	return fmt.Sprintf("cannot move ride from %s to %s (allowed: %s)", e.From, e.To, strings.Join(allowed, ", "))
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
