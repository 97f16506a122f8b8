package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shiva/medride/internal/model"
	"github.com/shiva/medride/internal/repository"
	"github.com/shiva/medride/pkg/fare"
	"github.com/shiva/medride/pkg/geo"
)

const (
	maxNotesLength         = 1000
	maxRatingCommentLength = 500
	defaultListLimit       = 100
)

// ─── Inputs ─────────────────────────────────────────────────

// CreateRideInput is a booking request. PatientID is required when a facility
// or admin books on a patient's behalf and must be empty or self for patients.
type CreateRideInput struct {
	PatientID           *uuid.UUID                `json:"patientId,omitempty"`
	Pickup              model.Place               `json:"pickup"`
	Dropoff             model.Place               `json:"dropoff"`
	Distance            float64                   `json:"distance"`
	ScheduledTime       string                    `json:"scheduledTime"`
	SpecialRequirements model.SpecialRequirements `json:"specialRequirements"`
	Notes               string                    `json:"notes"`
}

// ListRidesInput narrows a role-scoped listing.
type ListRidesInput struct {
	Statuses   []model.RideStatus
	Unassigned bool
	Limit      int
}

// RecomputeFareInput overrides distance and/or scheduled time before repricing.
type RecomputeFareInput struct {
	Distance      *float64 `json:"distance,omitempty"`
	ScheduledTime *string  `json:"scheduledTime,omitempty"`
}

// ─── RideService ────────────────────────────────────────────

// RideService owns the ride lifecycle: creation, the claim protocol, status
// transitions, ratings and the administrative fare/payment writes.
//
// Every write is persisted before the corresponding event is broadcast, and
// every write is one conditional update keyed on the status that was read.
type RideService struct {
	store   RideStore
	users   IdentityLookup
	pricing *PricingService
	notify  Notifier
	log     zerolog.Logger
	now     func() time.Time
}

// NewRideService creates a ride service. A nil notifier discards events.
func NewRideService(
	store RideStore,
	users IdentityLookup,
	pricing *PricingService,
	notify Notifier,
	log zerolog.Logger,
) *RideService {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &RideService{
		store:   store,
		users:   users,
		pricing: pricing,
		notify:  notify,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create books a ride. The fare is computed from the current pricing
// configuration and the ride is stored as pending, then announced to drivers.
func (s *RideService) Create(ctx context.Context, actor Actor, in CreateRideInput) (*model.Ride, error) {
	var patientID uuid.UUID
	var facilityID *uuid.UUID

	switch actor.Role {
	case model.RolePatient:
		if in.PatientID != nil && *in.PatientID != actor.ID {
			return nil, ErrForbidden
		}
		patientID = actor.ID
	case model.RoleFacility:
		if in.PatientID == nil {
			return nil, invalid("patientId", "required when booking for a patient")
		}
		patientID = *in.PatientID
		id := actor.ID
		facilityID = &id
	case model.RoleAdmin:
		if in.PatientID == nil {
			return nil, invalid("patientId", "required when booking for a patient")
		}
		patientID = *in.PatientID
	default:
		return nil, ErrForbidden
	}

	scheduled, err := validateCreate(in)
	if err != nil {
		return nil, err
	}

	patient, err := s.users.Lookup(ctx, patientID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPatientMissing
	}
	if err != nil {
		return nil, fmt.Errorf("lookup patient %s: %w", patientID, err)
	}
	if patient.Role != model.RolePatient {
		return nil, invalid("patientId", "does not reference a patient")
	}

	f, err := s.pricing.Quote(ctx, in.Distance, scheduled)
	if err != nil {
		return nil, err
	}

	now := s.now()
	ride := &model.Ride{
		ID:                  uuid.New(),
		PatientID:           patientID,
		FacilityID:          facilityID,
		Pickup:              trimPlace(in.Pickup),
		Dropoff:             trimPlace(in.Dropoff),
		Distance:            in.Distance,
		ScheduledTime:       scheduled.UTC(),
		Status:              model.StatusPending,
		SpecialRequirements: in.SpecialRequirements,
		Notes:               strings.TrimSpace(in.Notes),
		Fare:                *f,
		PaymentStatus:       model.PaymentUnpaid,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.store.Insert(ctx, ride); err != nil {
		return nil, fmt.Errorf("create ride: %w", err)
	}

	s.log.Info().
		Str("ride_id", ride.ID.String()).
		Str("patient_id", patientID.String()).
		Str("booked_by", actor.ID.String()).
		Float64("fare_total", ride.Fare.Total).
		Msg("ride created")

	s.notify.RideCreated(ctx, ride)
	return ride, nil
}

func trimPlace(p model.Place) model.Place {
	p.Address = strings.TrimSpace(p.Address)
	return p
}

func validateCreate(in CreateRideInput) (time.Time, error) {
	if strings.TrimSpace(in.Pickup.Address) == "" {
		return time.Time{}, invalid("pickup.address", "is required")
	}
	if strings.TrimSpace(in.Dropoff.Address) == "" {
		return time.Time{}, invalid("dropoff.address", "is required")
	}
	if !geo.Valid(in.Pickup.Location) {
		return time.Time{}, invalid("pickup.location", "longitude must be in [-180,180] and latitude in [-90,90]")
	}
	if !geo.Valid(in.Dropoff.Location) {
		return time.Time{}, invalid("dropoff.location", "longitude must be in [-180,180] and latitude in [-90,90]")
	}
	if len(in.Notes) > maxNotesLength {
		return time.Time{}, invalid("notes", "must be at most %d characters", maxNotesLength)
	}
	if in.Distance < 0 || math.IsNaN(in.Distance) || math.IsInf(in.Distance, 0) {
		return time.Time{}, fmt.Errorf("%w: distance must be a non-negative number of miles", ErrInvalidFareInput)
	}
	return fare.ParseScheduledTime(in.ScheduledTime)
}

// Get returns a ride visible to actor.
func (s *RideService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*model.Ride, error) {
	ride, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(ride, actor) {
		return nil, ErrForbidden
	}
	return ride, nil
}

func (s *RideService) load(ctx context.Context, id uuid.UUID) (*model.Ride, error) {
	ride, err := s.store.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load ride %s: %w", id, err)
	}
	return ride, nil
}

// List returns the rides actor may see: patients their own, facilities those
// they booked, drivers their assignments (or the unassigned pool), admins all.
func (s *RideService) List(ctx context.Context, actor Actor, in ListRidesInput) ([]model.Ride, error) {
	for _, st := range in.Statuses {
		if !st.Valid() {
			return nil, invalid("status", "unknown status %q", st)
		}
	}

	f := model.RideFilter{Statuses: in.Statuses, Limit: in.Limit}
	if f.Limit <= 0 || f.Limit > defaultListLimit {
		f.Limit = defaultListLimit
	}

	id := actor.ID
	switch actor.Role {
	case model.RolePatient:
		f.PatientID = &id
	case model.RoleFacility:
		f.FacilityID = &id
	case model.RoleDriver:
		if in.Unassigned {
			f.UnassignedOnly = true
			f.Statuses = []model.RideStatus{model.StatusPending}
		} else {
			f.DriverID = &id
		}
	case model.RoleAdmin:
		f.UnassignedOnly = in.Unassigned
	default:
		return nil, ErrForbidden
	}

	rides, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}
	return rides, nil
}

// ─── Transitions ────────────────────────────────────────────

// Start moves an accepted ride to in_progress. Assigned driver only.
func (s *RideService) Start(ctx context.Context, actor Actor, id uuid.UUID) (*model.Ride, error) {
	return s.transition(ctx, actor, id, model.StatusInProgress, "")
}

// Complete moves an in-progress ride to completed. Assigned driver only.
func (s *RideService) Complete(ctx context.Context, actor Actor, id uuid.UUID) (*model.Ride, error) {
	return s.transition(ctx, actor, id, model.StatusCompleted, "")
}

// Cancel cancels a non-terminal ride.
func (s *RideService) Cancel(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*model.Ride, error) {
	return s.transition(ctx, actor, id, model.StatusCancelled, strings.TrimSpace(reason))
}

func (s *RideService) transition(ctx context.Context, actor Actor, id uuid.UUID, to model.RideStatus, reason string) (*model.Ride, error) {
	ride, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	_, patch, err := ApplyTransition(ride, to, actor, reason, now)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.Transition(ctx, id, patch, now)
	if errors.Is(err, repository.ErrNoMatch) {
		return nil, ErrStaleRide
	}
	if err != nil {
		s.log.Error().Err(err).
			Str("ride_id", id.String()).
			Str("from", string(patch.From)).
			Str("to", string(patch.To)).
			Msg("persist transition failed")
		return nil, fmt.Errorf("transition ride %s: %w", id, err)
	}

	s.log.Info().
		Str("ride_id", id.String()).
		Str("actor_id", actor.ID.String()).
		Str("from", string(patch.From)).
		Str("to", string(patch.To)).
		Msg("ride status changed")

	s.notify.RideStatusChanged(ctx, updated, patch.From)
	return updated, nil
}

// ─── Rating ─────────────────────────────────────────────────

// Rate records the patient's (or booking facility's) rating of a completed ride.
func (s *RideService) Rate(ctx context.Context, actor Actor, id uuid.UUID, score int, comment string) (*model.Ride, error) {
	if score < 1 || score > 5 {
		return nil, invalid("rating", "must be between 1 and 5")
	}
	comment = strings.TrimSpace(comment)
	if len(comment) > maxRatingCommentLength {
		return nil, invalid("comment", "must be at most %d characters", maxRatingCommentLength)
	}

	ride, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if partiesOf(ride, actor)&(partyPatient|partyFacility) == 0 {
		return nil, ErrForbidden
	}
	if ride.Status != model.StatusCompleted {
		return nil, invalid("status", "only completed rides can be rated")
	}

	updated, err := s.store.SetRating(ctx, id, model.Rating{Score: score, Comment: comment, CreatedAt: s.now()})
	if errors.Is(err, repository.ErrNoMatch) {
		return nil, ErrStaleRide
	}
	if err != nil {
		return nil, fmt.Errorf("rate ride %s: %w", id, err)
	}

	s.notify.RideRated(ctx, updated)
	return updated, nil
}

// ─── Administrative writes ──────────────────────────────────

// RecomputeFare re-runs the fare engine for a ride, optionally with a corrected
// distance or scheduled time. Admin only; cancelled rides are not repriced.
func (s *RideService) RecomputeFare(ctx context.Context, actor Actor, id uuid.UUID, in RecomputeFareInput) (*model.Ride, error) {
	if actor.Role != model.RoleAdmin {
		return nil, ErrForbidden
	}

	ride, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if ride.Status == model.StatusCancelled {
		return nil, invalid("status", "cancelled rides cannot be repriced")
	}

	distance := ride.Distance
	if in.Distance != nil {
		distance = *in.Distance
	}
	scheduled := ride.ScheduledTime
	if in.ScheduledTime != nil {
		if scheduled, err = fare.ParseScheduledTime(*in.ScheduledTime); err != nil {
			return nil, err
		}
	}

	f, err := s.pricing.Quote(ctx, distance, scheduled)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.SetFare(ctx, id, ride.Status, distance, scheduled.UTC(), *f, s.now())
	if errors.Is(err, repository.ErrNoMatch) {
		return nil, ErrStaleRide
	}
	if err != nil {
		return nil, fmt.Errorf("recompute fare for ride %s: %w", id, err)
	}

	s.log.Info().
		Str("ride_id", id.String()).
		Float64("old_total", ride.Fare.Total).
		Float64("new_total", updated.Fare.Total).
		Msg("ride fare recomputed")

	s.notify.RideUpdated(ctx, updated, "fare_update")
	return updated, nil
}

// UpdatePayment records a payment status reported by the payments service.
func (s *RideService) UpdatePayment(
	ctx context.Context,
	actor Actor,
	id uuid.UUID,
	status model.PaymentStatus,
	details *model.PaymentDetails,
) (*model.Ride, error) {
	if actor.Role != model.RoleAdmin {
		return nil, ErrForbidden
	}
	if !status.Valid() {
		return nil, invalid("paymentStatus", "unknown payment status %q", status)
	}

	updated, err := s.store.SetPayment(ctx, id, status, details, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update payment for ride %s: %w", id, err)
	}

	s.notify.RideUpdated(ctx, updated, "payment_update")
	return updated, nil
}
