package service

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/shiva/medride/internal/model"
)

// DefaultCancellationReason is recorded when a cancel request carries no reason.
const DefaultCancellationReason = "No reason provided"

// Actor is the authenticated caller of a ride operation.
type Actor struct {
	ID   uuid.UUID
	Role model.Role
}

// ActorFromUser converts a resolved identity into an Actor.
func ActorFromUser(u *model.User) Actor {
	return Actor{ID: u.ID, Role: u.Role}
}

// ─── Transition Table ───────────────────────────────────────
//
//   pending     → accepted     any driver, via Claim only
//   pending     → cancelled    patient, booking facility, admin
//   accepted    → in_progress  assigned driver
//   accepted    → cancelled    patient, booking facility, admin, assigned driver
//   in_progress → completed    assigned driver
//   in_progress → cancelled    patient, booking facility, admin, assigned driver
//
// completed and cancelled have no outgoing edges.

// party is the set of relationships an actor can have to a ride.
type party uint8

const (
	partyAnyDriver party = 1 << iota
	partyAssignedDriver
	partyPatient
	partyFacility
	partyAdmin
)

const requesters = partyPatient | partyFacility | partyAdmin

type edge struct {
	parties   party
	claimOnly bool
}

var transitions = map[model.RideStatus]map[model.RideStatus]edge{
	model.StatusPending: {
		model.StatusAccepted:  {parties: partyAnyDriver, claimOnly: true},
		model.StatusCancelled: {parties: requesters},
	},
	model.StatusAccepted: {
		model.StatusInProgress: {parties: partyAssignedDriver},
		model.StatusCancelled:  {parties: requesters | partyAssignedDriver},
	},
	model.StatusInProgress: {
		model.StatusCompleted: {parties: partyAssignedDriver},
		model.StatusCancelled: {parties: requesters | partyAssignedDriver},
	},
}

// AllowedTransitions returns the legal targets from status, sorted.
func AllowedTransitions(from model.RideStatus) []model.RideStatus {
	out := make([]model.RideStatus, 0, len(transitions[from]))
	for to := range transitions[from] {
		out = append(out, to)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsLegalTransition reports whether from→to is an edge of the table.
func IsLegalTransition(from, to model.RideStatus) bool {
	_, ok := transitions[from][to]
	return ok
}

// partiesOf returns every relationship actor has to ride.
func partiesOf(ride *model.Ride, actor Actor) party {
	var p party
	switch actor.Role {
	case model.RoleDriver:
		p |= partyAnyDriver
		if ride.IsAssignedTo(actor.ID) {
			p |= partyAssignedDriver
		}
	case model.RolePatient:
		if ride.PatientID == actor.ID {
			p |= partyPatient
		}
	case model.RoleFacility:
		if ride.BookedBy(actor.ID) {
			p |= partyFacility
		}
	case model.RoleAdmin:
		p |= partyAdmin
	}
	return p
}

// canView reports whether actor may read ride. Drivers may also read rides
// that are still open for claiming.
func canView(ride *model.Ride, actor Actor) bool {
	if actor.Role == model.RoleDriver && ride.Status == model.StatusPending {
		return true
	}
	return partiesOf(ride, actor)&(partyAssignedDriver|requesters) != 0
}

// ApplyTransition validates moving ride to `to` on behalf of actor. It returns
// the updated copy of the ride together with the patch the store must apply
// conditionally on the ride's current status. ride itself is not modified.
//
// Errors: *TransitionError for an edge not in the table (or the claim-only
// edge), ErrForbidden when actor is not a party allowed to take the edge.
func ApplyTransition(ride *model.Ride, to model.RideStatus, actor Actor, reason string, now time.Time) (*model.Ride, model.TransitionPatch, error) {
	e, ok := transitions[ride.Status][to]
	if !ok || e.claimOnly {
		return nil, model.TransitionPatch{}, &TransitionError{
			From:    ride.Status,
			To:      to,
			Allowed: AllowedTransitions(ride.Status),
		}
	}
	if partiesOf(ride, actor)&e.parties == 0 {
		return nil, model.TransitionPatch{}, ErrForbidden
	}

	patch := model.TransitionPatch{From: ride.Status, To: to}
	at := now
	by := actor.ID
	switch to {
	case model.StatusInProgress:
		patch.StartTime = &at
	case model.StatusCompleted:
		patch.CompletedBy = &by
		patch.CompletedAt = &at
	case model.StatusCancelled:
		if reason == "" {
			reason = DefaultCancellationReason
		}
		patch.CancelledBy = &by
		patch.CancelledAt = &at
		patch.CancellationReason = &reason
	}

	updated := *ride
	patch.Apply(&updated, now)
	return &updated, patch, nil
}
