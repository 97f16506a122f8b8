package service

import (
	"context"
	"fmt"
	"math"

	"github.com/shiva/medride/internal/model"
	"github.com/shiva/medride/pkg/geo"
)

// DefaultDispatchRadiusM is used when a nearby query gives no radius.
const DefaultDispatchRadiusM = 10_000

// DispatchService answers the driver-facing ride queries.
type DispatchService struct {
	store         RideStore
	defaultRadius float64
	maxResults    int
}

// NewDispatchService creates a dispatch service. Non-positive arguments select
// DefaultDispatchRadiusM and an unbounded result size respectively.
func NewDispatchService(store RideStore, defaultRadiusM float64, maxResults int) *DispatchService {
	if defaultRadiusM <= 0 {
		defaultRadiusM = DefaultDispatchRadiusM
	}
	return &DispatchService{store: store, defaultRadius: defaultRadiusM, maxResults: maxResults}
}

// NearbyPending returns claimable rides whose pickup is within radiusM meters
// of p, earliest scheduled first. A zero radius selects the default.
//
// Complexity: delegated to the store's spatial index, O(log N + K).
func (s *DispatchService) NearbyPending(ctx context.Context, actor Actor, p model.Point, radiusM float64) ([]model.Ride, error) {
	if actor.Role != model.RoleDriver && actor.Role != model.RoleAdmin {
		return nil, ErrForbidden
	}
	if !geo.Valid(p) {
		return nil, invalid("location", "longitude must be in [-180,180] and latitude in [-90,90]")
	}
	if radiusM == 0 {
		radiusM = s.defaultRadius
	}
	if radiusM < 0 || math.IsNaN(radiusM) || math.IsInf(radiusM, 0) {
		return nil, invalid("maxDistance", "must be a positive number of meters")
	}

	rides, err := s.store.NearbyPending(ctx, p, radiusM, s.maxResults)
	if err != nil {
		return nil, fmt.Errorf("nearby pending rides: %w", err)
	}
	return rides, nil
}

// DriverAssignments returns the driver's accepted and in-progress rides,
// earliest scheduled first.
func (s *DispatchService) DriverAssignments(ctx context.Context, actor Actor) ([]model.Ride, error) {
	if actor.Role != model.RoleDriver {
		return nil, ErrForbidden
	}
	id := actor.ID
	rides, err := s.store.List(ctx, model.RideFilter{
		DriverID:  &id,
		Statuses:  []model.RideStatus{model.StatusAccepted, model.StatusInProgress},
		Ascending: true,
		Limit:     s.maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("driver assignments: %w", err)
	}
	return rides, nil
}
