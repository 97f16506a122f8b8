package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shiva/medride/internal/model"
	"github.com/shiva/medride/internal/repository"
)

// Claim awards a pending, unassigned ride to the calling driver.
//
// Concurrency model:
//   - One conditional update with predicate {id, status = pending, driver = null}.
//   - The store evaluates predicate and assignment atomically per record, so
//     among N concurrent claims exactly one matches; the rest see no match.
//   - No locks, no read-before-write, no retries.
//
// A lost race returns ErrClaimConflict. Conflicts are expected under load and
// are logged at debug level only.
func (s *RideService) Claim(ctx context.Context, actor Actor, id uuid.UUID) (*model.Ride, error) {
	if actor.Role != model.RoleDriver {
		return nil, ErrForbidden
	}

	ride, err := s.store.Claim(ctx, id, actor.ID, s.now())
	if errors.Is(err, repository.ErrNoMatch) {
		if _, gerr := s.store.Get(ctx, id); errors.Is(gerr, repository.ErrNotFound) {
			return nil, ErrRideNotFound
		}
		s.log.Debug().
			Str("ride_id", id.String()).
			Str("driver_id", actor.ID.String()).
			Msg("claim conflict")
		return nil, ErrClaimConflict
	}
	if err != nil {
		s.log.Error().Err(err).
			Str("ride_id", id.String()).
			Str("driver_id", actor.ID.String()).
			Msg("claim failed")
		return nil, fmt.Errorf("claim ride %s: %w", id, err)
	}

	s.log.Info().
		Str("ride_id", id.String()).
		Str("driver_id", actor.ID.String()).
		Msg("ride claimed")

	s.notify.RideStatusChanged(ctx, ride, model.StatusPending)
	return ride, nil
}
