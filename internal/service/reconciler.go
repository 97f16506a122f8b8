package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/shiva/medride/internal/repository"
)

// SweepResult summarises one reconciliation pass.
type SweepResult struct {
	Checked int `json:"checked"`
	Deleted int `json:"deleted"`
	Skipped int `json:"skipped"`
}

// Reconciler deletes rides whose patient no longer exists in the identity store.
//
// Only a confirmed absence (ErrNotFound from the identity lookup) triggers a
// delete; lookup failures are counted as skipped and retried on the next pass.
// The delete itself is conditional on the ride still referencing the same
// patient.
type Reconciler struct {
	store RideStore
	users IdentityLookup
	log   zerolog.Logger
}

// NewReconciler creates an orphan reconciler.
func NewReconciler(store RideStore, users IdentityLookup, log zerolog.Logger) *Reconciler {
	return &Reconciler{store: store, users: users, log: log}
}

// Sweep runs one pass over every ride.
func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	refs, err := r.store.PatientRefs(ctx)
	if err != nil {
		return res, fmt.Errorf("reconcile: list rides: %w", err)
	}

	// Patients are looked up once per pass.
	exists := make(map[string]bool)
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Checked++

		key := ref.PatientID.String()
		present, seen := exists[key]
		if !seen {
			_, lerr := r.users.Lookup(ctx, ref.PatientID)
			switch {
			case lerr == nil:
				present = true
			case errors.Is(lerr, repository.ErrNotFound):
				present = false
			default:
				r.log.Warn().Err(lerr).
					Str("ride_id", ref.ID.String()).
					Str("patient_id", key).
					Msg("patient lookup failed; ride kept")
				res.Skipped++
				continue
			}
			exists[key] = present
		}
		if present {
			continue
		}

		prior, derr := r.store.DeleteOrphan(ctx, ref.ID, ref.PatientID)
		if errors.Is(derr, repository.ErrNoMatch) {
			continue
		}
		if derr != nil {
			r.log.Error().Err(derr).Str("ride_id", ref.ID.String()).Msg("delete orphaned ride failed")
			res.Skipped++
			continue
		}

		res.Deleted++
		r.log.Info().
			Str("ride_id", ref.ID.String()).
			Str("prior_status", string(prior)).
			Str("patient_id", key).
			Msg("deleted orphaned ride")
	}

	r.log.Info().
		Int("checked", res.Checked).
		Int("deleted", res.Deleted).
		Int("skipped", res.Skipped).
		Msg("orphan sweep finished")
	return res, nil
}

// Run sweeps every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.log.Error().Err(err).Msg("orphan sweep failed")
			}
		}
	}
}
