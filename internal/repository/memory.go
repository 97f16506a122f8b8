package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shiva/medride/internal/model"
	"github.com/shiva/medride/pkg/geo"
)

// MemoryRideStore is a process-local ride store with the same conditional
// update semantics as the Postgres and Mongo stores. Each operation holds the
// store mutex for its whole check-and-set.
type MemoryRideStore struct {
	mu    sync.RWMutex
	rides map[uuid.UUID]*model.Ride
}

// NewMemoryRideStore returns an empty store.
func NewMemoryRideStore() *MemoryRideStore {
	return &MemoryRideStore{rides: make(map[uuid.UUID]*model.Ride)}
}

func cloneRide(r *model.Ride) *model.Ride {
	c := *r
	c.Fare.Breakdown.AdditionalFees = append([]model.FeeItem(nil), r.Fare.Breakdown.AdditionalFees...)
	if r.Rating != nil {
		rating := *r.Rating
		c.Rating = &rating
	}
	if r.PaymentDetails != nil {
		details := *r.PaymentDetails
		c.PaymentDetails = &details
	}
	return &c
}

func (s *MemoryRideStore) Insert(_ context.Context, ride *model.Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rides[ride.ID] = cloneRide(ride)
	return nil
}

func (s *MemoryRideStore) Get(_ context.Context, id uuid.UUID) (*model.Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRide(r), nil
}

// update applies fn to the ride under the write lock if pred holds.
func (s *MemoryRideStore) update(id uuid.UUID, missing error, pred func(*model.Ride) bool, fn func(*model.Ride)) (*model.Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[id]
	if !ok {
		return nil, missing
	}
	if pred != nil && !pred(r) {
		return nil, ErrNoMatch
	}
	fn(r)
	return cloneRide(r), nil
}

func (s *MemoryRideStore) Claim(_ context.Context, id, driverID uuid.UUID, at time.Time) (*model.Ride, error) {
	return s.update(id, ErrNoMatch,
		func(r *model.Ride) bool { return r.Status == model.StatusPending && r.DriverID == nil },
		func(r *model.Ride) {
			d := driverID
			r.Status = model.StatusAccepted
			r.DriverID = &d
			r.UpdatedAt = at
		})
}

func (s *MemoryRideStore) Transition(_ context.Context, id uuid.UUID, p model.TransitionPatch, at time.Time) (*model.Ride, error) {
	return s.update(id, ErrNoMatch,
		func(r *model.Ride) bool { return r.Status == p.From },
		func(r *model.Ride) { p.Apply(r, at) })
}

func (s *MemoryRideStore) SetRating(_ context.Context, id uuid.UUID, rating model.Rating) (*model.Ride, error) {
	return s.update(id, ErrNoMatch,
		func(r *model.Ride) bool { return r.Status == model.StatusCompleted },
		func(r *model.Ride) {
			rt := rating
			r.Rating = &rt
			r.UpdatedAt = rating.CreatedAt
		})
}

func (s *MemoryRideStore) SetFare(_ context.Context, id uuid.UUID, expected model.RideStatus, distance float64, scheduled time.Time, fare model.Fare, at time.Time) (*model.Ride, error) {
	return s.update(id, ErrNoMatch,
		func(r *model.Ride) bool { return r.Status == expected },
		func(r *model.Ride) {
			r.Distance = distance
			r.ScheduledTime = scheduled
			r.Fare = fare
			r.UpdatedAt = at
		})
}

func (s *MemoryRideStore) SetPayment(_ context.Context, id uuid.UUID, status model.PaymentStatus, details *model.PaymentDetails, at time.Time) (*model.Ride, error) {
	return s.update(id, ErrNotFound, nil, func(r *model.Ride) {
		r.PaymentStatus = status
		if details != nil {
			d := *details
			r.PaymentDetails = &d
		}
		r.UpdatedAt = at
	})
}

func (s *MemoryRideStore) NearbyPending(_ context.Context, p model.Point, radiusMeters float64, limit int) ([]model.Ride, error) {
	s.mu.RLock()
	var out []model.Ride
	for _, r := range s.rides {
		if r.Status == model.StatusPending && geo.Within(p, r.Pickup.Location, radiusMeters) {
			out = append(out, *cloneRide(r))
		}
	}
	s.mu.RUnlock()

	sortBySchedule(out, true)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryRideStore) List(_ context.Context, f model.RideFilter) ([]model.Ride, error) {
	s.mu.RLock()
	out := make([]model.Ride, 0)
	for _, r := range s.rides {
		if matchesFilter(r, f) {
			out = append(out, *cloneRide(r))
		}
	}
	s.mu.RUnlock()

	sortBySchedule(out, f.Ascending)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryRideStore) PatientRefs(_ context.Context) ([]model.RideRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := make([]model.RideRef, 0, len(s.rides))
	for _, r := range s.rides {
		refs = append(refs, model.RideRef{ID: r.ID, PatientID: r.PatientID, Status: r.Status})
	}
	return refs, nil
}

func (s *MemoryRideStore) DeleteOrphan(_ context.Context, id, patientID uuid.UUID) (model.RideStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rides[id]
	if !ok || r.PatientID != patientID {
		return "", ErrNoMatch
	}
	delete(s.rides, id)
	return r.Status, nil
}

func matchesFilter(r *model.Ride, f model.RideFilter) bool {
	if f.PatientID != nil && r.PatientID != *f.PatientID {
		return false
	}
	if f.DriverID != nil && !r.IsAssignedTo(*f.DriverID) {
		return false
	}
	if f.FacilityID != nil && !r.BookedBy(*f.FacilityID) {
		return false
	}
	if f.UnassignedOnly && r.DriverID != nil {
		return false
	}
	if len(f.Statuses) > 0 {
		for _, st := range f.Statuses {
			if r.Status == st {
				return true
			}
		}
		return false
	}
	return true
}

func sortBySchedule(rides []model.Ride, ascending bool) {
	sort.SliceStable(rides, func(i, j int) bool {
		if ascending {
			return rides[i].ScheduledTime.Before(rides[j].ScheduledTime)
		}
		return rides[i].ScheduledTime.After(rides[j].ScheduledTime)
	})
}

// ─── Identity ───────────────────────────────────────────────

// MemoryUserDirectory is a process-local identity directory.
type MemoryUserDirectory struct {
	mu    sync.RWMutex
	users map[uuid.UUID]model.User
}

func NewMemoryUserDirectory(users ...model.User) *MemoryUserDirectory {
	d := &MemoryUserDirectory{users: make(map[uuid.UUID]model.User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *MemoryUserDirectory) Lookup(_ context.Context, id uuid.UUID) (*model.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// Put adds or replaces a user.
func (d *MemoryUserDirectory) Put(u model.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

// Remove deletes a user, leaving any rides that reference it orphaned.
func (d *MemoryUserDirectory) Remove(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.users, id)
}

// ─── Pricing ────────────────────────────────────────────────

// MemoryPricingStore holds the pricing configuration in memory.
type MemoryPricingStore struct {
	mu  sync.RWMutex
	cfg *model.PricingConfig
}

func NewMemoryPricingStore() *MemoryPricingStore {
	return &MemoryPricingStore{}
}

func (s *MemoryPricingStore) Load(_ context.Context) (*model.PricingConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg == nil {
		return nil, ErrNotFound
	}
	c := *s.cfg
	return &c, nil
}

func (s *MemoryPricingStore) Save(_ context.Context, cfg model.PricingConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = &cfg
	return nil
}

func (s *MemoryPricingStore) SaveIfAbsent(_ context.Context, cfg model.PricingConfig) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg != nil {
		return false, nil
	}
	s.cfg = &cfg
	return true, nil
}
