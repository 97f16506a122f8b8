package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/shiva/medride/internal/model"
	"github.com/shiva/medride/internal/repository"
	"github.com/shiva/medride/pkg/fare"
)

// fixedNow is Wednesday 2025-03-12 12:00 UTC.
var fixedNow = time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC)

type event struct {
	name string
	ride model.Ride
	old  model.RideStatus
	kind string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []event
}

func (n *recordingNotifier) add(e event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) RideCreated(_ context.Context, r *model.Ride) {
	n.add(event{name: "created", ride: *r})
}

func (n *recordingNotifier) RideStatusChanged(_ context.Context, r *model.Ride, old model.RideStatus) {
	n.add(event{name: "status", ride: *r, old: old})
}

func (n *recordingNotifier) RideUpdated(_ context.Context, r *model.Ride, kind string) {
	n.add(event{name: "updated", ride: *r, kind: kind})
}

func (n *recordingNotifier) RideRated(_ context.Context, r *model.Ride) {
	n.add(event{name: "rated", ride: *r})
}

func (n *recordingNotifier) all() []event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]event(nil), n.events...)
}

type fixture struct {
	rides    *repository.MemoryRideStore
	users    *repository.MemoryUserDirectory
	prices   *repository.MemoryPricingStore
	pricing  *PricingService
	svc      *RideService
	notifier *recordingNotifier

	patient  Actor
	facility Actor
	driverA  Actor
	driverB  Actor
	admin    Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		rides:    repository.NewMemoryRideStore(),
		prices:   repository.NewMemoryPricingStore(),
		notifier: &recordingNotifier{},
		patient:  Actor{ID: uuid.New(), Role: model.RolePatient},
		facility: Actor{ID: uuid.New(), Role: model.RoleFacility},
		driverA:  Actor{ID: uuid.New(), Role: model.RoleDriver},
		driverB:  Actor{ID: uuid.New(), Role: model.RoleDriver},
		admin:    Actor{ID: uuid.New(), Role: model.RoleAdmin},
	}
	var users []model.User
	for _, a := range []Actor{f.patient, f.facility, f.driverA, f.driverB, f.admin} {
		users = append(users, model.User{ID: a.ID, Role: a.Role})
	}
	f.users = repository.NewMemoryUserDirectory(users...)

	f.pricing = NewPricingService(f.prices, fare.NewEngine(time.UTC, nil), zerolog.Nop())
	f.pricing.now = func() time.Time { return fixedNow }
	f.svc = NewRideService(f.rides, f.users, f.pricing, f.notifier, zerolog.Nop())
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

// setPricing stores a flat schedule with no surcharges.
func (f *fixture) setPricing(t *testing.T, base, perMile, minimum float64) {
	t.Helper()
	cfg := model.DefaultPricingConfig()
	cfg.BaseFare, cfg.PerMileRate, cfg.MinimumFare = base, perMile, minimum
	require.NoError(t, f.prices.Save(context.Background(), cfg))
}

func rideInput(distance float64, scheduled string) CreateRideInput {
	return CreateRideInput{
		Pickup:        model.Place{Address: "350 5th Ave", Location: model.Point{Lon: -73.9857, Lat: 40.7484}},
		Dropoff:       model.Place{Address: "Mount Sinai", Location: model.Point{Lon: -73.9526, Lat: 40.7900}},
		Distance:      distance,
		ScheduledTime: scheduled,
	}
}

func (f *fixture) createPending(t *testing.T) *model.Ride {
	t.Helper()
	r, err := f.svc.Create(context.Background(), f.patient, rideInput(3, "2025-03-12T14:00:00Z"))
	require.NoError(t, err)
	return r
}

func (f *fixture) createAccepted(t *testing.T) *model.Ride {
	t.Helper()
	r := f.createPending(t)
	r, err := f.svc.Claim(context.Background(), f.driverA, r.ID)
	require.NoError(t, err)
	return r
}

func (f *fixture) createInProgress(t *testing.T) *model.Ride {
	t.Helper()
	r := f.createAccepted(t)
	r, err := f.svc.Start(context.Background(), f.driverA, r.ID)
	require.NoError(t, err)
	return r
}

func (f *fixture) createCompleted(t *testing.T) *model.Ride {
	t.Helper()
	r := f.createInProgress(t)
	r, err := f.svc.Complete(context.Background(), f.driverA, r.ID)
	require.NoError(t, err)
	return r
}
