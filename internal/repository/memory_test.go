package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/medride/internal/model"
)

var baseTime = time.Date(2025, 3, 12, 14, 0, 0, 0, time.UTC)

func newPendingRide(pickup model.Point, scheduled time.Time) *model.Ride {
	return &model.Ride{
		ID:            uuid.New(),
		PatientID:     uuid.New(),
		Pickup:        model.Place{Address: "pickup", Location: pickup},
		Dropoff:       model.Place{Address: "dropoff", Location: pickup},
		ScheduledTime: scheduled,
		Status:        model.StatusPending,
		PaymentStatus: model.PaymentUnpaid,
		CreatedAt:     baseTime,
		UpdatedAt:     baseTime,
	}
}

func TestMemoryRideStore_ClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRideStore()
	ride := newPendingRide(model.Point{Lon: -73.98, Lat: 40.75}, baseTime)
	require.NoError(t, store.Insert(ctx, ride))

	const drivers = 16
	var (
		wg     sync.WaitGroup
		wins   atomic.Int32
		winner atomic.Value
	)
	start := make(chan struct{})
	for i := 0; i < drivers; i++ {
		driverID := uuid.New()
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			got, err := store.Claim(ctx, ride.ID, driverID, baseTime)
			if err == nil {
				wins.Add(1)
				winner.Store(driverID)
				assert.True(t, got.IsAssignedTo(driverID))
				return
			}
			assert.ErrorIs(t, err, ErrNoMatch)
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
	stored, err := store.Get(ctx, ride.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, stored.Status)
	assert.True(t, stored.IsAssignedTo(winner.Load().(uuid.UUID)))
}

func TestMemoryRideStore_TransitionRequiresExpectedStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRideStore()
	ride := newPendingRide(model.Point{}, baseTime)
	require.NoError(t, store.Insert(ctx, ride))

	_, err := store.Transition(ctx, ride.ID, model.TransitionPatch{From: model.StatusAccepted, To: model.StatusInProgress}, baseTime)
	assert.ErrorIs(t, err, ErrNoMatch)

	reason := "changed plans"
	actor := uuid.New()
	got, err := store.Transition(ctx, ride.ID, model.TransitionPatch{
		From:               model.StatusPending,
		To:                 model.StatusCancelled,
		CancelledBy:        &actor,
		CancelledAt:        &baseTime,
		CancellationReason: &reason,
	}, baseTime)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.Equal(t, reason, got.CancellationReason)
	assert.Equal(t, &actor, got.CancelledBy)
}

func TestMemoryRideStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRideStore()
	ride := newPendingRide(model.Point{}, baseTime)
	require.NoError(t, store.Insert(ctx, ride))

	got, err := store.Get(ctx, ride.ID)
	require.NoError(t, err)
	got.Status = model.StatusCompleted

	again, err := store.Get(ctx, ride.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, again.Status)
}

func TestMemoryRideStore_NearbyPending(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRideStore()
	origin := model.Point{Lon: -73.9857, Lat: 40.7484}

	late := newPendingRide(model.Point{Lon: -73.9800, Lat: 40.7500}, baseTime.Add(2*time.Hour))
	early := newPendingRide(model.Point{Lon: -73.9900, Lat: 40.7450}, baseTime.Add(time.Hour))
	far := newPendingRide(model.Point{Lon: -73.7781, Lat: 40.6413}, baseTime)
	claimed := newPendingRide(model.Point{Lon: -73.9857, Lat: 40.7484}, baseTime)
	for _, r := range []*model.Ride{late, early, far, claimed} {
		require.NoError(t, store.Insert(ctx, r))
	}
	_, err := store.Claim(ctx, claimed.ID, uuid.New(), baseTime)
	require.NoError(t, err)

	got, err := store.NearbyPending(ctx, origin, 10_000, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, early.ID, got[0].ID)
	assert.Equal(t, late.ID, got[1].ID)

	got, err = store.NearbyPending(ctx, origin, 10_000, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMemoryRideStore_ListFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRideStore()

	patient := uuid.New()
	facility := uuid.New()
	driver := uuid.New()

	a := newPendingRide(model.Point{}, baseTime)
	a.PatientID = patient
	b := newPendingRide(model.Point{}, baseTime.Add(time.Hour))
	b.PatientID = patient
	b.FacilityID = &facility
	c := newPendingRide(model.Point{}, baseTime.Add(2*time.Hour))
	for _, r := range []*model.Ride{a, b, c} {
		require.NoError(t, store.Insert(ctx, r))
	}
	_, err := store.Claim(ctx, c.ID, driver, baseTime)
	require.NoError(t, err)

	got, err := store.List(ctx, model.RideFilter{PatientID: &patient})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, b.ID, got[0].ID, "latest scheduled first")

	got, err = store.List(ctx, model.RideFilter{FacilityID: &facility})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].ID)

	got, err = store.List(ctx, model.RideFilter{UnassignedOnly: true, Statuses: []model.RideStatus{model.StatusPending}, Ascending: true})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, a.ID, got[0].ID)

	got, err = store.List(ctx, model.RideFilter{DriverID: &driver, Statuses: []model.RideStatus{model.StatusAccepted, model.StatusInProgress}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, c.ID, got[0].ID)
}

func TestMemoryRideStore_SetRatingOnlyWhenCompleted(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRideStore()
	ride := newPendingRide(model.Point{}, baseTime)
	ride.Status = model.StatusCompleted
	pending := newPendingRide(model.Point{}, baseTime)
	require.NoError(t, store.Insert(ctx, ride))
	require.NoError(t, store.Insert(ctx, pending))

	_, err := store.SetRating(ctx, pending.ID, model.Rating{Score: 5, CreatedAt: baseTime})
	assert.ErrorIs(t, err, ErrNoMatch)

	got, err := store.SetRating(ctx, ride.ID, model.Rating{Score: 4, Comment: "kind driver", CreatedAt: baseTime})
	require.NoError(t, err)
	require.NotNil(t, got.Rating)
	assert.Equal(t, 4, got.Rating.Score)
}

func TestMemoryRideStore_DeleteOrphan(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRideStore()
	ride := newPendingRide(model.Point{}, baseTime)
	require.NoError(t, store.Insert(ctx, ride))

	_, err := store.DeleteOrphan(ctx, ride.ID, uuid.New())
	assert.ErrorIs(t, err, ErrNoMatch)

	status, err := store.DeleteOrphan(ctx, ride.ID, ride.PatientID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, status)

	_, err = store.Get(ctx, ride.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUserDirectory(t *testing.T) {
	ctx := context.Background()
	u := model.User{ID: uuid.New(), Role: model.RolePatient}
	dir := NewMemoryUserDirectory(u)

	got, err := dir.Lookup(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RolePatient, got.Role)

	dir.Remove(u.ID)
	_, err = dir.Lookup(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
