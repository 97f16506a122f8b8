package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/medride/internal/model"
)

func TestDispatch_NearbyPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := NewDispatchService(f.rides, 0, 50)

	later := rideInput(2, "2025-03-12T18:00:00Z")
	first, err := f.svc.Create(ctx, f.patient, rideInput(2, "2025-03-12T15:00:00Z"))
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, f.patient, later)
	require.NoError(t, err)

	farAway := rideInput(2, "2025-03-12T13:00:00Z")
	farAway.Pickup.Location = model.Point{Lon: -118.2437, Lat: 34.0522}
	_, err = f.svc.Create(ctx, f.patient, farAway)
	require.NoError(t, err)

	here := model.Point{Lon: -73.9850, Lat: 40.7480}
	got, err := d.NearbyPending(ctx, f.driverA, here, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.Equal(t, second.ID, got[1].ID)

	_, err = f.svc.Claim(ctx, f.driverB, first.ID)
	require.NoError(t, err)
	got, err = d.NearbyPending(ctx, f.driverA, here, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, second.ID, got[0].ID)
}

func TestDispatch_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := NewDispatchService(f.rides, 0, 0)

	_, err := d.NearbyPending(ctx, f.patient, model.Point{}, 0)
	assert.ErrorIs(t, err, ErrForbidden)

	var ve *ValidationError
	_, err = d.NearbyPending(ctx, f.driverA, model.Point{Lon: 200, Lat: 0}, 0)
	assert.True(t, errors.As(err, &ve))
	_, err = d.NearbyPending(ctx, f.driverA, model.Point{}, -5)
	assert.True(t, errors.As(err, &ve))

	_, err = d.NearbyPending(ctx, f.admin, model.Point{}, 100)
	assert.NoError(t, err)
}

func TestDispatch_DriverAssignments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d := NewDispatchService(f.rides, 0, 0)

	accepted := f.createAccepted(t)
	started := f.createInProgress(t)
	f.createCompleted(t)
	f.createPending(t)

	got, err := d.DriverAssignments(ctx, f.driverA)
	require.NoError(t, err)

	var ids []string
	for _, r := range got {
		ids = append(ids, r.ID.String())
	}
	assert.ElementsMatch(t, []string{accepted.ID.String(), started.ID.String()}, ids)

	_, err = d.DriverAssignments(ctx, f.admin)
	assert.ErrorIs(t, err, ErrForbidden)
}
