package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/medride/internal/model"
)

func TestClaim_TwoDrivers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := f.createPending(t)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	start := make(chan struct{})
	for i, d := range []Actor{f.driverA, f.driverB} {
		wg.Add(1)
		go func(i int, d Actor) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Claim(ctx, d, r.ID)
		}(i, d)
	}
	close(start)
	wg.Wait()

	var winner Actor
	switch {
	case errs[0] == nil:
		winner = f.driverA
		assert.ErrorIs(t, errs[1], ErrClaimConflict)
	case errs[1] == nil:
		winner = f.driverB
		assert.ErrorIs(t, errs[0], ErrClaimConflict)
	default:
		t.Fatalf("no claim succeeded: %v, %v", errs[0], errs[1])
	}

	stored, err := f.rides.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, stored.Status)
	assert.True(t, stored.IsAssignedTo(winner.ID))
}

func TestClaim_ManyDrivers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := f.createPending(t)

	const n = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		d := Actor{ID: uuid.New(), Role: model.RoleDriver}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Claim(ctx, d, r.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if assert.ErrorIs(t, err, ErrClaimConflict) {
				conflicts++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, conflicts)

	var statusEvents int
	for _, e := range f.notifier.all() {
		if e.name == "status" {
			statusEvents++
		}
	}
	assert.Equal(t, 1, statusEvents)
}

func TestClaim_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	r := f.createPending(t)

	_, err := f.svc.Claim(ctx, f.patient, r.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Claim(ctx, f.driverA, uuid.New())
	assert.ErrorIs(t, err, ErrRideNotFound)

	_, err = f.svc.Cancel(ctx, f.patient, r.ID, "")
	require.NoError(t, err)
	_, err = f.svc.Claim(ctx, f.driverA, r.ID)
	assert.ErrorIs(t, err, ErrClaimConflict)
}
