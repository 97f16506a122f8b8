package service

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/medride/internal/model"
)

var allStatuses = []model.RideStatus{
	model.StatusPending,
	model.StatusAccepted,
	model.StatusInProgress,
	model.StatusCompleted,
	model.StatusCancelled,
}

func TestIsLegalTransition_AllPairs(t *testing.T) {
	legal := map[[2]model.RideStatus]bool{
		{model.StatusPending, model.StatusAccepted}:     true,
		{model.StatusPending, model.StatusCancelled}:    true,
		{model.StatusAccepted, model.StatusInProgress}:  true,
		{model.StatusAccepted, model.StatusCancelled}:   true,
		{model.StatusInProgress, model.StatusCompleted}: true,
		{model.StatusInProgress, model.StatusCancelled}: true,
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := legal[[2]model.RideStatus{from, to}]
			assert.Equal(t, want, IsLegalTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestAllowedTransitions(t *testing.T) {
	assert.Equal(t, []model.RideStatus{model.StatusAccepted, model.StatusCancelled}, AllowedTransitions(model.StatusPending))
	assert.Equal(t, []model.RideStatus{model.StatusCancelled, model.StatusInProgress}, AllowedTransitions(model.StatusAccepted))
	assert.Empty(t, AllowedTransitions(model.StatusCompleted))
	assert.Empty(t, AllowedTransitions(model.StatusCancelled))
}

func TestApplyTransition_Parties(t *testing.T) {
	patientID := uuid.New()
	facilityID := uuid.New()
	driverID := uuid.New()

	ride := func(status model.RideStatus) *model.Ride {
		r := &model.Ride{ID: uuid.New(), PatientID: patientID, FacilityID: &facilityID, Status: status}
		if status != model.StatusPending {
			r.DriverID = &driverID
		}
		return r
	}

	patient := Actor{ID: patientID, Role: model.RolePatient}
	otherPatient := Actor{ID: uuid.New(), Role: model.RolePatient}
	facility := Actor{ID: facilityID, Role: model.RoleFacility}
	otherFacility := Actor{ID: uuid.New(), Role: model.RoleFacility}
	driver := Actor{ID: driverID, Role: model.RoleDriver}
	otherDriver := Actor{ID: uuid.New(), Role: model.RoleDriver}
	admin := Actor{ID: uuid.New(), Role: model.RoleAdmin}

	tests := []struct {
		name    string
		from    model.RideStatus
		to      model.RideStatus
		actor   Actor
		wantErr error
	}{
		{"patient cancels pending", model.StatusPending, model.StatusCancelled, patient, nil},
		{"facility cancels pending", model.StatusPending, model.StatusCancelled, facility, nil},
		{"admin cancels pending", model.StatusPending, model.StatusCancelled, admin, nil},
		{"other patient cannot cancel", model.StatusPending, model.StatusCancelled, otherPatient, ErrForbidden},
		{"other facility cannot cancel", model.StatusPending, model.StatusCancelled, otherFacility, ErrForbidden},
		{"driver cannot cancel pending", model.StatusPending, model.StatusCancelled, driver, ErrForbidden},
		{"accept only via claim", model.StatusPending, model.StatusAccepted, driver, ErrInvalidTransition},
		{"assigned driver starts", model.StatusAccepted, model.StatusInProgress, driver, nil},
		{"other driver cannot start", model.StatusAccepted, model.StatusInProgress, otherDriver, ErrForbidden},
		{"patient cannot start", model.StatusAccepted, model.StatusInProgress, patient, ErrForbidden},
		{"assigned driver cancels accepted", model.StatusAccepted, model.StatusCancelled, driver, nil},
		{"other driver cannot cancel accepted", model.StatusAccepted, model.StatusCancelled, otherDriver, ErrForbidden},
		{"accepted cannot complete", model.StatusAccepted, model.StatusCompleted, driver, ErrInvalidTransition},
		{"assigned driver completes", model.StatusInProgress, model.StatusCompleted, driver, nil},
		{"admin cannot complete", model.StatusInProgress, model.StatusCompleted, admin, ErrForbidden},
		{"patient cancels in progress", model.StatusInProgress, model.StatusCancelled, patient, nil},
		{"completed is terminal", model.StatusCompleted, model.StatusCancelled, admin, ErrInvalidTransition},
		{"cancelled is terminal", model.StatusCancelled, model.StatusPending, admin, ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ride(tt.from)
			updated, patch, err := ApplyTransition(r, tt.to, tt.actor, "", fixedNow)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, updated)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.from, patch.From)
			assert.Equal(t, tt.to, updated.Status)
			assert.Equal(t, tt.from, r.Status, "input ride must not be modified")
		})
	}
}

func TestApplyTransition_StampsFields(t *testing.T) {
	driverID := uuid.New()
	patientID := uuid.New()
	driver := Actor{ID: driverID, Role: model.RoleDriver}
	r := &model.Ride{PatientID: patientID, DriverID: &driverID, Status: model.StatusAccepted}

	started, _, err := ApplyTransition(r, model.StatusInProgress, driver, "", fixedNow)
	require.NoError(t, err)
	require.NotNil(t, started.StartTime)
	assert.Equal(t, fixedNow, *started.StartTime)

	completed, _, err := ApplyTransition(started, model.StatusCompleted, driver, "", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, &driverID, completed.CompletedBy)
	require.NotNil(t, completed.CompletedAt)

	cancelled, _, err := ApplyTransition(r, model.StatusCancelled, Actor{ID: patientID, Role: model.RolePatient}, "", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, DefaultCancellationReason, cancelled.CancellationReason)
	assert.Equal(t, &patientID, cancelled.CancelledBy)
}

func TestTransitionError(t *testing.T) {
	_, _, err := ApplyTransition(&model.Ride{Status: model.StatusCompleted}, model.StatusCancelled, Actor{Role: model.RoleAdmin}, "", fixedNow)

	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, model.StatusCompleted, te.From)
	assert.Empty(t, te.Allowed)
	assert.Contains(t, err.Error(), "terminal")
}
