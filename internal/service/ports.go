package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shiva/medride/internal/model"
)

// RideStore persists rides. Every mutation is a single conditional update;
// a predicate miss is reported as repository.ErrNoMatch.
type RideStore interface {
	Insert(ctx context.Context, ride *model.Ride) error
	Get(ctx context.Context, id uuid.UUID) (*model.Ride, error)
	Claim(ctx context.Context, id, driverID uuid.UUID, at time.Time) (*model.Ride, error)
	Transition(ctx context.Context, id uuid.UUID, p model.TransitionPatch, at time.Time) (*model.Ride, error)
	SetRating(ctx context.Context, id uuid.UUID, rating model.Rating) (*model.Ride, error)
	SetFare(ctx context.Context, id uuid.UUID, expected model.RideStatus, distance float64, scheduled time.Time, fare model.Fare, at time.Time) (*model.Ride, error)
	SetPayment(ctx context.Context, id uuid.UUID, status model.PaymentStatus, details *model.PaymentDetails, at time.Time) (*model.Ride, error)
	NearbyPending(ctx context.Context, p model.Point, radiusMeters float64, limit int) ([]model.Ride, error)
	List(ctx context.Context, f model.RideFilter) ([]model.Ride, error)
	PatientRefs(ctx context.Context) ([]model.RideRef, error)
	DeleteOrphan(ctx context.Context, id, patientID uuid.UUID) (model.RideStatus, error)
}

// IdentityLookup resolves users owned by the identity service.
// A missing user is reported as repository.ErrNotFound.
type IdentityLookup interface {
	Lookup(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// Notifier fans lifecycle events out to live connections. Implementations
// must not block on slow receivers.
type Notifier interface {
	RideCreated(ctx context.Context, ride *model.Ride)
	RideStatusChanged(ctx context.Context, ride *model.Ride, old model.RideStatus)
	RideUpdated(ctx context.Context, ride *model.Ride, kind string)
	RideRated(ctx context.Context, ride *model.Ride)
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) RideCreated(context.Context, *model.Ride)                         {}
func (NopNotifier) RideStatusChanged(context.Context, *model.Ride, model.RideStatus) {}
func (NopNotifier) RideUpdated(context.Context, *model.Ride, string)                 {}
func (NopNotifier) RideRated(context.Context, *model.Ride)                           {}
