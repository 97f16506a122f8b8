// Package repository provides storage for rides, identities and pricing.
//
// Every ride mutation is a single conditional statement against one row
// (Postgres) or one document (Mongo). The predicate carries the expected
// current status, so a lost race surfaces as ErrNoMatch instead of a
// silently overwritten state. Spatial queries use the PostGIS GIST index
// created in migrations/001_create_schema.sql.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/medride/internal/model"
)

// querier is the part of *pgxpool.Pool the Postgres repositories use.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RideRepository is the PostGIS-backed ride store.
type RideRepository struct {
	pool querier
}

// NewRideRepository creates a new repository backed by the given PG pool.
func NewRideRepository(pool *pgxpool.Pool) *RideRepository {
	return &RideRepository{pool: pool}
}

const rideColumns = `
	id, patient_id, driver_id, facility_id,
	pickup_address, ST_X(pickup_location), ST_Y(pickup_location),
	dropoff_address, ST_X(dropoff_location), ST_Y(dropoff_location),
	distance, scheduled_time, status,
	wheelchair, medical_equipment, assistance_required, notes,
	fare,
	start_time, completed_by, completed_at,
	cancelled_by, cancelled_at, cancellation_reason,
	rating, rating_comment, rated_at,
	payment_status, payment_details,
	created_at, updated_at`

func scanRide(row pgx.Row) (*model.Ride, error) {
	r := &model.Ride{}
	var (
		reason        *string
		ratingScore   *int16
		ratingComment *string
		ratedAt       *time.Time
	)

	err := row.Scan(
		&r.ID, &r.PatientID, &r.DriverID, &r.FacilityID,
		&r.Pickup.Address, &r.Pickup.Location.Lon, &r.Pickup.Location.Lat,
		&r.Dropoff.Address, &r.Dropoff.Location.Lon, &r.Dropoff.Location.Lat,
		&r.Distance, &r.ScheduledTime, &r.Status,
		&r.SpecialRequirements.Wheelchair, &r.SpecialRequirements.MedicalEquipment,
		&r.SpecialRequirements.AssistanceRequired, &r.Notes,
		&r.Fare,
		&r.StartTime, &r.CompletedBy, &r.CompletedAt,
		&r.CancelledBy, &r.CancelledAt, &reason,
		&ratingScore, &ratingComment, &ratedAt,
		&r.PaymentStatus, &r.PaymentDetails,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if reason != nil {
		r.CancellationReason = *reason
	}
	if ratingScore != nil {
		r.Rating = &model.Rating{Score: int(*ratingScore)}
		if ratingComment != nil {
			r.Rating.Comment = *ratingComment
		}
		if ratedAt != nil {
			r.Rating.CreatedAt = *ratedAt
		}
	}
	return r, nil
}

func collectRides(rows pgx.Rows) ([]model.Ride, error) {
	defer rows.Close()

	rides := make([]model.Ride, 0)
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ride: %w", err)
		}
		rides = append(rides, *ride)
	}
	return rides, rows.Err()
}

// Insert stores a newly created ride.
func (r *RideRepository) Insert(ctx context.Context, ride *model.Ride) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO rides (
			id, patient_id, driver_id, facility_id,
			pickup_address, pickup_location,
			dropoff_address, dropoff_location,
			distance, scheduled_time, status,
			wheelchair, medical_equipment, assistance_required, notes,
			fare, payment_status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, ST_SetSRID(ST_MakePoint($6, $7), 4326),
			$8, ST_SetSRID(ST_MakePoint($9, $10), 4326),
			$11, $12, $13,
			$14, $15, $16, $17,
			$18, $19, $20, $20
		)`,
		ride.ID, ride.PatientID, ride.DriverID, ride.FacilityID,
		ride.Pickup.Address, ride.Pickup.Location.Lon, ride.Pickup.Location.Lat,
		ride.Dropoff.Address, ride.Dropoff.Location.Lon, ride.Dropoff.Location.Lat,
		ride.Distance, ride.ScheduledTime, ride.Status,
		ride.SpecialRequirements.Wheelchair, ride.SpecialRequirements.MedicalEquipment,
		ride.SpecialRequirements.AssistanceRequired, ride.Notes,
		ride.Fare, ride.PaymentStatus, ride.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ride %s: %w", ride.ID, err)
	}
	return nil
}

// Get fetches a single ride by ID.
func (r *RideRepository) Get(ctx context.Context, id uuid.UUID) (*model.Ride, error) {
	ride, err := scanRide(r.pool.QueryRow(ctx,
		`SELECT `+rideColumns+` FROM rides WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ride %s: %w", id, err)
	}
	return ride, nil
}

// Claim awards a pending, unassigned ride to driverID.
//
// The status and driver predicates and the assignment are evaluated in one
// UPDATE, so among concurrent claims exactly one row update succeeds.
// Returns ErrNoMatch when the ride is no longer claimable.
func (r *RideRepository) Claim(ctx context.Context, id, driverID uuid.UUID, at time.Time) (*model.Ride, error) {
	ride, err := scanRide(r.pool.QueryRow(ctx, `
		UPDATE rides
		SET status = 'accepted', driver_id = $2, updated_at = $3
		WHERE id = $1 AND status = 'pending' AND driver_id IS NULL
		RETURNING `+rideColumns,
		id, driverID, at,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoMatch
	}
	if err != nil {
		return nil, fmt.Errorf("claim ride %s: %w", id, err)
	}
	return ride, nil
}

// Transition moves a ride from p.From to p.To, stamping the attribution
// fields carried by the patch. Returns ErrNoMatch when the ride is not in p.From.
func (r *RideRepository) Transition(ctx context.Context, id uuid.UUID, p model.TransitionPatch, at time.Time) (*model.Ride, error) {
	ride, err := scanRide(r.pool.QueryRow(ctx, `
		UPDATE rides SET
			status              = $3,
			start_time          = COALESCE($4, start_time),
			completed_by        = COALESCE($5, completed_by),
			completed_at        = COALESCE($6, completed_at),
			cancelled_by        = COALESCE($7, cancelled_by),
			cancelled_at        = COALESCE($8, cancelled_at),
			cancellation_reason = COALESCE($9, cancellation_reason),
			updated_at          = $10
		WHERE id = $1 AND status = $2
		RETURNING `+rideColumns,
		id, p.From, p.To,
		p.StartTime, p.CompletedBy, p.CompletedAt,
		p.CancelledBy, p.CancelledAt, p.CancellationReason,
		at,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoMatch
	}
	if err != nil {
		return nil, fmt.Errorf("transition ride %s %s->%s: %w", id, p.From, p.To, err)
	}
	return ride, nil
}

// SetRating records a rating on a completed ride. Returns ErrNoMatch otherwise.
func (r *RideRepository) SetRating(ctx context.Context, id uuid.UUID, rating model.Rating) (*model.Ride, error) {
	ride, err := scanRide(r.pool.QueryRow(ctx, `
		UPDATE rides
		SET rating = $2, rating_comment = $3, rated_at = $4, updated_at = $4
		WHERE id = $1 AND status = 'completed'
		RETURNING `+rideColumns,
		id, rating.Score, rating.Comment, rating.CreatedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoMatch
	}
	if err != nil {
		return nil, fmt.Errorf("rate ride %s: %w", id, err)
	}
	return ride, nil
}

// SetFare replaces distance, scheduled time and fare while the ride is still
// in expected. Returns ErrNoMatch when the status has moved on.
func (r *RideRepository) SetFare(
	ctx context.Context,
	id uuid.UUID,
	expected model.RideStatus,
	distance float64,
	scheduled time.Time,
	fare model.Fare,
	at time.Time,
) (*model.Ride, error) {
	ride, err := scanRide(r.pool.QueryRow(ctx, `
		UPDATE rides
		SET distance = $3, scheduled_time = $4, fare = $5, updated_at = $6
		WHERE id = $1 AND status = $2
		RETURNING `+rideColumns,
		id, expected, distance, scheduled, fare, at,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoMatch
	}
	if err != nil {
		return nil, fmt.Errorf("set fare for ride %s: %w", id, err)
	}
	return ride, nil
}

// SetPayment writes the payment status and details owned by the payments service.
func (r *RideRepository) SetPayment(
	ctx context.Context,
	id uuid.UUID,
	status model.PaymentStatus,
	details *model.PaymentDetails,
	at time.Time,
) (*model.Ride, error) {
	ride, err := scanRide(r.pool.QueryRow(ctx, `
		UPDATE rides
		SET payment_status = $2, payment_details = COALESCE($3, payment_details), updated_at = $4
		WHERE id = $1
		RETURNING `+rideColumns,
		id, status, details, at,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("set payment for ride %s: %w", id, err)
	}
	return ride, nil
}

// NearbyPending returns pending rides whose pickup lies within radiusMeters
// of the given point, earliest scheduled first.
//
// The geography cast makes the radius real meters; the predicate matches the
// expression index idx_rides_pickup_geog.
//
// Complexity: O(log N) GIST scan + O(K log K) sort of the K results.
func (r *RideRepository) NearbyPending(ctx context.Context, p model.Point, radiusMeters float64, limit int) ([]model.Ride, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+rideColumns+`
		FROM rides
		WHERE status = 'pending'
		  AND ST_DWithin(
		        pickup_location::geography,
		        ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography,
		        $3
		      )
		ORDER BY scheduled_time ASC
		LIMIT NULLIF($4::int, 0)`,
		p.Lon, p.Lat, // ST_MakePoint takes (lon, lat)
		radiusMeters,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("find nearby pending rides: %w", err)
	}
	return collectRides(rows)
}

// List returns rides matching the filter.
func (r *RideRepository) List(ctx context.Context, f model.RideFilter) ([]model.Ride, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.PatientID != nil {
		where = append(where, "patient_id = "+arg(*f.PatientID))
	}
	if f.DriverID != nil {
		where = append(where, "driver_id = "+arg(*f.DriverID))
	}
	if f.FacilityID != nil {
		where = append(where, "facility_id = "+arg(*f.FacilityID))
	}
	if f.UnassignedOnly {
		where = append(where, "driver_id IS NULL")
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}

	query := `SELECT ` + rideColumns + ` FROM rides`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Ascending {
		query += " ORDER BY scheduled_time ASC"
	} else {
		query += " ORDER BY scheduled_time DESC"
	}
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}
	return collectRides(rows)
}

// PatientRefs returns the id, patient and status of every ride.
func (r *RideRepository) PatientRefs(ctx context.Context) ([]model.RideRef, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, patient_id, status FROM rides ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("scan ride patient refs: %w", err)
	}
	defer rows.Close()

	var refs []model.RideRef
	for rows.Next() {
		var ref model.RideRef
		if err := rows.Scan(&ref.ID, &ref.PatientID, &ref.Status); err != nil {
			return nil, fmt.Errorf("scan ride ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// DeleteOrphan removes a ride only if it still references patientID.
// Returns the status the ride had at deletion, or ErrNoMatch.
func (r *RideRepository) DeleteOrphan(ctx context.Context, id, patientID uuid.UUID) (model.RideStatus, error) {
	var status model.RideStatus
	err := r.pool.QueryRow(ctx,
		`DELETE FROM rides WHERE id = $1 AND patient_id = $2 RETURNING status`,
		id, patientID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNoMatch
	}
	if err != nil {
		return "", fmt.Errorf("delete orphan ride %s: %w", id, err)
	}
	return status, nil
}
