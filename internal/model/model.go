// Package model contains domain models for the medical transport dispatch system.
// These structs map to the PostgreSQL schema in migrations/001_create_schema.sql
// and to the documents stored by the Mongo repository.
package model

import (
	"time"

	"github.com/google/uuid"
)

// ─── Enums ──────────────────────────────────────────────────

type Role string

const (
	RolePatient  Role = "patient"
	RoleDriver   Role = "driver"
	RoleFacility Role = "facility"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDriver, RoleFacility, RoleAdmin:
		return true
	}
	return false
}

type RideStatus string

const (
	StatusPending    RideStatus = "pending"
	StatusAccepted   RideStatus = "accepted"
	StatusInProgress RideStatus = "in_progress"
	StatusCompleted  RideStatus = "completed"
	StatusCancelled  RideStatus = "cancelled"
)

// Valid reports whether s is a known ride status.
func (s RideStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible from s.
func (s RideStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentUnpaid, PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// ─── Location ───────────────────────────────────────────────

// Point is a WGS-84 coordinate (EPSG:4326). Stored longitude first.
type Point struct {
	Lon float64 `json:"longitude"`
	Lat float64 `json:"latitude"`
}

// Place is an address together with its indexed point.
type Place struct {
	Address  string `json:"address"`
	Location Point  `json:"location"`
}

// ─── Fare ───────────────────────────────────────────────────

// FeeItem is a named monetary line item.
type FeeItem struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// DistanceCharge is the per-distance line item with a human readable explanation.
type DistanceCharge struct {
	Name    string  `json:"name"`
	Amount  float64 `json:"amount"`
	Details string  `json:"details"`
}

type FareBreakdown struct {
	BaseFare       FeeItem        `json:"baseFare"`
	Distance       DistanceCharge `json:"distance"`
	AdditionalFees []FeeItem      `json:"additionalFees"`
}

// Fare is the computed price of a ride.
// Invariant: Total = max(Subtotal, minimum fare); Subtotal = base + distance + Σ additional fees.
type Fare struct {
	Total              float64       `json:"total"`
	Subtotal           float64       `json:"subtotal"`
	Breakdown          FareBreakdown `json:"breakdown"`
	MinimumFareApplied bool          `json:"minimumFareApplied"`
}

// ─── Ride ───────────────────────────────────────────────────

// SpecialRequirements are advisory flags; they never affect fare or transitions.
type SpecialRequirements struct {
	Wheelchair         bool `json:"wheelchair"`
	MedicalEquipment   bool `json:"medicalEquipment"`
	AssistanceRequired bool `json:"assistanceRequired"`
}

type Rating struct {
	Score     int       `json:"score"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

// PaymentDetails is owned by the payments collaborator and stored verbatim.
type PaymentDetails struct {
	SessionID       string     `json:"sessionId,omitempty"`
	PaymentIntentID string     `json:"paymentIntentId,omitempty"`
	PaymentMethod   string     `json:"paymentMethod,omitempty"`
	AmountPaid      float64    `json:"amountPaid,omitempty"`
	PaidAt          *time.Time `json:"paidAt,omitempty"`
	RefundedAt      *time.Time `json:"refundedAt,omitempty"`
	RefundAmount    float64    `json:"refundAmount,omitempty"`
	RefundReason    string     `json:"refundReason,omitempty"`
	CardBrand       string     `json:"cardBrand,omitempty"`
	CardLast4       string     `json:"cardLast4,omitempty"`
}

// Ride maps to the `rides` table.
type Ride struct {
	ID                  uuid.UUID           `json:"id"`
	PatientID           uuid.UUID           `json:"patientId"`
	DriverID            *uuid.UUID          `json:"driverId,omitempty"`
	FacilityID          *uuid.UUID          `json:"facilityId,omitempty"`
	Pickup              Place               `json:"pickup"`
	Dropoff             Place               `json:"dropoff"`
	Distance            float64             `json:"distance"`
	ScheduledTime       time.Time           `json:"scheduledTime"`
	Status              RideStatus          `json:"status"`
	SpecialRequirements SpecialRequirements `json:"specialRequirements"`
	Notes               string              `json:"notes,omitempty"`
	Fare                Fare                `json:"fare"`

	StartTime          *time.Time `json:"startTime,omitempty"`
	CompletedBy        *uuid.UUID `json:"completedBy,omitempty"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
	CancelledBy        *uuid.UUID `json:"cancelledBy,omitempty"`
	CancelledAt        *time.Time `json:"cancelledAt,omitempty"`
	CancellationReason string     `json:"cancellationReason,omitempty"`

	Rating         *Rating         `json:"rating,omitempty"`
	PaymentStatus  PaymentStatus   `json:"paymentStatus"`
	PaymentDetails *PaymentDetails `json:"paymentDetails,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsAssignedTo reports whether the ride's driver is id.
func (r *Ride) IsAssignedTo(id uuid.UUID) bool {
	return r.DriverID != nil && *r.DriverID == id
}

// BookedBy reports whether the ride was booked by facility id.
func (r *Ride) BookedBy(id uuid.UUID) bool {
	return r.FacilityID != nil && *r.FacilityID == id
}

// TransitionPatch carries the fields written by a single status transition.
// Nil fields are left untouched by the store.
type TransitionPatch struct {
	From               RideStatus
	To                 RideStatus
	StartTime          *time.Time
	CompletedBy        *uuid.UUID
	CompletedAt        *time.Time
	CancelledBy        *uuid.UUID
	CancelledAt        *time.Time
	CancellationReason *string
}

// Apply writes the patch onto r.
func (p TransitionPatch) Apply(r *Ride, at time.Time) {
	r.Status = p.To
	if p.StartTime != nil {
		r.StartTime = p.StartTime
	}
	if p.CompletedBy != nil {
		r.CompletedBy = p.CompletedBy
	}
	if p.CompletedAt != nil {
		r.CompletedAt = p.CompletedAt
	}
	if p.CancelledBy != nil {
		r.CancelledBy = p.CancelledBy
	}
	if p.CancelledAt != nil {
		r.CancelledAt = p.CancelledAt
	}
	if p.CancellationReason != nil {
		r.CancellationReason = *p.CancellationReason
	}
	r.UpdatedAt = at
}

// RideFilter selects rides for listing. Results are ordered by scheduled
// time, latest first unless Ascending is set.
type RideFilter struct {
	PatientID      *uuid.UUID
	DriverID       *uuid.UUID
	FacilityID     *uuid.UUID
	Statuses       []RideStatus
	UnassignedOnly bool
	Ascending      bool
	Limit          int
}

// RideRef is the minimal projection scanned by the orphan reconciler.
type RideRef struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	Status    RideStatus
}

// ─── Identity ───────────────────────────────────────────────

// User maps to the `users` table owned by the identity collaborator.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// ─── Pricing ────────────────────────────────────────────────

type Surcharges struct {
	NightCharge    float64 `json:"nightCharge"`
	PeakHourCharge float64 `json:"peakHourCharge"`
	HolidayCharge  float64 `json:"holidayCharge"`
}

// PricingConfig is the canonical singleton fare schedule.
type PricingConfig struct {
	BaseFare           float64    `json:"baseFare"`
	PerMileRate        float64    `json:"perMileRate"`
	MinimumFare        float64    `json:"minimumFare"`
	CancellationFee    float64    `json:"cancellationFee"`
	SurgeMultiplierMin float64    `json:"surgeMultiplierMin"`
	SurgeMultiplierMax float64    `json:"surgeMultiplierMax"`
	AdditionalFees     Surcharges `json:"additionalFees"`
	LastUpdated        time.Time  `json:"lastUpdated"`
	UpdatedBy          *uuid.UUID `json:"updatedBy,omitempty"`
}

// DefaultPricingConfig is materialised when no configuration has been stored yet.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		BaseFare:           5.00,
		PerMileRate:        2.50,
		MinimumFare:        10.00,
		CancellationFee:    5.00,
		SurgeMultiplierMin: 1.0,
		SurgeMultiplierMax: 3.0,
	}
}
