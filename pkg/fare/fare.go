// Package fare computes ride fares from distance, scheduled time and the
// current pricing configuration.
//
// The computation is pure: no I/O, no clock reads. Every monetary value is
// rounded to cents at each accumulation step so that stored totals always
// equal the sum of their stored line items.
//
//	distance  = round2(miles × perMileRate)
//	subtotal  = round2(base + distance + Σ surcharges)
//	total     = max(subtotal, minimumFare)
package fare

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shiva/medride/internal/model"
)

// ErrInvalidInput is returned for a negative/non-finite distance or a missing scheduled time.
var ErrInvalidInput = errors.New("invalid fare input")

// Line item names as they appear in a stored breakdown.
const (
	BaseFareName      = "Base Fare"
	DistanceName      = "Distance Charge"
	NightChargeName   = "Night Hours Charge"
	PeakChargeName    = "Peak Hour Charge"
	HolidayChargeName = "Holiday Charge"
)

// ─── Surcharge Windows ──────────────────────────────────────
//
//   night  hour ≥ 22 or hour < 6           every day
//   peak   07:00–09:59 or 16:00–19:59      weekdays only
//   holiday fixed month/day dates           every hour

const (
	nightStartHour = 22
	nightEndHour   = 6
)

// Holiday is a fixed-date holiday that recurs every year.
type Holiday struct {
	Month time.Month
	Day   int
}

// DefaultHolidays are New Year's Day, Independence Day and Christmas Day.
var DefaultHolidays = []Holiday{
	{Month: time.January, Day: 1},
	{Month: time.July, Day: 4},
	{Month: time.December, Day: 25},
}

// Engine evaluates surcharge windows in a fixed location.
type Engine struct {
	loc      *time.Location
	holidays []Holiday
}

// NewEngine returns an engine evaluating local hours in loc (UTC when nil).
// A nil holiday list selects DefaultHolidays; an empty one disables holidays.
func NewEngine(loc *time.Location, holidays []Holiday) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	if holidays == nil {
		holidays = DefaultHolidays
	}
	return &Engine{loc: loc, holidays: holidays}
}

// Location returns the time zone used for surcharge windows.
func (e *Engine) Location() *time.Location { return e.loc }

// Compute returns the fare for a ride of distance miles scheduled at the given time.
func (e *Engine) Compute(distance float64, scheduled time.Time, cfg model.PricingConfig) (*model.Fare, error) {
	if distance < 0 || math.IsNaN(distance) || math.IsInf(distance, 0) {
		return nil, fmt.Errorf("%w: distance %v", ErrInvalidInput, distance)
	}
	if scheduled.IsZero() {
		return nil, fmt.Errorf("%w: scheduled time is required", ErrInvalidInput)
	}

	local := scheduled.In(e.loc)

	base := Round2(cfg.BaseFare)
	distanceCharge := Round2(distance * cfg.PerMileRate)

	fees := make([]model.FeeItem, 0, 3)
	addFee := func(name string, amount float64, applies bool) {
		amount = Round2(amount)
		if applies && amount > 0 {
			fees = append(fees, model.FeeItem{Name: name, Amount: amount})
		}
	}
	addFee(NightChargeName, cfg.AdditionalFees.NightCharge, IsNight(local))
	addFee(PeakChargeName, cfg.AdditionalFees.PeakHourCharge, IsPeak(local))
	addFee(HolidayChargeName, cfg.AdditionalFees.HolidayCharge, e.IsHoliday(local))

	subtotal := Round2(base + distanceCharge)
	for _, f := range fees {
		subtotal = Round2(subtotal + f.Amount)
	}

	total := math.Max(subtotal, Round2(cfg.MinimumFare))

	return &model.Fare{
		Total:    total,
		Subtotal: subtotal,
		Breakdown: model.FareBreakdown{
			BaseFare: model.FeeItem{Name: BaseFareName, Amount: base},
			Distance: model.DistanceCharge{
				Name:    DistanceName,
				Amount:  distanceCharge,
				Details: fmt.Sprintf("%.1f miles at $%.2f/mile", distance, cfg.PerMileRate),
			},
			AdditionalFees: fees,
		},
		MinimumFareApplied: total > subtotal,
	}, nil
}

// IsNight reports whether t's hour falls in [22:00, 06:00).
func IsNight(t time.Time) bool {
	h := t.Hour()
	return h >= nightStartHour || h < nightEndHour
}

// IsPeak reports whether t is a weekday in 07:00–09:59 or 16:00–19:59.
func IsPeak(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	h := t.Hour()
	return (h >= 7 && h <= 9) || (h >= 16 && h <= 19)
}

// IsHoliday reports whether t's calendar date is one of the engine's holidays.
func (e *Engine) IsHoliday(t time.Time) bool {
	for _, h := range e.holidays {
		if t.Month() == h.Month && t.Day() == h.Day {
			return true
		}
	}
	return false
}

// ParseScheduledTime parses an RFC 3339 timestamp.
func ParseScheduledTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: scheduled time is required", ErrInvalidInput)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: scheduled time %q: %v", ErrInvalidInput, s, err)
	}
	return t, nil
}

// Round2 rounds v to cents.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
