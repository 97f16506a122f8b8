package fare

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/medride/internal/model"
)

// 2025-03-12 is a Wednesday, 2025-03-15 a Saturday.
func at(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func flatPricing(base, perMile, minimum float64) model.PricingConfig {
	return model.PricingConfig{BaseFare: base, PerMileRate: perMile, MinimumFare: minimum}
}

func TestCompute_Scenarios(t *testing.T) {
	engine := NewEngine(time.UTC, nil)

	night := flatPricing(5.00, 2.00, 7.00)
	night.AdditionalFees.NightCharge = 3.00

	tests := []struct {
		name         string
		distance     float64
		scheduled    string
		cfg          model.PricingConfig
		wantDistance float64
		wantSubtotal float64
		wantTotal    float64
		wantMinimum  bool
		wantFeeCount int
	}{
		{
			name:         "weekday afternoon, no surcharge",
			distance:     5.0,
			scheduled:    "2025-03-12T14:00:00Z",
			cfg:          flatPricing(5.00, 2.00, 7.00),
			wantDistance: 10.00,
			wantSubtotal: 15.00,
			wantTotal:    15.00,
		},
		{
			name:         "night surcharge",
			distance:     5.0,
			scheduled:    "2025-03-12T02:00:00Z",
			cfg:          night,
			wantDistance: 10.00,
			wantSubtotal: 18.00,
			wantTotal:    18.00,
			wantFeeCount: 1,
		},
		{
			name:         "minimum fare floor",
			distance:     0.5,
			scheduled:    "2025-03-12T14:00:00Z",
			cfg:          flatPricing(5.00, 2.00, 10.00),
			wantDistance: 1.00,
			wantSubtotal: 6.00,
			wantTotal:    10.00,
			wantMinimum:  true,
		},
		{
			name:         "zero distance",
			distance:     0,
			scheduled:    "2025-03-12T14:00:00Z",
			cfg:          flatPricing(5.00, 2.50, 10.00),
			wantDistance: 0,
			wantSubtotal: 5.00,
			wantTotal:    10.00,
			wantMinimum:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := engine.Compute(tt.distance, at(t, tt.scheduled), tt.cfg)
			require.NoError(t, err)

			assert.Equal(t, tt.wantDistance, f.Breakdown.Distance.Amount)
			assert.Equal(t, tt.wantSubtotal, f.Subtotal)
			assert.Equal(t, tt.wantTotal, f.Total)
			assert.Equal(t, tt.wantMinimum, f.MinimumFareApplied)
			assert.Len(t, f.Breakdown.AdditionalFees, tt.wantFeeCount)
		})
	}
}

func TestCompute_DistanceDetails(t *testing.T) {
	engine := NewEngine(time.UTC, nil)
	f, err := engine.Compute(12.34, at(t, "2025-03-12T14:00:00Z"), flatPricing(5, 2.5, 10))
	require.NoError(t, err)

	assert.Equal(t, "12.3 miles at $2.50/mile", f.Breakdown.Distance.Details)
	assert.Equal(t, DistanceName, f.Breakdown.Distance.Name)
	assert.Equal(t, BaseFareName, f.Breakdown.BaseFare.Name)
	assert.Equal(t, 30.85, f.Breakdown.Distance.Amount)
}

func TestCompute_SurchargeWindows(t *testing.T) {
	engine := NewEngine(time.UTC, nil)
	cfg := flatPricing(5, 2, 0)
	cfg.AdditionalFees = model.Surcharges{NightCharge: 3, PeakHourCharge: 2, HolidayCharge: 4}

	tests := []struct {
		scheduled string
		want      []string
	}{
		{"2025-03-12T06:00:00Z", nil},
		{"2025-03-12T05:59:00Z", []string{NightChargeName}},
		{"2025-03-12T22:00:00Z", []string{NightChargeName}},
		{"2025-03-12T21:59:00Z", nil},
		{"2025-03-12T07:00:00Z", []string{PeakChargeName}},
		{"2025-03-12T09:59:00Z", []string{PeakChargeName}},
		{"2025-03-12T10:00:00Z", nil},
		{"2025-03-12T16:00:00Z", []string{PeakChargeName}},
		{"2025-03-12T19:59:00Z", []string{PeakChargeName}},
		{"2025-03-12T20:00:00Z", nil},
		{"2025-03-15T08:00:00Z", nil},
		{"2025-12-25T12:00:00Z", []string{HolidayChargeName}},
		{"2025-12-25T23:00:00Z", []string{NightChargeName, HolidayChargeName}},
		{"2025-07-04T08:00:00Z", []string{PeakChargeName, HolidayChargeName}},
	}

	for _, tt := range tests {
		t.Run(tt.scheduled, func(t *testing.T) {
			f, err := engine.Compute(1, at(t, tt.scheduled), cfg)
			require.NoError(t, err)

			var got []string
			for _, fee := range f.Breakdown.AdditionalFees {
				got = append(got, fee.Name)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompute_ZeroSurchargesOmitted(t *testing.T) {
	engine := NewEngine(time.UTC, nil)
	f, err := engine.Compute(3, at(t, "2025-12-25T02:00:00Z"), flatPricing(5, 2, 0))
	require.NoError(t, err)
	assert.Empty(t, f.Breakdown.AdditionalFees)
}

func TestCompute_UsesEngineLocation(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	cfg := flatPricing(5, 2, 0)
	cfg.AdditionalFees.NightCharge = 3

	// 03:00Z is 22:00 local.
	scheduled := at(t, "2025-03-12T03:00:00Z")

	utc, err := NewEngine(time.UTC, nil).Compute(1, scheduled, cfg)
	require.NoError(t, err)
	local, err := NewEngine(est, nil).Compute(1, scheduled, cfg)
	require.NoError(t, err)

	assert.Len(t, utc.Breakdown.AdditionalFees, 1)
	assert.Len(t, local.Breakdown.AdditionalFees, 1)

	// 12:00Z is 07:00 local on a weekday: peak only in EST.
	cfg.AdditionalFees = model.Surcharges{PeakHourCharge: 2}
	scheduled = at(t, "2025-03-12T12:00:00Z")
	utc, err = NewEngine(time.UTC, nil).Compute(1, scheduled, cfg)
	require.NoError(t, err)
	local, err = NewEngine(est, nil).Compute(1, scheduled, cfg)
	require.NoError(t, err)

	assert.Empty(t, utc.Breakdown.AdditionalFees)
	require.Len(t, local.Breakdown.AdditionalFees, 1)
	assert.Equal(t, PeakChargeName, local.Breakdown.AdditionalFees[0].Name)
}

func TestCompute_EmptyHolidayListDisablesHolidays(t *testing.T) {
	cfg := flatPricing(5, 2, 0)
	cfg.AdditionalFees.HolidayCharge = 4
	f, err := NewEngine(time.UTC, []Holiday{}).Compute(1, at(t, "2025-01-01T12:00:00Z"), cfg)
	require.NoError(t, err)
	assert.Empty(t, f.Breakdown.AdditionalFees)
}

func TestCompute_InvalidInput(t *testing.T) {
	engine := NewEngine(time.UTC, nil)
	cfg := model.DefaultPricingConfig()

	_, err := engine.Compute(-1, at(t, "2025-03-12T14:00:00Z"), cfg)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = engine.Compute(math.NaN(), at(t, "2025-03-12T14:00:00Z"), cfg)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = engine.Compute(1, time.Time{}, cfg)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

// Total is always max(subtotal, minimum) and subtotal is the rounded sum of its items.
func TestCompute_Invariants(t *testing.T) {
	engine := NewEngine(time.UTC, nil)
	cfg := model.PricingConfig{
		BaseFare:       4.75,
		PerMileRate:    2.37,
		MinimumFare:    12.00,
		AdditionalFees: model.Surcharges{NightCharge: 3.33, PeakHourCharge: 1.17, HolidayCharge: 2.01},
	}
	start := at(t, "2025-12-24T00:00:00Z")

	for _, distance := range []float64{0, 0.1, 0.33, 1, 2.5, 3.14159, 7.77, 25, 101.5} {
		for h := 0; h < 72; h++ {
			f, err := engine.Compute(distance, start.Add(time.Duration(h)*time.Hour), cfg)
			require.NoError(t, err)

			sum := f.Breakdown.BaseFare.Amount + f.Breakdown.Distance.Amount
			for _, fee := range f.Breakdown.AdditionalFees {
				sum += fee.Amount
			}
			assert.InDelta(t, Round2(sum), f.Subtotal, 1e-9)
			assert.Equal(t, math.Max(f.Subtotal, cfg.MinimumFare), f.Total)
			assert.Equal(t, f.Total > f.Subtotal, f.MinimumFareApplied)
			assert.Equal(t, Round2(f.Total), f.Total)
		}
	}
}

func TestParseScheduledTime(t *testing.T) {
	ts, err := ParseScheduledTime("2025-03-12T14:00:00-05:00")
	require.NoError(t, err)
	assert.Equal(t, 19, ts.UTC().Hour())

	_, err = ParseScheduledTime("")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = ParseScheduledTime("next tuesday")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.24, Round2(1.236))
	assert.Equal(t, 10.0, Round2(9.999))
	assert.Equal(t, 0.0, Round2(0.004))
}
