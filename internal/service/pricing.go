package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/shiva/medride/internal/model"
	"github.com/shiva/medride/internal/repository"
	"github.com/shiva/medride/pkg/fare"
)

// ─── PricingService ─────────────────────────────────────────

// PricingService supplies the current fare schedule and prices rides with it.
//
// The configuration is read on every computation so an admin update takes
// effect for the next ride without a restart. When nothing has been stored
// yet, model.DefaultPricingConfig is inserted unless a concurrent writer got
// there first.
type PricingService struct {
	store  repository.PricingStore
	engine *fare.Engine
	log    zerolog.Logger
	now    func() time.Time
}

// NewPricingService creates a pricing service.
func NewPricingService(store repository.PricingStore, engine *fare.Engine, log zerolog.Logger) *PricingService {
	return &PricingService{store: store, engine: engine, log: log, now: time.Now}
}

// Current returns the stored configuration, materialising the default on first use.
func (s *PricingService) Current(ctx context.Context) (*model.PricingConfig, error) {
	cfg, err := s.store.Load(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load pricing: %w", err)
	}

	def := model.DefaultPricingConfig()
	def.LastUpdated = s.now().UTC()
	inserted, err := s.store.SaveIfAbsent(ctx, def)
	if err != nil {
		// Pricing still works from the in-process default.
		s.log.Warn().Err(err).Msg("could not persist default pricing config")
		return &def, nil
	}
	if inserted {
		s.log.Info().Msg("materialised default pricing config")
		return &def, nil
	}

	// Someone else stored a configuration after our miss; theirs wins.
	cfg, err = s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("reload pricing: %w", err)
	}
	return cfg, nil
}

// Update replaces the configuration. Admin only.
func (s *PricingService) Update(ctx context.Context, actor Actor, cfg model.PricingConfig) (*model.PricingConfig, error) {
	if actor.Role != model.RoleAdmin {
		return nil, ErrForbidden
	}
	if err := validatePricing(cfg); err != nil {
		return nil, err
	}

	by := actor.ID
	cfg.UpdatedBy = &by
	cfg.LastUpdated = s.now().UTC()
	if err := s.store.Save(ctx, cfg); err != nil {
		return nil, fmt.Errorf("save pricing: %w", err)
	}

	s.log.Info().
		Str("updated_by", by.String()).
		Float64("base_fare", cfg.BaseFare).
		Float64("per_mile_rate", cfg.PerMileRate).
		Float64("minimum_fare", cfg.MinimumFare).
		Msg("pricing config updated")
	return &cfg, nil
}

// Quote computes a fare against the current configuration.
func (s *PricingService) Quote(ctx context.Context, distance float64, scheduled time.Time) (*model.Fare, error) {
	cfg, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	return s.engine.Compute(distance, scheduled, *cfg)
}

// Estimate prices a prospective ride from raw request input.
func (s *PricingService) Estimate(ctx context.Context, distance float64, scheduledTime string) (*model.Fare, error) {
	scheduled, err := fare.ParseScheduledTime(scheduledTime)
	if err != nil {
		return nil, err
	}
	return s.Quote(ctx, distance, scheduled)
}

func validatePricing(c model.PricingConfig) error {
	amounts := []struct {
		field string
		value float64
	}{
		{"baseFare", c.BaseFare},
		{"perMileRate", c.PerMileRate},
		{"minimumFare", c.MinimumFare},
		{"cancellationFee", c.CancellationFee},
		{"additionalFees.nightCharge", c.AdditionalFees.NightCharge},
		{"additionalFees.peakHourCharge", c.AdditionalFees.PeakHourCharge},
		{"additionalFees.holidayCharge", c.AdditionalFees.HolidayCharge},
	}
	for _, a := range amounts {
		if a.value < 0 || math.IsNaN(a.value) || math.IsInf(a.value, 0) {
			return invalid(a.field, "must be a non-negative amount")
		}
	}
	if c.SurgeMultiplierMin < 1 {
		return invalid("surgeMultiplierMin", "must be at least 1")
	}
	if c.SurgeMultiplierMax < c.SurgeMultiplierMin {
		return invalid("surgeMultiplierMax", "must be at least surgeMultiplierMin")
	}
	return nil
}
