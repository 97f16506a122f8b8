package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/shiva/medride/internal/model"
	"github.com/shiva/medride/pkg/cache"
)

// PricingStore persists the singleton pricing configuration.
// Load returns ErrNotFound when nothing has been stored yet. SaveIfAbsent
// writes cfg only when no configuration exists and reports whether it did.
type PricingStore interface {
	Load(ctx context.Context) (*model.PricingConfig, error)
	Save(ctx context.Context, cfg model.PricingConfig) error
	SaveIfAbsent(ctx context.Context, cfg model.PricingConfig) (bool, error)
}

// PricingRepository stores the pricing configuration in the single-row pricing_config table.
type PricingRepository struct {
	pool querier
}

// NewPricingRepository creates a new pricing repository.
func NewPricingRepository(pool *pgxpool.Pool) *PricingRepository {
	return &PricingRepository{pool: pool}
}

// Load reads the current configuration.
func (r *PricingRepository) Load(ctx context.Context) (*model.PricingConfig, error) {
	c := &model.PricingConfig{}
	err := r.pool.QueryRow(ctx, `
		SELECT base_fare, per_mile_rate, minimum_fare, cancellation_fee,
		       surge_multiplier_min, surge_multiplier_max,
		       night_charge, peak_hour_charge, holiday_charge,
		       last_updated, updated_by
		FROM pricing_config
		WHERE id = 1`,
	).Scan(
		&c.BaseFare, &c.PerMileRate, &c.MinimumFare, &c.CancellationFee,
		&c.SurgeMultiplierMin, &c.SurgeMultiplierMax,
		&c.AdditionalFees.NightCharge, &c.AdditionalFees.PeakHourCharge, &c.AdditionalFees.HolidayCharge,
		&c.LastUpdated, &c.UpdatedBy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load pricing config: %w", err)
	}
	return c, nil
}

// Save upserts the singleton row.
func (r *PricingRepository) Save(ctx context.Context, c model.PricingConfig) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO pricing_config (
			id, base_fare, per_mile_rate, minimum_fare, cancellation_fee,
			surge_multiplier_min, surge_multiplier_max,
			night_charge, peak_hour_charge, holiday_charge,
			last_updated, updated_by
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			base_fare            = EXCLUDED.base_fare,
			per_mile_rate        = EXCLUDED.per_mile_rate,
			minimum_fare         = EXCLUDED.minimum_fare,
			cancellation_fee     = EXCLUDED.cancellation_fee,
			surge_multiplier_min = EXCLUDED.surge_multiplier_min,
			surge_multiplier_max = EXCLUDED.surge_multiplier_max,
			night_charge         = EXCLUDED.night_charge,
			peak_hour_charge     = EXCLUDED.peak_hour_charge,
			holiday_charge       = EXCLUDED.holiday_charge,
			last_updated         = EXCLUDED.last_updated,
			updated_by           = EXCLUDED.updated_by`,
		c.BaseFare, c.PerMileRate, c.MinimumFare, c.CancellationFee,
		c.SurgeMultiplierMin, c.SurgeMultiplierMax,
		c.AdditionalFees.NightCharge, c.AdditionalFees.PeakHourCharge, c.AdditionalFees.HolidayCharge,
		c.LastUpdated, c.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("save pricing config: %w", err)
	}
	return nil
}

// SaveIfAbsent inserts the singleton row unless one already exists.
func (r *PricingRepository) SaveIfAbsent(ctx context.Context, c model.PricingConfig) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO pricing_config (
			id, base_fare, per_mile_rate, minimum_fare, cancellation_fee,
			surge_multiplier_min, surge_multiplier_max,
			night_charge, peak_hour_charge, holiday_charge,
			last_updated, updated_by
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		c.BaseFare, c.PerMileRate, c.MinimumFare, c.CancellationFee,
		c.SurgeMultiplierMin, c.SurgeMultiplierMax,
		c.AdditionalFees.NightCharge, c.AdditionalFees.PeakHourCharge, c.AdditionalFees.HolidayCharge,
		c.LastUpdated, c.UpdatedBy,
	)
	if err != nil {
		return false, fmt.Errorf("insert default pricing config: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ─── Redis-backed fast path ─────────────────────────────────

const redisPricingKey = "pricing:config"

// CachedPricingStore fronts a PricingStore with a Redis copy.
//
// Strategy:
//  1. Try Redis first (fast path, <1ms).
//  2. On miss, load from the backing store, then cache with a TTL.
//  3. Save writes through and deletes the cached copy.
//
// Redis failures degrade to the backing store; they are logged, never returned.
type CachedPricingStore struct {
	next  PricingStore
	redis *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCachedPricingStore wraps next with a Redis cache.
func NewCachedPricingStore(next PricingStore, client *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedPricingStore {
	return &CachedPricingStore{next: next, redis: client, ttl: ttl, log: log}
}

// Load returns the cached configuration or falls through to the backing store.
func (c *CachedPricingStore) Load(ctx context.Context) (*model.PricingConfig, error) {
	var cached model.PricingConfig
	err := cache.GetJSON(ctx, c.redis, redisPricingKey, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		c.log.Warn().Err(err).Msg("pricing cache read failed")
	}

	cfg, err := c.next.Load(ctx)
	if err != nil {
		return nil, err
	}

	if err := cache.SetJSON(ctx, c.redis, redisPricingKey, cfg, c.ttl); err != nil {
		c.log.Warn().Err(err).Msg("pricing cache write failed")
	}
	return cfg, nil
}

// Save persists cfg and invalidates the cached copy. A failed invalidation is
// logged; the cached copy then expires with its TTL.
func (c *CachedPricingStore) Save(ctx context.Context, cfg model.PricingConfig) error {
	if err := c.next.Save(ctx, cfg); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// SaveIfAbsent writes through to the backing store.
func (c *CachedPricingStore) SaveIfAbsent(ctx context.Context, cfg model.PricingConfig) (bool, error) {
	inserted, err := c.next.SaveIfAbsent(ctx, cfg)
	if err != nil {
		return false, err
	}
	if inserted {
		c.invalidate(ctx)
	}
	return inserted, nil
}

func (c *CachedPricingStore) invalidate(ctx context.Context) {
	if err := c.Invalidate(ctx); err != nil {
		c.log.Warn().Err(err).Msg("pricing cache invalidation failed")
	}
}

// Invalidate removes the cached copy so the next Load reads the backing store.
func (c *CachedPricingStore) Invalidate(ctx context.Context) error {
	if err := cache.Delete(ctx, c.redis, redisPricingKey); err != nil {
		return fmt.Errorf("invalidate pricing cache: %w", err)
	}
	return nil
}
