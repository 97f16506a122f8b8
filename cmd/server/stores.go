package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/shiva/medride/config"
	"github.com/shiva/medride/internal/auth"
	"github.com/shiva/medride/internal/handler"
	"github.com/shiva/medride/internal/model"
	"github.com/shiva/medride/internal/repository"
	"github.com/shiva/medride/internal/service"
	"github.com/shiva/medride/pkg/cache"
	"github.com/shiva/medride/pkg/db"
)

// stores is the backend selected by STORE_DRIVER plus the optional Redis client.
type stores struct {
	rides   service.RideStore
	users   service.IdentityLookup
	pricing repository.PricingStore
	checks  map[string]handler.HealthCheck

	pg        *pgxpool.Pool
	mongo     *mongo.Database
	redis     *redis.Client
	directory *repository.MemoryUserDirectory
}

func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*stores, error) {
	st := &stores{checks: make(map[string]handler.HealthCheck)}

	switch cfg.Store.Driver {
	case config.StorePostgres:
		pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		st.pg = pool
		st.rides = repository.NewRideRepository(pool)
		st.users = repository.NewUserRepository(pool)
		st.pricing = repository.NewPricingRepository(pool)
		st.checks["postgres"] = func(ctx context.Context) error { return db.HealthCheck(ctx, pool) }

	case config.StoreMongo:
		database, err := db.NewMongoDatabase(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		st.mongo = database
		if err := repository.EnsureMongoIndexes(ctx, database); err != nil {
			st.Close()
			return nil, err
		}
		st.rides = repository.NewMongoRideRepository(database)
		st.users = repository.NewMongoUserRepository(database)
		st.pricing = repository.NewMongoPricingRepository(database)
		st.checks["mongo"] = func(ctx context.Context) error { return db.MongoHealthCheck(ctx, database) }

	case config.StoreMemory:
		st.directory = repository.NewMemoryUserDirectory()
		st.rides = repository.NewMemoryRideStore()
		st.users = st.directory
		st.pricing = repository.NewMemoryPricingStore()

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			st.Close()
			return nil, err
		}
		st.redis = client
		st.pricing = repository.NewCachedPricingStore(st.pricing, client, cfg.Pricing.CacheTTL, log.With().Str("component", "pricing_cache").Logger())
		st.checks["redis"] = func(ctx context.Context) error { return cache.HealthCheck(ctx, client) }
	}

	return st, nil
}

func (s *stores) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.mongo != nil {
		_ = s.mongo.Client().Disconnect(context.Background())
	}
	if s.pg != nil {
		s.pg.Close()
	}
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := crypto_rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

// seedDemoUsers populates the in-memory directory with one user per role and
// logs a bearer token for each.
func seedDemoUsers(dir *repository.MemoryUserDirectory, issuer *auth.Issuer, log zerolog.Logger) {
	for _, role := range []model.Role{model.RolePatient, model.RoleDriver, model.RoleFacility, model.RoleAdmin} {
		u := model.User{
			ID:        uuid.New(),
			Email:     string(role) + "@medride.local",
			FirstName: "Demo",
			LastName:  string(role),
			Role:      role,
		}
		dir.Put(u)

		tok, err := issuer.Sign(u)
		if err != nil {
			log.Error().Err(err).Str("role", string(role)).Msg("failed to sign demo token")
			continue
		}
		log.Info().Str("role", string(role)).Str("user_id", u.ID.String()).Str("token", tok).Msg("demo user")
	}
}
