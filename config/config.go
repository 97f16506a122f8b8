package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

// Fan-out backends.
const (
	FanoutLocal = "local"
	FanoutRedis = "redis"
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig
	Store      StoreConfig
	Postgres   PostgresConfig
	Mongo      MongoConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Presence   PresenceConfig
	Pricing    PricingConfig
	Dispatch   DispatchConfig
	Reconciler ReconcilerConfig
	Log        LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"SERVER_HOST"`
	Port         int           `mapstructure:"SERVER_PORT"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `mapstructure:"SERVER_IDLE_TIMEOUT"`
}

// StoreConfig selects the ride/identity/pricing backend.
type StoreConfig struct {
	Driver string `mapstructure:"STORE_DRIVER"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host          string `mapstructure:"POSTGRES_HOST"`
	Port          int    `mapstructure:"POSTGRES_PORT"`
	User          string `mapstructure:"POSTGRES_USER"`
	Password      string `mapstructure:"POSTGRES_PASSWORD"`
	DBName        string `mapstructure:"POSTGRES_DB"`
	SSLMode       string `mapstructure:"POSTGRES_SSLMODE"`
	MaxConns      int32  `mapstructure:"POSTGRES_MAX_CONNS"`
	MinConns      int32  `mapstructure:"POSTGRES_MIN_CONNS"`
	MigrationsDir string `mapstructure:"POSTGRES_MIGRATIONS_DIR"`
}

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI      string `mapstructure:"MONGO_URI"`
	Database string `mapstructure:"MONGO_DB"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"REDIS_ENABLED"`
	Host     string `mapstructure:"REDIS_HOST"`
	Port     int    `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
	PoolSize int    `mapstructure:"REDIS_POOL_SIZE"`
}

// AuthConfig holds bearer credential verification settings.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"JWT_SECRET"`
	JWTIssuer string        `mapstructure:"JWT_ISSUER"`
	TokenTTL  time.Duration `mapstructure:"JWT_TOKEN_TTL"`
}

// PresenceConfig holds realtime connection and fan-out settings.
type PresenceConfig struct {
	IdleTimeout   time.Duration `mapstructure:"PRESENCE_IDLE_TIMEOUT"`
	SweepInterval time.Duration `mapstructure:"PRESENCE_SWEEP_INTERVAL"`
	SendBuffer    int           `mapstructure:"PRESENCE_SEND_BUFFER"`
	FanoutBackend string        `mapstructure:"FANOUT_BACKEND"`
	RedisChannel  string        `mapstructure:"FANOUT_REDIS_CHANNEL"`
}

// PricingConfig holds fare engine settings.
type PricingConfig struct {
	Timezone string        `mapstructure:"PRICING_TIMEZONE"`
	CacheTTL time.Duration `mapstructure:"PRICING_CACHE_TTL"`
}

// DispatchConfig holds nearby-ride query settings.
type DispatchConfig struct {
	DefaultRadiusM float64 `mapstructure:"DISPATCH_DEFAULT_RADIUS_M"`
	MaxResults     int     `mapstructure:"DISPATCH_MAX_RESULTS"`
}

// ReconcilerConfig holds orphan sweep settings.
type ReconcilerConfig struct {
	Enabled  bool          `mapstructure:"RECONCILE_ENABLED"`
	Interval time.Duration `mapstructure:"RECONCILE_INTERVAL"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Pretty bool   `mapstructure:"LOG_PRETTY"`
}

// DSN returns the PostgreSQL connection string.
func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode,
	)
}

// Addr returns the Redis address in host:port format.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ServerAddr returns the HTTP listen address in host:port format.
func (s *ServerConfig) ServerAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Location resolves the pricing time zone.
func (p *PricingConfig) Location() (*time.Location, error) {
	return time.LoadLocation(p.Timezone)
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	// ── Defaults ────────────────────────────────────────
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "5s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "10s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	v.SetDefault("STORE_DRIVER", StorePostgres)

	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", 5432)
	v.SetDefault("POSTGRES_USER", "medride")
	v.SetDefault("POSTGRES_PASSWORD", "medride_secret")
	v.SetDefault("POSTGRES_DB", "medride_db")
	v.SetDefault("POSTGRES_SSLMODE", "disable")
	v.SetDefault("POSTGRES_MAX_CONNS", 50)
	v.SetDefault("POSTGRES_MIN_CONNS", 10)
	v.SetDefault("POSTGRES_MIGRATIONS_DIR", "migrations")

	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB", "medride")

	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 100)

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "medride")
	v.SetDefault("JWT_TOKEN_TTL", "24h")

	v.SetDefault("PRESENCE_IDLE_TIMEOUT", "2m")
	v.SetDefault("PRESENCE_SWEEP_INTERVAL", "1m")
	v.SetDefault("PRESENCE_SEND_BUFFER", 64)
	v.SetDefault("FANOUT_BACKEND", FanoutLocal)
	v.SetDefault("FANOUT_REDIS_CHANNEL", "medride:events")

	v.SetDefault("PRICING_TIMEZONE", "UTC")
	v.SetDefault("PRICING_CACHE_TTL", "5m")

	v.SetDefault("DISPATCH_DEFAULT_RADIUS_M", 10000)
	v.SetDefault("DISPATCH_MAX_RESULTS", 100)

	v.SetDefault("RECONCILE_ENABLED", true)
	v.SetDefault("RECONCILE_INTERVAL", "24h")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)

	// Try to read .env file. If it doesn't exist (e.g., inside Docker),
	// env vars injected by docker-compose env_file are used instead.
	_ = v.ReadInConfig()

	cfg := &Config{}

	// ── Server ──────────────────────────────────────────
	cfg.Server = ServerConfig{
		Host:         v.GetString("SERVER_HOST"),
		Port:         v.GetInt("SERVER_PORT"),
		ReadTimeout:  v.GetDuration("SERVER_READ_TIMEOUT"),
		WriteTimeout: v.GetDuration("SERVER_WRITE_TIMEOUT"),
		IdleTimeout:  v.GetDuration("SERVER_IDLE_TIMEOUT"),
	}

	// ── Storage ─────────────────────────────────────────
	cfg.Store = StoreConfig{Driver: strings.ToLower(v.GetString("STORE_DRIVER"))}

	cfg.Postgres = PostgresConfig{
		Host:          v.GetString("POSTGRES_HOST"),
		Port:          v.GetInt("POSTGRES_PORT"),
		User:          v.GetString("POSTGRES_USER"),
		Password:      v.GetString("POSTGRES_PASSWORD"),
		DBName:        v.GetString("POSTGRES_DB"),
		SSLMode:       v.GetString("POSTGRES_SSLMODE"),
		MaxConns:      v.GetInt32("POSTGRES_MAX_CONNS"),
		MinConns:      v.GetInt32("POSTGRES_MIN_CONNS"),
		MigrationsDir: v.GetString("POSTGRES_MIGRATIONS_DIR"),
	}

	cfg.Mongo = MongoConfig{
		URI:      v.GetString("MONGO_URI"),
		Database: v.GetString("MONGO_DB"),
	}

	// ── Redis ───────────────────────────────────────────
	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		PoolSize: v.GetInt("REDIS_POOL_SIZE"),
	}

	// ── Auth ────────────────────────────────────────────
	cfg.Auth = AuthConfig{
		JWTSecret: v.GetString("JWT_SECRET"),
		JWTIssuer: v.GetString("JWT_ISSUER"),
		TokenTTL:  v.GetDuration("JWT_TOKEN_TTL"),
	}

	// ── Realtime ────────────────────────────────────────
	cfg.Presence = PresenceConfig{
		IdleTimeout:   v.GetDuration("PRESENCE_IDLE_TIMEOUT"),
		SweepInterval: v.GetDuration("PRESENCE_SWEEP_INTERVAL"),
		SendBuffer:    v.GetInt("PRESENCE_SEND_BUFFER"),
		FanoutBackend: strings.ToLower(v.GetString("FANOUT_BACKEND")),
		RedisChannel:  v.GetString("FANOUT_REDIS_CHANNEL"),
	}

	// ── Domain ──────────────────────────────────────────
	cfg.Pricing = PricingConfig{
		Timezone: v.GetString("PRICING_TIMEZONE"),
		CacheTTL: v.GetDuration("PRICING_CACHE_TTL"),
	}
	cfg.Dispatch = DispatchConfig{
		DefaultRadiusM: v.GetFloat64("DISPATCH_DEFAULT_RADIUS_M"),
		MaxResults:     v.GetInt("DISPATCH_MAX_RESULTS"),
	}
	cfg.Reconciler = ReconcilerConfig{
		Enabled:  v.GetBool("RECONCILE_ENABLED"),
		Interval: v.GetDuration("RECONCILE_INTERVAL"),
	}

	// ── Logging ─────────────────────────────────────────
	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Pretty: v.GetBool("LOG_PRETTY"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case StorePostgres, StoreMongo, StoreMemory:
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.Store.Driver)
	}

	switch c.Presence.FanoutBackend {
	case FanoutLocal:
	case FanoutRedis:
		if !c.Redis.Enabled {
			return fmt.Errorf("config: FANOUT_BACKEND=redis requires REDIS_ENABLED")
		}
	default:
		return fmt.Errorf("config: unknown FANOUT_BACKEND %q", c.Presence.FanoutBackend)
	}

	if c.Auth.JWTSecret == "" && c.Store.Driver != StoreMemory {
		return fmt.Errorf("config: JWT_SECRET is required")
	}
	if _, err := c.Pricing.Location(); err != nil {
		return fmt.Errorf("config: PRICING_TIMEZONE: %w", err)
	}
	if c.Presence.IdleTimeout <= 0 || c.Presence.SweepInterval <= 0 {
		return fmt.Errorf("config: presence timeouts must be positive")
	}
	if c.Reconciler.Enabled && c.Reconciler.Interval <= 0 {
		return fmt.Errorf("config: RECONCILE_INTERVAL must be positive when RECONCILE_ENABLED")
	}
	return nil
}
