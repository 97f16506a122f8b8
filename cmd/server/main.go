package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shiva/medride/config"
	"github.com/shiva/medride/internal/auth"
	"github.com/shiva/medride/internal/handler"
	"github.com/shiva/medride/internal/middleware"
	"github.com/shiva/medride/internal/model"
	"github.com/shiva/medride/internal/realtime"
	"github.com/shiva/medride/internal/repository"
	"github.com/shiva/medride/internal/service"
	"github.com/shiva/medride/pkg/db"
	"github.com/shiva/medride/pkg/fare"
	"github.com/shiva/medride/pkg/logging"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "medride",
		Short: "Non-emergency medical transport ride service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")
			return runServer(migrate)
		},
	}
	cmd.Flags().Bool("migrate", false, "Apply pending migrations before serving (postgres only)")
	return cmd
}

func runServer(migrate bool) error {
	// ── Load configuration ──────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Pretty)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Connect to storage ──────────────────────────────
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()
	log.Info().Str("driver", cfg.Store.Driver).Bool("redis", st.redis != nil).Msg("storage connected")

	if st.pg != nil {
		if migrate {
			applied, err := db.NewMigrator(st.pg, cfg.Postgres.MigrationsDir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info().Strs("applied", applied).Msg("migrations applied")
		}
		if v, err := db.PostGISVersion(ctx, st.pg); err != nil {
			log.Warn().Err(err).Msg("nearby ride search will fail until postgis is installed")
		} else {
			log.Info().Str("postgis", v).Msg("postgis available")
		}
	}

	// ── Initialize layers ───────────────────────────────
	loc, err := cfg.Pricing.Location()
	if err != nil {
		return err
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = randomSecret()
		log.Warn().Msg("JWT_SECRET unset; using an ephemeral secret for this process")
	}
	issuer := auth.NewIssuer(secret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)

	if st.directory != nil {
		seedDemoUsers(st.directory, issuer, log)
	}

	hub := realtime.NewHub(cfg.Presence.SendBuffer, logging.Component(log, "hub"))

	var pub realtime.Publisher = hub
	if cfg.Presence.FanoutBackend == config.FanoutRedis {
		bridge := realtime.NewRedisBridge(st.redis, cfg.Presence.RedisChannel, hub, logging.Component(log, "bridge"))
		sub, err := bridge.Subscribe(ctx)
		if err != nil {
			return err
		}
		go bridge.Run(ctx, sub)
		pub = bridge
	}
	notifier := realtime.NewBroadcaster(pub, logging.Component(log, "broadcast"))

	engine := fare.NewEngine(loc, nil)
	pricingSvc := service.NewPricingService(st.pricing, engine, logging.Component(log, "pricing"))
	rideSvc := service.NewRideService(st.rides, st.users, pricingSvc, notifier, logging.Component(log, "rides"))
	dispatchSvc := service.NewDispatchService(st.rides, cfg.Dispatch.DefaultRadiusM, cfg.Dispatch.MaxResults)
	reconciler := service.NewReconciler(st.rides, st.users, logging.Component(log, "reconciler"))
	authn := auth.NewAuthenticator(issuer, st.users)

	// ── Setup router ────────────────────────────────────
	router := handler.NewRouter(handler.Routes{
		Rides:        handler.NewRideHandler(rideSvc, dispatchSvc, log),
		Pricing:      handler.NewPricingHandler(pricingSvc, log),
		Admin:        handler.NewAdminHandler(rideSvc, reconciler, log),
		Health:       handler.Health(st.checks, hub.ConnCount),
		Socket:       realtime.NewHandler(hub, authn, rideSvc, logging.Component(log, "socket")),
		Authenticate: middleware.Authenticate(authn, log),
	})

	// Outside the router so preflight requests are answered too.
	var h http.Handler = middleware.CORS(router)
	h = middleware.RequestLogger(log)(h)
	h = middleware.Recoverer(log)(h)

	// ── Background workers ──────────────────────────────
	go hub.Run(ctx, cfg.Presence.SweepInterval, cfg.Presence.IdleTimeout)
	if cfg.Reconciler.Enabled {
		go reconciler.Run(ctx, cfg.Reconciler.Interval)
	}

	// ── Start HTTP server ───────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── Graceful shutdown ───────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down server")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Websocket connections are hijacked and not tracked by Shutdown.
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	cancel()

	log.Info().Msg("server gracefully stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.Postgres.MigrationsDir
			}
			log := logging.New(cfg.Log.Level, cfg.Log.Pretty)
			ctx := context.Background()

			switch cfg.Store.Driver {
			case config.StorePostgres:
				pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
				if err != nil {
					return err
				}
				defer pool.Close()

				applied, err := db.NewMigrator(pool, dir).Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Printf("Applied %d migration(s) successfully.\n", len(applied))
				for _, name := range applied {
					fmt.Printf("  %s\n", name)
				}
				return nil

			case config.StoreMongo:
				st, err := openStores(ctx, cfg, log)
				if err != nil {
					return err
				}
				defer st.Close()
				fmt.Println("Mongo indexes are up to date.")
				return nil

			default:
				return fmt.Errorf("migrate: nothing to do for store %q", cfg.Store.Driver)
			}
		},
	}
	cmd.Flags().String("dir", "", "Path to migrations directory (defaults to POSTGRES_MIGRATIONS_DIR)")
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete rides whose patient no longer exists and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logging.New(cfg.Log.Level, cfg.Log.Pretty)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			st, err := openStores(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer st.Close()

			res, err := service.NewReconciler(st.rides, st.users, logging.Component(log, "reconciler")).Sweep(ctx)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an existing user",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawID, _ := cmd.Flags().GetString("user")
			rawRole, _ := cmd.Flags().GetString("role")

			id, err := uuid.Parse(rawID)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}
			role := model.Role(rawRole)
			if !role.Valid() {
				return fmt.Errorf("invalid --role %q", rawRole)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("token: JWT_SECRET is required")
			}

			tok, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL).
				Sign(model.User{ID: id, Role: role})
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().String("user", "", "User id (uuid)")
	cmd.Flags().String("role", string(model.RolePatient), "patient, driver, facility or admin")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// Compile-time checks for the adapters wired above.
var (
	_ service.Notifier        = (*realtime.Broadcaster)(nil)
	_ repository.PricingStore = (*repository.CachedPricingStore)(nil)
	_ realtime.Authenticator  = (*auth.Authenticator)(nil)
	_ realtime.RideViewer     = (*service.RideService)(nil)
	_ realtime.Publisher      = (*realtime.RedisBridge)(nil)
	_ service.IdentityLookup  = (*repository.MemoryUserDirectory)(nil)
)
