package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/georgemunganga/printa-tiers/internal/config"
	"github.com/georgemunganga/printa-tiers/internal/modules/auth"
	"github.com/georgemunganga/printa-tiers/internal/modules/billing"
	"github.com/georgemunganga/printa-tiers/internal/modules/tier"
	"github.com/georgemunganga/printa-tiers/internal/modules/user"
	"github.com/georgemunganga/printa-tiers/internal/platform/database"
	"github.com/georgemunganga/printa-tiers/internal/platform/httplog"
	"github.com/georgemunganga/printa-tiers/internal/platform/logger"
	"github.com/georgemunganga/printa-tiers/internal/platform/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns)
	if err != nil {
		log.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}
	log.Info("connected to the database")

	m := metrics.New()

	// ── Router ──────────────────────────────────────────────
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(httplog.Middleware(log))
	router.Use(m.Middleware)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	router.Handle("/metrics", m.Handler())

	// ── Staff & Sessions ────────────────────────────────────
	userRepo := user.NewPostgresRepository(db)
	userService := user.NewService(userRepo)
	if cfg.Owner.Email != "" {
		if _, err := userService.EnsureOwner(ctx, cfg.Owner.Email, cfg.Owner.Password); err != nil {
			log.Fatal("seeding owner failed", zap.Error(err))
		}
	}

	authService := auth.NewService(userRepo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	auth.NewHandler(authService, log).RegisterRoutes(router)

	requireStaff := auth.RequireStaff(authService)
	requireManager := auth.RequireRole(string(user.RoleOwner), string(user.RoleAdministrator))
	user.NewHandler(userService, func(next http.Handler) http.Handler {
		return requireStaff(requireManager(next))
	}).RegisterRoutes(router)

	// ── Tiers ───────────────────────────────────────────────
	gateway, err := billing.NewRegistry().Get(billing.Provider(cfg.Billing.Provider))
	if err != nil {
		log.Fatal("billing gateway", zap.Error(err))
	}

	tierRepo := tier.NewPostgresRepository(db)
	if cfg.CacheEnabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn("redis unavailable, tier cache disabled", zap.Error(err))
		} else {
			tierRepo = tier.NewCachedRepository(tierRepo, client, cfg.Redis.TTL, log)
		}
	}

	output := tier.NewOutput(func(operation string) {
		log.Debug("serialize", zap.String("operation", operation))
		m.IncSerialization(operation)
	})
	tierService := tier.NewService(tierRepo, gateway)
	tier.NewHandler(tierService, output, tier.Guards{
		Staff:  requireStaff,
		Writer: auth.RequireRole(string(user.RoleOwner), string(user.RoleAdministrator)),
	}, log).RegisterRoutes(router)

	// ── Start Server ─────────────────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("tiers API server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
