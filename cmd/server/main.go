package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/arturoeanton/bookverse/internal/adapter/auth"
	"github.com/arturoeanton/bookverse/internal/adapter/cache"
	"github.com/arturoeanton/bookverse/internal/adapter/store"
	"github.com/arturoeanton/bookverse/internal/handler"
	"github.com/arturoeanton/bookverse/internal/logging"
	"github.com/arturoeanton/bookverse/internal/middleware"
	"github.com/arturoeanton/bookverse/internal/port"
	"github.com/arturoeanton/bookverse/internal/service"
	"github.com/arturoeanton/bookverse/pkg/config"
)

type dataStore interface {
	port.ProfileStore
	port.LibraryStore
	port.AuditStore
}

func main() {
	// ── Load .env file ───────────────────────────────────────────────────
	_ = godotenv.Load() // silently ignore if .env doesn't exist

	// ── Configuration ────────────────────────────────────────────────────
	cfg := config.Load()
	slog.SetDefault(logging.New(cfg))

	slog.Info("starting Bookverse",
		"port", cfg.Port,
		"store", cfg.StoreDriver,
		"auth_url", cfg.AuthURL,
		"oidc_enabled", cfg.OIDCEnabled(),
	)

	if err := run(cfg); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
	slog.Info("stopped")
}

// run owns every resource it opens; deferred closes run on both the
// failure and the signal path.
func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Storage ──────────────────────────────────────────────────────────
	var db dataStore
	switch cfg.StoreDriver {
	case "memory":
		db = store.NewMemoryStore(store.SeedBooks()...)
	default:
		if cfg.RunMigrations {
			if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
		}
		pgStore, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pgStore.Close()
		db = pgStore
	}

	// ── Session cache ────────────────────────────────────────────────────
	var sessionCache port.SessionCache
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisSessionCache(cfg.RedisURL, cfg.SessionCacheKey, cfg.SessionTTL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer redisCache.Close()
		sessionCache = redisCache
	} else {
		sessionCache = cache.NewMemorySessionCache(nil)
	}

	// ── Identity provider ────────────────────────────────────────────────
	provider := auth.NewGoTrueProvider(cfg.AuthURL, cfg.AuthAPIKey, sessionCache,
		auth.WithClaimsChecker(auth.NewClaimsChecker(cfg.AuthJWTSecret)),
	)

	refreshCtx, stopRefresh := context.WithCancel(ctx)
	defer stopRefresh()
	go provider.Run(refreshCtx, cfg.AuthRefreshInterval, cfg.AuthRefreshMargin)

	// ── Services ─────────────────────────────────────────────────────────
	reconciler := service.NewProfileReconciler(db)
	gate := service.NewSessionGate(provider, reconciler)
	defer func() {
		stopRefresh()
		if err := gate.Close(); err != nil {
			slog.Error("failed to close session gate", "error", err)
		}
	}()
	if err := gate.Start(ctx); err != nil {
		return fmt.Errorf("start session gate: %w", err)
	}

	authService := service.NewAuthService(provider, reconciler, db)
	libraryService := service.NewLibraryService(db, reconciler, db)

	// ── Fiber App ────────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:     cfg.AppName,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: /auth/events is a long-lived stream.
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: true,
	}))
	app.Use(middleware.AuditMiddleware(db, gate))

	api := app.Group("/api/v1")

	// ── Public Routes ────────────────────────────────────────────────────
	api.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"app":     cfg.AppName,
			"version": "1.0.0",
			"auth":    gate.State().Status,
		})
	})

	authHandler := handler.NewAuthHandler(authService, gate, cfg.FrontendURL)
	if cfg.OIDCEnabled() {
		oidcClient, err := auth.NewOIDCClient(ctx, cfg.OIDCProvider, cfg.OIDCIssuer,
			cfg.OIDCClientID, cfg.OIDCClientSecret, cfg.OIDCRedirectURL)
		if err != nil {
			return fmt.Errorf("initialize oidc: %w", err)
		}
		authHandler.WithOIDC(oidcClient, provider, auth.NewState)
	}
	authHandler.Register(api)

	handler.NewStreamHandler(gate).Register(api)

	libraryHandler := handler.NewLibraryHandler(libraryService)
	libraryHandler.RegisterPublic(api)

	// ── Protected Routes ─────────────────────────────────────────────────
	protected := api.Group("", middleware.RequireSession(gate))

	handler.NewProfileHandler(reconciler, db).Register(protected)
	libraryHandler.Register(protected)
	handler.NewAuditHandler(db).Register(protected)

	// ── Start ────────────────────────────────────────────────────────────
	go func() {
		<-ctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			slog.Error("fiber shutdown failed", "error", err)
		}
	}()

	slog.Info("Fiber listening", "port", cfg.Port)
	if err := app.Listen(":"+cfg.Port, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}
