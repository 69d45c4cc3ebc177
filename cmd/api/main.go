// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

// Command api is the entry point for the BSMS HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Seed the permission catalogue and role groups.
//  7. Wire domain services, guards, and HTTP handlers.
//  8. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethio-transit/bsms-api/internal/api"
	"github.com/ethio-transit/bsms-api/internal/auth"
	"github.com/ethio-transit/bsms-api/internal/identity"
	"github.com/ethio-transit/bsms-api/internal/notify"
	"github.com/ethio-transit/bsms-api/internal/platform/config"
	"github.com/ethio-transit/bsms-api/internal/platform/constants"
	"github.com/ethio-transit/bsms-api/internal/platform/middleware"
	"github.com/ethio-transit/bsms-api/internal/platform/migration"
	pgstore "github.com/ethio-transit/bsms-api/internal/platform/postgres"
	redisstore "github.com/ethio-transit/bsms-api/internal/platform/redis"
	"github.com/ethio-transit/bsms-api/internal/platform/sec"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("[BSMS] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// Application-lifetime context for background workers (rate limiter
	// cleanup, blacklist sweeper). Cancelled on shutdown.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Token Service ──────────────────────────────────────────────────
	tokenService, err := sec.NewTokenService(
		cfg.JWTSecret,
		constants.AppName,
		time.Duration(cfg.AccessTokenMinutes)*time.Minute,
		constants.ResetTokenLifetime,
	)
	must(log, err, "initialize token service")

	// ── 7. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// ── 8. Domain Wiring ──────────────────────────────────────────────────
	userRepository := identity.NewUserRepository(pool)
	permissionRepository := identity.NewPermissionRepository(pool)
	sessionRepository := auth.NewSessionRepository(pool)

	// Permission catalogue and role groups must exist before the first
	// account is created; seeding is idempotent.
	must(log, identity.SeedPermissions(startupCtx, permissionRepository, log), "seed permissions")

	var sender notify.Sender
	if cfg.IsProduction() {
		sender = notify.NewSMSSender(cfg.SMSGatewayURL, cfg.SMSToken, cfg.SMSSender)
	} else {
		sender = notify.NewLogSender(log)
	}

	blacklist := auth.NewBlacklist()
	blacklist.StartSweeper(appCtx, log)

	loginQuota := auth.NewLoginQuota(rdb, cfg.LoginAttemptsPerDay)

	identityService := identity.NewService(userRepository, permissionRepository)
	authService := auth.NewService(userRepository, sessionRepository, tokenService, sender, cfg.IsDevelopment())

	identityHandler := identity.NewHandler(identityService)
	authHandler := auth.NewHandler(authService)

	// ── 9. Route Guards ───────────────────────────────────────────────────
	guards := api.Guards{
		RequireAuth: middleware.AuthGate(tokenService, userRepository, sessionRepository, blacklist),
		Permission: func(permission string) func(http.Handler) http.Handler {
			return middleware.RequirePermission(identityService, permission)
		},
		LoginQuota: middleware.LoginRateLimit(loginQuota),
	}

	// ── 10. HTTP Server ───────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Auth:      authHandler,
		Identity:  identityHandler,
	}

	server := api.NewServer(appCtx, cfg, log, guards, handlers)

	// ── 11. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Stop background workers before draining in-flight requests.
	appCancel()

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
