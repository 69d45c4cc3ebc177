// Copyright (c) 2026 Ethio Transit Systems. All rights reserved.
// Author: platform@ethiotransit.et

/*
Package api wires together the HTTP router, middleware chain, and all
domain handlers into a runnable [http.Server].

Architecture:

  - This package is the topmost Presentation layer boundary.
  - It acts as the central composition root for the HTTP transport framework (chi router).
  - Only this package and cmd/api are allowed to import net/http server primitives.
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ethio-transit/bsms-api/internal/auth"
	"github.com/ethio-transit/bsms-api/internal/identity"
	"github.com/ethio-transit/bsms-api/internal/platform/config"
	"github.com/ethio-transit/bsms-api/internal/platform/constants"
	"github.com/ethio-transit/bsms-api/internal/platform/middleware"
)

// # Server Definitions

// Server wraps the chi router and the [http.Server].
//
// It is constructed once in main.go with all dependencies injected.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *slog.Logger
}

// # Handler Registry

// Handlers groups all domain-specific HTTP handler sets.
//
// # Usage
//
// New domains add a field here — no other change to server.go is required.
type Handlers struct {
	// Liveness is the /health handler — always returns 200 if process is alive.
	Liveness http.HandlerFunc

	// Readiness is the /ready handler — returns 200 when all deps are healthy.
	Readiness http.HandlerFunc

	// Auth handles login, OTP, and password lifecycle routes.
	Auth *auth.Handler

	// Identity handles account management and the verification probe.
	Identity *identity.Handler
}

// Guards bundles the route guards the domain routers need.
//
// The guards are built in main.go, where the gate's dependencies (token
// service, repositories, blacklist) live; domain packages receive them as
// plain middlewares and stay decoupled from the middleware package.
type Guards struct {
	// RequireAuth is the full authentication gate.
	RequireAuth func(http.Handler) http.Handler

	// Permission builds a guard enforcing the named permission.
	Permission func(permission string) func(http.Handler) http.Handler

	// LoginQuota applies the per-IP daily quota to credential endpoints.
	LoginQuota func(http.Handler) http.Handler
}

// # Server Initialization

// NewServer constructs the chi router with the full middleware chain and
// registers all route groups.
func NewServer(context context.Context, cfg *config.Config, log *slog.Logger, guards Guards, h Handlers) *Server {
	r := chi.NewRouter()

	// # Middleware Chain
	// Global middleware applied in order of execution.
	r.Use(middleware.RequestID())
	r.Use(middleware.StructuredLogger(log))
	r.Use(chimw.Timeout(constants.GlobalRequestTimeout))
	r.Use(middleware.RateLimit(context))
	r.Use(middleware.PanicRecovery(log))
	r.Use(middleware.CORS(cfg))
	r.Use(chimw.CleanPath)

	// # Infrastructure Endpoints
	// Unauthenticated health probes for container orchestration.
	r.Get("/health", h.Liveness)
	r.Get("/ready", h.Readiness)

	// # Application API
	// Domain-specific route groups mounted under versioned prefix.
	r.Route("/api/v1", func(api chi.Router) {
		api.Mount("/auth", h.Auth.Routes(
			auth.Guard(guards.RequireAuth),
			auth.Guard(guards.LoginQuota),
		))
		api.Mount("/users", h.Identity.Routes(
			identity.Guard(guards.RequireAuth),
			func(permission string) identity.Guard {
				return identity.Guard(guards.Permission(permission))
			},
			identity.Guard(guards.LoginQuota),
		))
	})

	return &Server{
		router: r,
		log:    log,
		httpServer: &http.Server{
			Addr:              ":" + cfg.ServerPort,
			Handler:           r,
			ReadTimeout:       constants.DefaultReadTimeout,
			WriteTimeout:      constants.DefaultWriteTimeout,
			IdleTimeout:       constants.DefaultIdleTimeout,
			ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
		},
	}
}

// # Server Lifecycle

// ListenAndServe starts the HTTP server.
//
// It blocks until the server is closed or an error occurs.
func (s *Server) ListenAndServe() error {
	s.log.Info("server starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(timeout time.Duration) error {
	context, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(context)
}
