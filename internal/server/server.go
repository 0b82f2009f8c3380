package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/toolnest/toolnest/internal/handler"
	"github.com/toolnest/toolnest/internal/metrics"
	"github.com/toolnest/toolnest/internal/openapi"
	"github.com/toolnest/toolnest/internal/ratelimit"
	"github.com/toolnest/toolnest/internal/server/middleware"
	"github.com/toolnest/toolnest/internal/service"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	CORSMethods     []string
	MaxBodySize     int64 // bytes
	GlobalRPM       int   // per-IP cap across all routes; 0 disables
	APIKeyHeader    string
	Version         string
	SweepInterval   time.Duration
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		CORSMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		MaxBodySize:     6 * 1024 * 1024, // 6MB
		APIKeyHeader:    middleware.DefaultAPIKeyHeader,
		Version:         "dev",
		SweepInterval:   time.Minute,
	}
}

// Deps are the services the routes are wired to.
type Deps struct {
	Store   handler.Pinger
	Users   *service.UserService
	Keys    *service.KeyManager
	Auth    *service.Authenticator
	Usage   *service.UsageRecorder
	Tools   handler.AITools
	Limiter middleware.Checker
	Rules   *ratelimit.Rules
	Sweeper ratelimit.Sweeper // optional; expired windows are kept if nil
}

// Server is the top-level HTTP server for toolnest. It owns the Chi router
// and the background usage and rate limit housekeeping.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = middleware.DefaultAPIKeyHeader
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   s.cfg.CORSMethods,
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", s.cfg.APIKeyHeader, "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if s.cfg.MaxBodySize > 0 {
		r.Use(chimw.RequestSize(s.cfg.MaxBodySize))
	}
	if s.cfg.GlobalRPM > 0 {
		r.Use(middleware.RateLimit(s.cfg.GlobalRPM))
	}
	r.Use(chimw.Compress(5))

	limit := func(name string) func(http.Handler) http.Handler {
		return middleware.FixedWindow(s.deps.Limiter, s.deps.Rules, name, s.logger)
	}
	authn := middleware.Authenticate(s.deps.Auth, s.cfg.APIKeyHeader)

	// --- Health checks (no auth required) ---
	health := handler.NewHealthHandler(s.deps.Store, s.logger)
	r.With(limit("health")).Get("/healthz", health.Healthz)
	r.With(limit("health")).Get("/readyz", health.Readyz)

	// --- Metrics and API description (no auth required) ---
	r.Handle("/metrics", metrics.Handler())
	r.Get("/openapi.json", handler.NewOpenAPIHandler(openapi.Options{
		Version:      s.cfg.Version,
		APIKeyHeader: s.cfg.APIKeyHeader,
	}).ServeSpec)

	// --- API routes ---
	// The rate limit rule runs first, then credentials are resolved.
	r.Route("/api/v1", func(r chi.Router) {
		authH := handler.NewAuthHandler(s.deps.Users)
		keyH := handler.NewAPIKeyHandler(s.deps.Keys)
		toolsH := handler.NewAIToolsHandler(s.deps.Tools)

		// Account and key management require a user session.
		session := func(rule string) chi.Router {
			return r.With(limit(rule), authn, middleware.RequireUser())
		}
		// AI tools accept either credential; key calls are metered.
		tool := func(rule string) chi.Router {
			return r.With(limit(rule), authn, middleware.RecordUsage(s.deps.Usage))
		}

		r.With(limit("register")).Post("/auth/register", authH.Register)
		r.With(limit("login")).Post("/auth/login", authH.Login)
		session("default").Get("/auth/me", authH.Me)

		session("create_key").Post("/api-keys", keyH.Create)
		session("list_keys").Get("/api-keys", keyH.List)
		session("revoke_key").Delete("/api-keys/{keyID}", keyH.Revoke)
		session("key_usage").Get("/api-keys/{keyID}/usage", keyH.Usage)

		tool("summarize").Post("/ai-tools/summarize", toolsH.Summarize)
		tool("paraphrase").Post("/ai-tools/paraphrase", toolsH.Paraphrase)
		tool("image_to_text").Post("/ai-tools/image-to-text", toolsH.ImageToText)
	})

	s.router = r
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before flushing pending usage records.
func (s *Server) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second, // upstream calls plus retries
		IdleTimeout:  120 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		if s.deps.Sweeper != nil {
			ratelimit.RunSweeper(sweepCtx, s.deps.Sweeper, s.cfg.SweepInterval, s.logger)
		}
	}()

	// Start server in background goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	var listenErr error
	select {
	case err := <-errCh:
		listenErr = fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	stopSweep()
	<-sweepDone

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if listenErr == nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
	}

	if s.deps.Keys != nil {
		s.deps.Keys.Wait()
	}
	if s.deps.Usage != nil {
		if err := s.deps.Usage.Close(shutdownCtx); err != nil {
			s.logger.Warn("usage recorder did not drain", "error", err)
		}
	}
	s.logger.Info("server stopped")
	return listenErr
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
