package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/attendance-engine/internal/config"
	"github.com/kozaktomas/attendance-engine/internal/constants"
	"github.com/kozaktomas/attendance-engine/internal/logger"
	"github.com/kozaktomas/attendance-engine/internal/metrics"
	"github.com/kozaktomas/attendance-engine/internal/ratelimit"
	"github.com/kozaktomas/attendance-engine/internal/web/handlers"
	"github.com/kozaktomas/attendance-engine/internal/web/middleware"
)

// Deps are the services the routes expose.
type Deps struct {
	Attendance handlers.AttendanceService
	Gateway    handlers.GatewayStatusReader // nil when no device is configured
	Metrics    *metrics.Manager
	Limiter    *ratelimit.Limiter // nil disables rate limiting
}

// Server represents the web server
type Server struct {
	config     *config.Config
	deps       Deps
	router     *chi.Mux
	httpServer *http.Server
	log        logger.Logger
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, deps Deps) *Server {
	r := chi.NewRouter()

	s := &Server{
		config: cfg,
		deps:   deps,
		router: r,
		log:    logger.Named("web"),
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.identifyTimeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) requestTimeout() time.Duration {
	if t := s.config.Server.RequestTimeout; t > 0 {
		return t
	}
	return constants.DefaultRequestTimeout
}

// identifyTimeout bounds a whole identification. The aggregator stops at
// this deadline instead of scoring the rest on a degraded tier.
func (s *Server) identifyTimeout() time.Duration {
	if t := s.config.Server.IdentifyTimeout; t > 0 {
		return t
	}
	return constants.DefaultIdentifyTimeout
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info(context.Background(), "starting web server", logger.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info(ctx, "shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
