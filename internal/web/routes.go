package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/attendance-engine/internal/ratelimit"
	"github.com/kozaktomas/attendance-engine/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	attendanceHandler := handlers.NewAttendanceHandler(s.deps.Attendance)
	gatewayHandler := handlers.NewGatewayHandler(s.deps.Gateway)

	s.router.Get("/api/v1/health", handlers.HealthCheck)
	if s.deps.Metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		// Identification
		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(s.identifyTimeout()))
			r.With(s.limit("face")).Post("/attendance/face", attendanceHandler.IdentifyFace)
			r.With(s.limit("fingerprint")).Post("/attendance/fingerprint", attendanceHandler.ScanFingerprint)
		})

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(s.requestTimeout()))

			// Reporting
			r.Get("/attendance/recent", attendanceHandler.Recent)
			r.Get("/recognition/logs", attendanceHandler.Logs)

			// Device
			r.Get("/gateway/status", gatewayHandler.Status)
		})
	})
}

// limit returns the rate limit middleware for action, or a pass-through
// when rate limiting is disabled.
func (s *Server) limit(action string) func(http.Handler) http.Handler {
	if s.deps.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return ratelimit.Middleware(s.deps.Limiter, action, s.deps.Metrics)
}
