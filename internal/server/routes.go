package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"go.uber.org/zap"

	"github.com/recipegate/recipegate/internal/gateway"
	"github.com/recipegate/recipegate/internal/observability"
	"github.com/recipegate/recipegate/internal/server/handlers"
)

func (s *Server) registerRoutes(gw *gateway.Gateway) {
	s.router.Get("/health", s.health.HealthHandler)
	s.router.Get("/health/live", s.health.LivenessHandler)
	s.router.Get("/health/ready", s.health.ReadinessHandler)
	s.router.Get("/health/startup", s.health.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	if gw != nil {
		s.router.Mount("/api", gw.Routes())
	}

	s.registerAdminEndpoint()
}

// registerAdminEndpoint exposes gofulmen's signal handler when an admin token is configured.
func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger
	if s.cfg.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (admin.token not set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.cfg.AdminToken,
		RateLimit: 10,
		RateBurst: 5,
		Manager:   nil,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("rate_limit", "10/min, burst 5"))
	}
}
