package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	apperrors "github.com/recipegate/recipegate/internal/errors"
	"github.com/recipegate/recipegate/internal/gateway"
	"github.com/recipegate/recipegate/internal/observability"
	"github.com/recipegate/recipegate/internal/server/handlers"
	servermw "github.com/recipegate/recipegate/internal/server/middleware"
)

// Config holds the HTTP listener settings.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// TrustProxy rewrites RemoteAddr from X-Real-IP / X-Forwarded-For.
	// Enable only behind a proxy that sets these headers.
	TrustProxy bool

	// AdminToken enables POST /admin/signal when non-empty.
	AdminToken string

	Version string
}

// Server represents the HTTP server
type Server struct {
	cfg    Config
	router *chi.Mux
	server *http.Server
	health *handlers.HealthManager
}

// New creates the server and mounts gw under /api.
func New(cfg Config, gw *gateway.Gateway) *Server {
	r := chi.NewRouter()

	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(servermw.RequestID)      // correlation first
	r.Use(servermw.RequestMetrics) // measures everything below, including recovered panics
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewNotFoundError("the requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		apperrors.RespondWithError(w, req, apperrors.NewMethodNotAllowedError("the requested method is not allowed for this resource"))
	})

	s := &Server{
		cfg:    cfg,
		router: r,
		health: handlers.NewHealthManager(cfg.Version),
	}

	handlers.SetHTTPErrorResponder(apperrors.RespondWithError)
	s.registerRoutes(gw)

	return s
}

// Health returns the health manager so callers can register checks.
func (s *Server) Health() *handlers.HealthManager {
	return s.health
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// Start listens and serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadTimeout:       durationOr(s.cfg.ReadTimeout, 30*time.Second),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      durationOr(s.cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:       durationOr(s.cfg.IdleTimeout, 120*time.Second),
	}

	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Starting HTTP server",
			zap.String("addr", s.server.Addr),
			zap.Bool("trust_proxy", s.cfg.TrustProxy))
	}

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Shutting down HTTP server")
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
