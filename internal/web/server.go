package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/customer-recognition/internal/config"
	"github.com/kozaktomas/customer-recognition/internal/database"
	"github.com/kozaktomas/customer-recognition/internal/detection"
	"github.com/kozaktomas/customer-recognition/internal/logging"
	"github.com/kozaktomas/customer-recognition/internal/prediction"
	"github.com/kozaktomas/customer-recognition/internal/web/handlers"
	"github.com/kozaktomas/customer-recognition/internal/web/middleware"
	"github.com/m-mizutani/goerr/v2"
)

// requestTimeout bounds every request except the event stream.
const requestTimeout = 30 * time.Second

// Deps are the components the HTTP boundary talks to.
type Deps struct {
	Detector  handlers.Detector
	Engine    *prediction.Engine
	Store     database.CustomerReader
	Cache     *detection.Cache
	Images    handlers.ImagePublisher // may be nil
	StaticDir string                  // served under /static/images/
}

// Server represents the web server
type Server struct {
	config     *config.Config
	deps       Deps
	router     *chi.Mux
	httpServer *http.Server
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, deps Deps) *Server {
	r := chi.NewRouter()

	s := &Server{
		config: cfg,
		deps:   deps,
		router: r,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	// No WriteTimeout: the detection stream stays open, other routes use requestTimeout.
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start(ctx context.Context) error {
	logging.From(ctx).Info("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return goerr.Wrap(err, "failed to start server", goerr.V("addr", s.httpServer.Addr))
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.From(ctx).Info("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return goerr.Wrap(err, "shutting down server")
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
