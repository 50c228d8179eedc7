package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/citizenbirds/birdlist/internal/api/middleware"
	"github.com/citizenbirds/birdlist/internal/cachestore"
	"github.com/citizenbirds/birdlist/internal/errors"
	"github.com/citizenbirds/birdlist/internal/logger"
	"github.com/citizenbirds/birdlist/internal/observability"
	"github.com/citizenbirds/birdlist/internal/reconcile"
)

const componentName = "api"

// Reconciler builds the species list of a project.
type Reconciler interface {
	Reconcile(ctx context.Context, projectID string) (*reconcile.Result, error)
	ReconcileUser(ctx context.Context, projectID string, userID int) (*reconcile.Result, error)
}

// UserDirectory resolves usernames to primary-source user ids.
type UserDirectory interface {
	UserID(ctx context.Context, username string) (int, error)
}

// CacheInspector reports response cache counters.
type CacheInspector interface {
	Stats() cachestore.Stats
}

// Server is the birdlist HTTP server.
type Server struct {
	echo    *echo.Echo
	config  *Config
	log     logger.Logger
	metrics *observability.Metrics

	reconciler Reconciler
	users      UserDirectory
	cache      CacheInspector

	startTime time.Time
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithLogger sets the logger for the server.
func WithLogger(log logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = log
	}
}

// WithMetrics exposes m at /metrics and records request metrics.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithUsers enables the user lookup endpoint.
func WithUsers(u UserDirectory) ServerOption {
	return func(s *Server) {
		s.users = u
	}
}

// WithCache enables the cache stats endpoint.
func WithCache(c CacheInspector) ServerOption {
	return func(s *Server) {
		s.cache = c
	}
}

// New creates a new HTTP server serving reconciler.
func New(config *Config, reconciler Reconciler, opts ...ServerOption) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if reconciler == nil {
		return nil, errors.Newf("api server requires a reconciler").
			Component(componentName).
			Category(errors.CategoryConfiguration).
			Build()
	}

	s := &Server{
		config:     config,
		reconciler: reconciler,
		startTime:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Global().Module(componentName)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()

	s.log.Info("HTTP server initialized", logger.String("address", config.Listen))
	return s, nil
}

// setupMiddleware configures the Echo middleware stack.
func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())
	s.echo.Use(echomw.RequestID())
	s.echo.Use(traceID)
	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, func(c echo.Context) bool {
		return c.Path() == "/healthz" || c.Path() == "/metrics"
	}))
	if s.metrics != nil {
		s.echo.Use(mw.NewMetrics(s.metrics.HTTP))
	}
	s.echo.Use(echomw.Gzip())
}

// traceID carries the request id into the request context for logging.
func traceID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
			req := c.Request()
			c.SetRequest(req.WithContext(logger.WithTraceID(req.Context(), id)))
		}
		return next(c)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/healthz", s.healthCheck)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	v1 := s.echo.Group("/api/v1")
	v1.GET("/projects/:id/species", s.getProjectSpecies)
	if s.users != nil {
		v1.GET("/users/:username", s.getUser)
	}
	if s.cache != nil {
		v1.GET("/cache/stats", s.getCacheStats)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server starting", logger.String("address", s.config.Listen))
		if err := s.echo.Start(s.config.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("shutdown signal received, initiating graceful shutdown")
	}

	if err := s.Shutdown(); err != nil {
		return err
	}
	return <-errCh
}

// StartWithGracefulShutdown serves until SIGINT or SIGTERM.
func (s *Server) StartWithGracefulShutdown() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Start(ctx)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		s.log.Error("error during server shutdown", logger.Error(err))
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info("server shutdown complete")
	return nil
}

// Echo returns the underlying Echo instance.
// This is useful for testing or advanced configuration.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
