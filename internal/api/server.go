package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mdmcore/resolve/internal/lineage"
	"github.com/mdmcore/resolve/internal/logging"
	"github.com/mdmcore/resolve/internal/metrics"
	"github.com/mdmcore/resolve/internal/wiring"
	"github.com/mdmcore/resolve/pkg/config"
)

// Server is the small inspect/health/metrics HTTP surface the
// orchestrator exposes alongside the CLI.
type Server struct {
	router     *gin.Engine
	store      *lineage.Store
	config     *config.Config
	sink       *metrics.MemorySink
	httpServer *http.Server
	log        *logging.Logger
}

// NewServer creates a new REST API server backed by store. sink may be
// nil, in which case the metrics endpoint reports empty counters.
func NewServer(store *lineage.Store, cfg *config.Config, sink *metrics.MemorySink) *Server {
	log := logging.GetLogger("api")
	log.Info("initializing REST API server")

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	if cfg.RestAPI.CORS {
		log.Debug("enabling CORS")
		router.Use(cors.New(cors.Config{
			AllowMethods:    []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"},
			ExposeHeaders:   []string{"Content-Length", "Retry-After"},
			AllowAllOrigins: true,
			MaxAge:          12 * time.Hour,
		}))
	}

	if cfg.RateLimit.Enabled {
		log.Info("rate limiting enabled")
		// wiring.BuildLimiter also backs the embedding provider and ANN
		// vector index's resource buckets; this middleware only ever
		// draws on "api", which falls through to the global bucket.
		limiter := wiring.BuildLimiter(cfg)
		router.Use(RateLimitMiddleware(limiter))
	}

	router.Use(MaxBodySizeMiddleware(DefaultBodyLimit))

	server := &Server{
		router: router,
		store:  store,
		config: cfg,
		sink:   sink,
		log:    log,
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	{
		api.GET("/health", s.healthHandler)
		api.GET("/metrics", s.metricsHandler)
		api.GET("/golden-records/:id", s.getGoldenRecord)
		api.GET("/xref/:record_id", s.getXref)
		api.GET("/xref/:record_id/related", s.getRelatedEntities)
	}
}

// Start runs the HTTP server on the configured host/port.
func (s *Server) Start() error {
	port := s.config.RestAPI.Port
	addr := fmt.Sprintf("%s:%d", s.config.RestAPI.Host, port)

	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	s.log.Info("starting REST API server", "address", addr)
	return s.httpServer.ListenAndServe()
}

// StartWithContext starts the HTTP server and blocks until ctx is
// cancelled or the server errors, shutting down gracefully within
// shutdownTimeout.
func (s *Server) StartWithContext(ctx context.Context, shutdownTimeout time.Duration) error {
	addr := fmt.Sprintf("%s:%d", s.config.RestAPI.Host, s.config.RestAPI.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("starting REST API server", "address", addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("stopping REST API server")
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Error("server shutdown error", "error", err)
			return err
		}
		s.log.Info("REST API server stopped")
	}
	return nil
}

// Router returns the underlying Gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

