// Package api exposes the ops surface: REST endpoints to trigger and
// inspect workflow runs plus a WebSocket stream of pipeline events. The
// server is operational tooling; the pipeline itself never depends on it.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quantfleet/quantfleet/pkg/artifact"
	"github.com/quantfleet/quantfleet/pkg/config"
	"github.com/quantfleet/quantfleet/pkg/events"
	"github.com/quantfleet/quantfleet/pkg/version"
	"github.com/quantfleet/quantfleet/pkg/workflow"
)

// Server serves the ops API.
type Server struct {
	cfg     *config.Config
	manager *workflow.Manager
	store   *artifact.Store
	bus     *events.Bus
	httpSrv *http.Server
	logger  *slog.Logger
}

// NewServer creates the API server. It does not listen until Start.
func NewServer(cfg *config.Config, manager *workflow.Manager, store *artifact.Store, bus *events.Bus) *Server {
	s := &Server{
		cfg:     cfg,
		manager: manager,
		store:   store,
		bus:     bus,
		logger:  slog.Default().With("component", "api"),
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.System.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.health)
	r.GET("/ws", s.handleWS)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/runs", s.createRun)
		v1.GET("/runs", s.listRuns)
		v1.GET("/runs/:id", s.getRun)
		v1.GET("/factors/:agent", s.getFactor)
		v1.GET("/reports/:agent", s.getReport)
		v1.GET("/results/latest", s.latestResult)
	}
	return r
}

// Start listens on the configured address and blocks until shutdown.
func (s *Server) Start() error {
	s.logger.Info("API server listening", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": version.Full()})
}
