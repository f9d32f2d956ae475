package api

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"time"

	"github.com/cleanidoc/cleandoc/pkg/audit"
	"github.com/cleanidoc/cleandoc/pkg/events"
	"github.com/cleanidoc/cleandoc/pkg/export"
	"github.com/cleanidoc/cleandoc/pkg/log"
	"github.com/cleanidoc/cleandoc/pkg/objectstore"
	"github.com/cleanidoc/cleandoc/pkg/scheduler"
	"github.com/cleanidoc/cleandoc/pkg/storage"
	"github.com/cleanidoc/cleandoc/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Exporter triggers exports, re-issues their links and reports whether a
// tenant and date is running
type Exporter interface {
	GenerateDailyExport(ctx context.Context, tenantID, reportDate string, opts export.Options) (*export.Result, error)
	IssueLinks(ctx context.Context, exportID string, ttl time.Duration) (map[types.ArtifactKind]*objectstore.Link, error)
	Status(ctx context.Context, tenantID, reportDate string) (*export.RunStatus, error)
}

// Jobs runs the scheduler jobs on demand
type Jobs interface {
	RunDaily(ctx context.Context, reportDate string) (*scheduler.DailySummary, error)
	RunRetention(ctx context.Context) (*scheduler.RetentionSummary, error)
}

// Deps are the services behind the API
type Deps struct {
	Exports  storage.ExportStore
	Exporter Exporter
	Audit    *audit.Service
	Jobs     Jobs
	Events   *events.Broker

	// Objects and Downloads serve /downloads for the local backend; both
	// nil when links point at S3
	Objects   *objectstore.Gateway
	Downloads *objectstore.LocalBackend
}

// Server is the HTTP control surface of the pipeline
type Server struct {
	deps   Deps
	engine *gin.Engine
	srv    *http.Server
	logger zerolog.Logger
}

// NewServer creates the router with every route registered
func NewServer(deps Deps) *Server {
	s := &Server{
		deps:   deps,
		logger: log.WithComponent("api"),
	}

	r := gin.New()
	r.Use(requestID(), accessLog(s.logger), gin.CustomRecovery(s.recover), auditContext())
	s.registerRoutes(r)
	s.engine = r
	return s
}

// registerRoutes wires routes to handlers
func (s *Server) registerRoutes(r *gin.Engine) {
	r.GET("/health", s.health)
	r.GET("/ready", s.ready)
	r.GET("/metrics", s.metrics)

	if s.deps.Downloads != nil && s.deps.Objects != nil {
		r.GET("/downloads/:token", s.download)
	}

	v1 := r.Group("/v1")
	{
		tenants := v1.Group("/tenants/:tenantID")
		tenants.POST("/exports", s.triggerExport)
		tenants.GET("/exports", s.listExports)
		tenants.GET("/exports/:reportDate/status", s.exportStatus)

		v1.GET("/exports/:id", s.getExport)
		v1.POST("/exports/:id/links", s.issueLinks)

		v1.GET("/audit", s.auditLog)
		v1.GET("/audit/verify", s.verifyAudit)

		v1.POST("/scheduler/daily", s.runDaily)
		v1.POST("/scheduler/retention", s.runRetention)

		v1.GET("/events", s.streamEvents)
	}
}

// Handler returns the router for embedding and tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves on addr until Shutdown
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("API server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartTLS serves HTTPS on addr with cfg until Shutdown
func (s *Server) StartTLS(addr string, cfg *tls.Config) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		TLSConfig:         cfg,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("API server listening with TLS")
	if err := s.srv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) recover(c *gin.Context, err any) {
	s.logger.Error().Interface("panic", err).Str("path", c.Request.URL.Path).Msg("Handler panicked")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// errorStatus maps pipeline errors to HTTP status codes
func errorStatus(err error) int {
	var verr *export.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, export.ErrExportInProgress):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, objectstore.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}
	body := gin.H{"error": err.Error()}
	var stageErr *export.StageError
	if errors.As(err, &stageErr) {
		body["stage"] = stageErr.Stage
		if stageErr.ExportID != "" {
			body["export_id"] = stageErr.ExportID
		}
	}
	c.JSON(status, body)
}
