// Package httpapi provides the HTTP API for skillgate.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/skillgate/internal/breaker"
	"github.com/fyrsmithlabs/skillgate/internal/config"
	"github.com/fyrsmithlabs/skillgate/internal/promotion"
)

// PromotionEvaluator runs the promotion gate sequence.
type PromotionEvaluator interface {
	EvaluateAndPromote(ctx context.Context, skill string, outcomes []promotion.ShadowOutcome) promotion.Decision
}

// StatsSource records shadow outcomes and exposes promotion state.
type StatsSource interface {
	Record(name string, delta float64) error
	Snapshot() *promotion.State
}

// EvidenceLister reads persisted evidence bundles for a skill.
type EvidenceLister interface {
	List(skill string) ([]*promotion.EvidenceBundle, error)
}

// BreakerStatus exposes per-skill circuit state.
type BreakerStatus interface {
	IsOpen(name string) bool
	GetStatus(name string) breaker.Status
}

// Server provides HTTP endpoints for skillgate.
type Server struct {
	echo      *echo.Echo
	evaluator PromotionEvaluator
	stats     StatsSource
	evidence  EvidenceLister
	breaker   BreakerStatus
	logger    *zap.Logger
	config    config.ServerConfig
	metrics   *Metrics
}

// NewServer creates the HTTP server and registers its routes.
func NewServer(
	evaluator PromotionEvaluator,
	stats StatsSource,
	evidence EvidenceLister,
	cb BreakerStatus,
	logger *zap.Logger,
	cfg config.ServerConfig,
) (*Server, error) {
	if evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if stats == nil {
		return nil, fmt.Errorf("stats source is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 9180
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		evaluator: evaluator,
		stats:     stats,
		evidence:  evidence,
		breaker:   cb,
		logger:    logger,
		config:    cfg,
		metrics:   NewMetrics(logger),
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)
	e.Use(s.metrics.Middleware)

	s.registerRoutes()
	return s, nil
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		s.logger.Info("http request",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		)
		return err
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/promotion/evaluate", s.handleEvaluate)
	v1.POST("/promotion/record", s.handleRecord)
	v1.GET("/promotion/stats", s.handleStats)
	v1.GET("/evidence/:skill", s.handleEvidence)
	v1.GET("/breaker/:skill", s.handleBreaker)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// EvaluateRequest is the request body for POST /api/v1/promotion/evaluate.
type EvaluateRequest struct {
	Skill    string                    `json:"skill"`
	Outcomes []promotion.ShadowOutcome `json:"outcomes,omitempty"`
}

// EvaluateResponse is the response body for POST /api/v1/promotion/evaluate.
type EvaluateResponse struct {
	Promoted bool                      `json:"promoted"`
	Reason   string                    `json:"reason"`
	Evidence *promotion.EvidenceBundle `json:"evidence,omitempty"`
}

func (s *Server) handleEvaluate(c echo.Context) error {
	var req EvaluateRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid evaluate request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Skill == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "skill field is required")
	}

	decision := s.evaluator.EvaluateAndPromote(c.Request().Context(), req.Skill, req.Outcomes)
	return c.JSON(http.StatusOK, EvaluateResponse{
		Promoted: decision.Promoted,
		Reason:   decision.Reason,
		Evidence: decision.Bundle,
	})
}

// RecordRequest is the request body for POST /api/v1/promotion/record.
type RecordRequest struct {
	Skill string  `json:"skill"`
	Delta float64 `json:"delta"`
}

func (s *Server) handleRecord(c echo.Context) error {
	var req RecordRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid record request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Skill == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "skill field is required")
	}

	if err := s.stats.Record(req.Skill, req.Delta); err != nil {
		s.logger.Error("failed to record shadow outcome",
			zap.String("skill", req.Skill),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to record outcome")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *Server) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.stats.Snapshot())
}

func (s *Server) handleEvidence(c echo.Context) error {
	if s.evidence == nil {
		return echo.NewHTTPError(http.StatusNotFound, "evidence store not configured")
	}

	bundles, err := s.evidence.List(c.Param("skill"))
	if err != nil {
		s.logger.Error("failed to list evidence", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list evidence")
	}
	return c.JSON(http.StatusOK, bundles)
}

// BreakerResponse is the response body for GET /api/v1/breaker/:skill.
type BreakerResponse struct {
	Skill             string  `json:"skill"`
	Open              bool    `json:"open"`
	ErrorRate         float64 `json:"error_rate"`
	CooldownRemaining float64 `json:"cooldown_remaining"`
}

func (s *Server) handleBreaker(c echo.Context) error {
	if s.breaker == nil {
		return echo.NewHTTPError(http.StatusNotFound, "breaker not configured")
	}

	skill := c.Param("skill")
	status := s.breaker.GetStatus(skill)
	return c.JSON(http.StatusOK, BreakerResponse{
		Skill:             skill,
		Open:              s.breaker.IsOpen(skill),
		ErrorRate:         status.ErrorRate,
		CooldownRemaining: status.CooldownRemaining,
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
