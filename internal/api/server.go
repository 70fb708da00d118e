// Package api exposes the simulator over HTTP: backtests run as async jobs,
// archived runs are browsable, and Prometheus metrics are scraped from the
// same listener.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/quantbt/internal/api/job"
	"github.com/newthinker/quantbt/internal/api/middleware"
	"github.com/newthinker/quantbt/internal/api/response"
	"github.com/newthinker/quantbt/internal/archive"
	"github.com/newthinker/quantbt/internal/backtest"
	"github.com/newthinker/quantbt/internal/core"
	"github.com/newthinker/quantbt/internal/feed"
	"github.com/newthinker/quantbt/internal/metrics"
	"github.com/newthinker/quantbt/internal/strategy/factory"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	APIKey      string
	JobTTL      time.Duration
	MaxJobs     int
	MetricsPath string
	Workers     int
}

// Server is the HTTP front end over the backtest engine.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux

	engine   *backtest.Engine
	provider feed.Provider
	results  *archive.Results
	jobs     *job.Store
	registry *metrics.Registry
	workers  int
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	engine *backtest.Engine,
	provider feed.Provider,
	results *archive.Results,
	registry *metrics.Registry,
	logger *zap.Logger,
) (*Server, error) {
	if engine == nil || provider == nil {
		return nil, core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("server needs an engine and a data provider"))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxJobs <= 0 {
		cfg.MaxJobs = 100
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = time.Hour
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	mux := http.NewServeMux()

	s := &Server{
		logger:   logger,
		mux:      mux,
		engine:   engine,
		provider: provider,
		results:  results,
		jobs:     job.NewStore(cfg.MaxJobs, cfg.JobTTL),
		registry: registry,
		workers:  cfg.Workers,
	}

	s.setupRoutes(cfg.MetricsPath)

	var handler http.Handler = mux
	handler = middleware.APIKeyAuth(cfg.APIKey)(handler)
	if registry != nil {
		handler = metrics.HTTPMiddleware(registry)(handler)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(metricsPath string) {
	s.mux.HandleFunc("POST /api/backtest", s.handleBacktest)
	s.mux.HandleFunc("POST /api/compare", s.handleCompare)
	s.mux.HandleFunc("POST /api/optimize", s.handleOptimize)
	s.mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	s.mux.HandleFunc("GET /api/jobs/{id}", s.handleJobStatus)
	s.mux.HandleFunc("GET /api/strategies", s.handleStrategies)
	s.mux.HandleFunc("GET /api/runs", s.handleListRuns)
	s.mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	if s.registry != nil {
		s.mux.Handle("GET "+metricsPath,
			promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the root handler, used in tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"active_jobs": s.jobs.CountActive(),
	})
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]any{
		"strategies": factory.Available(),
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]any{
		"jobs": s.jobs.List(),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	j, err := s.jobs.Get(r.PathValue("id"))
	if err != nil {
		response.Error(w, http.StatusNotFound, err)
		return
	}

	resp := map[string]any{
		"job_id":   j.ID,
		"type":     j.Type,
		"status":   j.Status,
		"progress": j.Progress,
	}
	if j.Status == job.StatusComplete {
		resp["result"] = j.Result
	}
	if j.Status == job.StatusFailed && j.Error != nil {
		errInfo := map[string]string{
			"code":    j.Error.Code,
			"message": j.Error.Message,
		}
		if j.Error.Cause != nil {
			errInfo["cause"] = j.Error.Cause.Error()
		}
		resp["error"] = errInfo
	}

	response.JSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		response.Error(w, http.StatusNotFound,
			core.WrapError(core.ErrStorageFailed, fmt.Errorf("archive not configured")))
		return
	}

	summaries, err := s.results.List(r.Context())
	if err != nil {
		response.Error(w, http.StatusInternalServerError, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{"runs": summaries})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		response.Error(w, http.StatusNotFound,
			core.WrapError(core.ErrStorageFailed, fmt.Errorf("archive not configured")))
		return
	}

	result, err := s.results.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		response.Error(w, http.StatusNotFound, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}
