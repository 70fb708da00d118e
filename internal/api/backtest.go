package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/newthinker/quantbt/internal/api/job"
	"github.com/newthinker/quantbt/internal/api/response"
	"github.com/newthinker/quantbt/internal/backtest"
	"github.com/newthinker/quantbt/internal/core"
	"github.com/newthinker/quantbt/internal/feed"
	"github.com/newthinker/quantbt/internal/strategy"
	"github.com/newthinker/quantbt/internal/strategy/factory"
	"go.uber.org/zap"
)

const (
	runTimeout = 5 * time.Minute
	dateLayout = "2006-01-02"
)

// BacktestRequest is the request body for starting a backtest.
type BacktestRequest struct {
	Symbols   []string       `json:"symbols"`
	Strategy  string         `json:"strategy"`
	Start     string         `json:"start"`
	End       string         `json:"end"`
	Benchmark string         `json:"benchmark,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}

// CompareRequest runs several strategies over the same data.
type CompareRequest struct {
	Symbols    []string `json:"symbols"`
	Strategies []struct {
		Name   string         `json:"name"`
		Params map[string]any `json:"params,omitempty"`
	} `json:"strategies"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Benchmark string `json:"benchmark,omitempty"`
}

// OptimizeRequest sweeps a parameter grid for one strategy.
type OptimizeRequest struct {
	Symbols   []string         `json:"symbols"`
	Strategy  string           `json:"strategy"`
	Start     string           `json:"start"`
	End       string           `json:"end"`
	Benchmark string           `json:"benchmark,omitempty"`
	Grid      map[string][]any `json:"grid"`
	Metric    string           `json:"metric"`
}

type dateRange struct {
	start, end time.Time
}

func parseRange(startStr, endStr string) (dateRange, error) {
	start, err := time.Parse(dateLayout, startStr)
	if err != nil {
		return dateRange{}, core.WrapError(core.ErrConfigInvalid, err)
	}
	end, err := time.Parse(dateLayout, endStr)
	if err != nil {
		return dateRange{}, core.WrapError(core.ErrConfigInvalid, err)
	}
	if end.Before(start) {
		return dateRange{}, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("end date %s precedes start date %s", endStr, startStr))
	}
	return dateRange{start: start, end: end}, nil
}

// fetchInputs loads price series for the request symbols plus the optional
// benchmark.
func (s *Server) fetchInputs(ctx context.Context, symbols []string, benchmark string, r dateRange) ([]core.PriceSeries, *core.PriceSeries, error) {
	series, err := feed.FetchAll(ctx, s.provider, symbols, r.start, r.end)
	if err != nil {
		s.recordFetch("error")
		return nil, nil, err
	}
	s.recordFetch("success")

	var bench *core.PriceSeries
	if benchmark != "" {
		b, err := s.provider.FetchHistory(ctx, benchmark, r.start, r.end)
		if err != nil {
			s.recordFetch("error")
			return nil, nil, err
		}
		bench = &b
	}
	return series, bench, nil
}

func (s *Server) recordFetch(status string) {
	if s.registry != nil {
		s.registry.RecordFeedFetch(s.provider.Name(), status)
	}
}

func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, core.WrapError(core.ErrConfigInvalid, err))
		return
	}
	if len(req.Symbols) == 0 || req.Strategy == "" {
		response.Error(w, http.StatusBadRequest, core.WrapError(core.ErrConfigMissing, nil))
		return
	}
	dates, err := parseRange(req.Start, req.End)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}

	// Strategy construction fails fast, before a job exists.
	strat, err := factory.New(req.Strategy, req.Params)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}

	j := s.jobs.Create("backtest")
	s.trackJobs()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		s.jobs.Update(j.ID, func(j *job.Job) { j.Status = job.StatusRunning })

		started := time.Now()
		series, bench, err := s.fetchInputs(ctx, req.Symbols, req.Benchmark, dates)
		if err != nil {
			s.failJob(j.ID, req.Strategy, err)
			return
		}

		result, err := s.engine.Run(ctx, strat, series, bench)
		if err != nil {
			s.failJob(j.ID, req.Strategy, err)
			return
		}

		if s.registry != nil {
			s.registry.RecordBacktest(req.Strategy, "success",
				time.Since(started).Seconds(), len(result.Trades))
		}
		s.archiveRun(ctx, result)

		s.jobs.Update(j.ID, func(j *job.Job) {
			j.Status = job.StatusComplete
			j.Progress = 100
			j.Result = result
		})
		s.trackJobs()
	}()

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": j.ID,
		"status": j.Status,
	})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, core.WrapError(core.ErrConfigInvalid, err))
		return
	}
	if len(req.Symbols) == 0 || len(req.Strategies) == 0 {
		response.Error(w, http.StatusBadRequest, core.WrapError(core.ErrConfigMissing, nil))
		return
	}
	dates, err := parseRange(req.Start, req.End)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}

	strategies := make([]strategy.Strategy, 0, len(req.Strategies))
	for _, spec := range req.Strategies {
		strat, err := factory.New(spec.Name, spec.Params)
		if err != nil {
			response.Error(w, http.StatusBadRequest, err)
			return
		}
		strategies = append(strategies, strat)
	}

	j := s.jobs.Create("compare")
	s.trackJobs()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		s.jobs.Update(j.ID, func(j *job.Job) { j.Status = job.StatusRunning })

		series, bench, err := s.fetchInputs(ctx, req.Symbols, req.Benchmark, dates)
		if err != nil {
			s.failJob(j.ID, "compare", err)
			return
		}

		results, err := s.engine.Compare(ctx, strategies, series, bench, s.workers)
		if err != nil {
			s.failJob(j.ID, "compare", err)
			return
		}

		for name, result := range results {
			if s.registry != nil {
				s.registry.RecordBacktest(name, "success", 0, len(result.Trades))
			}
			s.archiveRun(ctx, result)
		}

		s.jobs.Update(j.ID, func(j *job.Job) {
			j.Status = job.StatusComplete
			j.Progress = 100
			j.Result = results
		})
		s.trackJobs()
	}()

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": j.ID,
		"status": j.Status,
	})
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, core.WrapError(core.ErrConfigInvalid, err))
		return
	}
	if len(req.Symbols) == 0 || req.Strategy == "" || len(req.Grid) == 0 {
		response.Error(w, http.StatusBadRequest, core.WrapError(core.ErrConfigMissing, nil))
		return
	}
	if req.Metric == "" {
		req.Metric = "sharpe_ratio"
	}
	dates, err := parseRange(req.Start, req.End)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}

	j := s.jobs.Create("optimize")
	s.trackJobs()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		s.jobs.Update(j.ID, func(j *job.Job) { j.Status = job.StatusRunning })

		series, bench, err := s.fetchInputs(ctx, req.Symbols, req.Benchmark, dates)
		if err != nil {
			s.failJob(j.ID, req.Strategy, err)
			return
		}

		opt, err := s.engine.Optimize(ctx, req.Strategy, backtest.ParamGrid(req.Grid),
			req.Metric, series, bench, s.workers)
		if err != nil {
			s.failJob(j.ID, req.Strategy, err)
			return
		}

		if s.registry != nil {
			for i := 0; i < opt.Evaluated-opt.Failed; i++ {
				s.registry.RecordSweepCombo(req.Strategy, "evaluated")
			}
			for i := 0; i < opt.Failed; i++ {
				s.registry.RecordSweepCombo(req.Strategy, "failed")
			}
		}
		s.archiveRun(ctx, opt.BestResult)

		s.jobs.Update(j.ID, func(j *job.Job) {
			j.Status = job.StatusComplete
			j.Progress = 100
			j.Result = opt
		})
		s.trackJobs()
	}()

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": j.ID,
		"status": j.Status,
	})
}

func (s *Server) failJob(id, strategy string, err error) {
	if s.registry != nil {
		s.registry.RecordBacktest(strategy, "error", 0, 0)
	}
	s.logger.Warn("job failed", zap.String("job_id", id), zap.Error(err))

	// Keep the original error code (provider, integrity, config) when the
	// failure is already structured; only bare errors get the strategy code.
	var coreErr *core.Error
	if !errors.As(err, &coreErr) {
		coreErr = core.WrapError(core.ErrStrategyFailed, err)
	}

	s.jobs.Update(id, func(j *job.Job) {
		j.Status = job.StatusFailed
		j.Error = coreErr
	})
	s.trackJobs()
}

func (s *Server) archiveRun(ctx context.Context, result *backtest.Result) {
	if s.results == nil || result == nil {
		return
	}
	if err := s.results.Save(ctx, result); err != nil {
		s.logger.Warn("archiving run failed", zap.String("run_id", result.RunID), zap.Error(err))
		return
	}
	if s.registry != nil {
		s.registry.RecordRunArchived()
	}
}

func (s *Server) trackJobs() {
	if s.registry != nil {
		s.registry.SetJobsActive("api", s.jobs.CountActive())
	}
}
