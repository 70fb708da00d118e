package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/newthinker/quantbt/internal/core"
	"github.com/newthinker/quantbt/internal/strategy"
	"github.com/newthinker/quantbt/internal/strategy/factory"
	"go.uber.org/zap"
)

// Runs are independent and share no mutable state, so comparison and
// parameter sweeps parallelize over a bounded worker pool. Each job gets its
// own Portfolio; only the aggregated results need synchronization.

// Compare runs one backtest per strategy over the same data and returns the
// results keyed by strategy name. A failed run fails the comparison.
func (e *Engine) Compare(ctx context.Context, strategies []strategy.Strategy, series []core.PriceSeries, benchmark *core.PriceSeries, workers int) (map[string]*Result, error) {
	if len(strategies) == 0 {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("no strategies to compare"))
	}
	if workers <= 0 {
		workers = 4
	}

	jobs := make(chan strategy.Strategy)
	results := make(map[string]*Result, len(strategies))

	var mu sync.Mutex
	var wg sync.WaitGroup
	var firstErr error

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for strat := range jobs {
				result, err := e.Run(ctx, strat, series, benchmark)
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = fmt.Errorf("comparing %s: %w", strat.Name(), err)
					}
				} else {
					results[strat.Name()] = result
				}
				mu.Unlock()
			}
		}()
	}

	for _, strat := range strategies {
		jobs <- strat
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// ParamGrid maps a parameter name to the candidate values to sweep.
type ParamGrid map[string][]any

// combinations expands the grid into every parameter assignment, in a
// deterministic order (keys sorted, values in declared order).
func (g ParamGrid) combinations() []map[string]any {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := []map[string]any{{}}
	for _, key := range keys {
		var next []map[string]any
		for _, combo := range combos {
			for _, value := range g[key] {
				extended := make(map[string]any, len(combo)+1)
				for k, v := range combo {
					extended[k] = v
				}
				extended[key] = value
				next = append(next, extended)
			}
		}
		combos = next
	}
	return combos
}

// OptimizationResult holds the best run of a parameter sweep.
type OptimizationResult struct {
	BestParams map[string]any `json:"best_params"`
	BestScore  float64        `json:"best_score"`
	BestResult *Result        `json:"best_result"`
	Evaluated  int            `json:"evaluated"`
	Failed     int            `json:"failed"`
}

// Optimize sweeps the parameter grid for one strategy and picks the run with
// the highest value of the named metric. Combinations whose parameters fail
// validation are skipped, not fatal: the point of a sweep is to explore, and
// pathological corners still leave the rest of the grid usable. Ties resolve
// to the earliest combination so sweeps stay deterministic.
func (e *Engine) Optimize(ctx context.Context, strategyName string, grid ParamGrid, metric string, series []core.PriceSeries, benchmark *core.PriceSeries, workers int) (*OptimizationResult, error) {
	combos := grid.combinations()
	if len(combos) == 0 {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("empty parameter grid"))
	}
	if workers <= 0 {
		workers = 4
	}

	type scored struct {
		index  int
		params map[string]any
		score  float64
		result *Result
	}

	jobs := make(chan int)
	var mu sync.Mutex
	var wg sync.WaitGroup
	var best *scored
	failed := 0

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				params := combos[i]
				strat, err := factory.New(strategyName, params)
				if err != nil {
					mu.Lock()
					failed++
					mu.Unlock()
					continue
				}

				result, err := e.Run(ctx, strat, series, benchmark)
				if err != nil {
					e.logger.Warn("sweep combination failed",
						zap.String("strategy", strategyName),
						zap.Any("params", params),
						zap.Error(err),
					)
					mu.Lock()
					failed++
					mu.Unlock()
					continue
				}

				score, ok := result.MetricsMap[metric]
				if !ok {
					mu.Lock()
					failed++
					mu.Unlock()
					continue
				}

				mu.Lock()
				if best == nil || score > best.score || (score == best.score && i < best.index) {
					best = &scored{index: i, params: params, score: score, result: result}
				}
				mu.Unlock()
			}
		}()
	}

	for i := range combos {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if best == nil {
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("no parameter combination produced a %q score", metric))
	}

	return &OptimizationResult{
		BestParams: best.params,
		BestScore:  best.score,
		BestResult: best.result,
		Evaluated:  len(combos),
		Failed:     failed,
	}, nil
}
