package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/newthinker/quantbt/internal/backtest"
	"github.com/newthinker/quantbt/internal/core"
	"go.uber.org/zap"
)

const runPrefix = "runs"

// Results persists backtest runs as JSON blobs under runs/<run_id>.json.
type Results struct {
	store  Store
	logger *zap.Logger
}

// NewResults creates a result archive on top of any Store backend.
func NewResults(store Store, logger *zap.Logger) *Results {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Results{store: store, logger: logger}
}

// RunSummary is the listing view of an archived run.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	Strategy    string    `json:"strategy"`
	Symbols     []string  `json:"symbols"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	FinalValue  float64   `json:"final_value"`
	TotalReturn float64   `json:"total_return"`
}

func runPath(runID string) string {
	return path.Join(runPrefix, runID+".json")
}

// Save archives a completed run, keyed by its run ID.
func (r *Results) Save(ctx context.Context, result *backtest.Result) error {
	if result == nil || result.RunID == "" {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("result has no run ID"))
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("encoding run %s: %w", result.RunID, err))
	}

	if err := r.store.Write(ctx, runPath(result.RunID), data); err != nil {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("writing run %s: %w", result.RunID, err))
	}

	r.logger.Info("run archived",
		zap.String("run_id", result.RunID),
		zap.String("strategy", result.Strategy),
	)
	return nil
}

// Load retrieves one archived run by ID.
func (r *Results) Load(ctx context.Context, runID string) (*backtest.Result, error) {
	exists, err := r.store.Exists(ctx, runPath(runID))
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	if !exists {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no archived run %s", runID))
	}

	data, err := r.store.Read(ctx, runPath(runID))
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("reading run %s: %w", runID, err))
	}

	var result backtest.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("decoding run %s: %w", runID, err))
	}
	return &result, nil
}

// List returns summaries of all archived runs, newest start date first.
func (r *Results) List(ctx context.Context) ([]RunSummary, error) {
	paths, err := r.store.List(ctx, runPrefix)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}

	summaries := make([]RunSummary, 0, len(paths))
	for _, p := range paths {
		if !strings.HasSuffix(p, ".json") {
			continue
		}
		data, err := r.store.Read(ctx, p)
		if err != nil {
			r.logger.Warn("skipping unreadable archived run", zap.String("path", p), zap.Error(err))
			continue
		}
		var result backtest.Result
		if err := json.Unmarshal(data, &result); err != nil {
			r.logger.Warn("skipping corrupt archived run", zap.String("path", p), zap.Error(err))
			continue
		}
		summaries = append(summaries, RunSummary{
			RunID:       result.RunID,
			Strategy:    result.Strategy,
			Symbols:     result.Symbols,
			Start:       result.Start,
			End:         result.End,
			FinalValue:  result.FinalValue,
			TotalReturn: result.Metrics.TotalReturn,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].Start.Equal(summaries[j].Start) {
			return summaries[i].Start.After(summaries[j].Start)
		}
		return summaries[i].RunID < summaries[j].RunID
	})
	return summaries, nil
}

// Delete removes an archived run.
func (r *Results) Delete(ctx context.Context, runID string) error {
	if err := r.store.Delete(ctx, runPath(runID)); err != nil {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("deleting run %s: %w", runID, err))
	}
	return nil
}
