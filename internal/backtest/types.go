package backtest

import (
	"time"

	"github.com/newthinker/quantbt/internal/core"
	"github.com/newthinker/quantbt/internal/perf"
)

// EquityPoint is one recorded point of the equity curve: total portfolio
// value and remaining cash at a bar close.
type EquityPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
	Cash  float64   `json:"cash"`
}

// Result holds the complete backtest output. It is created once per run and
// never mutated after the loop terminates.
type Result struct {
	RunID          string             `json:"run_id"`
	Strategy       string             `json:"strategy"`
	Symbols        []string           `json:"symbols"`
	Start          time.Time          `json:"start"`
	End            time.Time          `json:"end"`
	InitialCapital float64            `json:"initial_capital"`
	FinalValue     float64            `json:"final_value"`
	EquityCurve    []EquityPoint      `json:"equity_curve"`
	Trades         []core.Trade       `json:"trades"`
	Returns        []float64          `json:"returns"`
	Benchmark      string             `json:"benchmark,omitempty"`
	BenchmarkRets  []float64          `json:"benchmark_returns,omitempty"`
	Metrics        perf.Metrics       `json:"metrics"`
	MetricsMap     map[string]float64 `json:"metrics_map"`
}

// EquityValues extracts the total-value series from the equity curve.
func (r *Result) EquityValues() []float64 {
	values := make([]float64, len(r.EquityCurve))
	for i, p := range r.EquityCurve {
		values[i] = p.Value
	}
	return values
}
