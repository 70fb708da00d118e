// Package perf derives return, risk and risk-adjusted metrics from a
// completed backtest: the equity curve, the trade log and an optional
// date-paired benchmark comparison. All computations are pure; ratio metrics
// report 0
// when their denominator is zero instead of failing, so even degenerate runs
// (a strategy that never trades, a flat price series) still produce a report.
package perf

import (
	"math"
	"sort"

	"github.com/newthinker/quantbt/internal/core"
	"go.uber.org/zap"
)

// TradingDaysPerYear is the annualization base for daily bars.
const TradingDaysPerYear = 252

// Metrics is the fixed-shape result record. Consumers get a known set of
// fields rather than an open-ended bag of values.
type Metrics struct {
	TotalReturn      float64
	AnnualizedReturn float64
	Volatility       float64 // Annualized stdev of daily returns
	MaxDrawdown      float64 // Fraction of peak, >= 0
	SharpeRatio      float64
	SortinoRatio     float64
	CalmarRatio      float64
	VaR95            float64 // 5th percentile of daily returns
	CVaR95           float64 // Mean return at or below VaR95
	BestDay          float64
	WorstDay         float64

	TotalTrades   int
	ClosedTrades  int
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // In [0,1]; 0 when no trades close
	ProfitFactor  float64 // Gross profit / gross loss of closed trades

	// Benchmark-relative metrics, populated only when HasBenchmark is true
	HasBenchmark     bool
	TrackingError    float64
	InformationRatio float64
	Beta             float64
	Alpha            float64
	Correlation      float64
	ExcessReturn     float64
}

// Map returns the metrics as a name-to-value mapping for serialization into
// reports. Benchmark keys are present only when a benchmark was supplied.
func (m Metrics) Map() map[string]float64 {
	out := map[string]float64{
		"total_return":      m.TotalReturn,
		"annualized_return": m.AnnualizedReturn,
		"volatility":        m.Volatility,
		"max_drawdown":      m.MaxDrawdown,
		"sharpe_ratio":      m.SharpeRatio,
		"sortino_ratio":     m.SortinoRatio,
		"calmar_ratio":      m.CalmarRatio,
		"var_95":            m.VaR95,
		"cvar_95":           m.CVaR95,
		"best_day":          m.BestDay,
		"worst_day":         m.WorstDay,
		"total_trades":      float64(m.TotalTrades),
		"closed_trades":     float64(m.ClosedTrades),
		"winning_trades":    float64(m.WinningTrades),
		"losing_trades":     float64(m.LosingTrades),
		"win_rate":          m.WinRate,
		"profit_factor":     m.ProfitFactor,
	}
	if m.HasBenchmark {
		out["tracking_error"] = m.TrackingError
		out["information_ratio"] = m.InformationRatio
		out["beta"] = m.Beta
		out["alpha"] = m.Alpha
		out["correlation"] = m.Correlation
		out["excess_return"] = m.ExcessReturn
	}
	return out
}

// BenchmarkComparison carries strategy and benchmark returns sampled over
// the bars both series share, paired element-wise by date. Relative metrics
// are only meaningful when each pair covers the same interval.
type BenchmarkComparison struct {
	StrategyReturns  []float64
	BenchmarkReturns []float64
}

// Analyzer computes Metrics from backtest output.
type Analyzer struct {
	riskFreeRate float64
	logger       *zap.Logger
}

// NewAnalyzer creates an analyzer with the given annualized risk-free rate.
func NewAnalyzer(riskFreeRate float64, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{riskFreeRate: riskFreeRate, logger: logger}
}

// Analyze computes all metrics. equity is the recorded equity curve (one
// value per bar), trades the execution log, benchmark the date-paired return
// series for benchmark-relative metrics (nil when no benchmark).
func (a *Analyzer) Analyze(initialCapital float64, equity []float64, trades []core.Trade, benchmark *BenchmarkComparison) Metrics {
	m := Metrics{TotalTrades: len(trades)}
	if len(equity) == 0 || initialCapital <= 0 {
		return m
	}

	returns := dailyReturns(equity)

	m.TotalReturn = equity[len(equity)-1]/initialCapital - 1
	m.AnnualizedReturn = annualize(m.TotalReturn, len(equity))
	m.Volatility = stdev(returns) * math.Sqrt(TradingDaysPerYear)
	m.MaxDrawdown = maxDrawdown(equity)
	m.BestDay = maxOf(returns)
	m.WorstDay = minOf(returns)

	excess := m.AnnualizedReturn - a.riskFreeRate
	m.SharpeRatio = a.ratio("sharpe", excess, m.Volatility)
	m.SortinoRatio = a.ratio("sortino", excess, downsideDeviation(returns)*math.Sqrt(TradingDaysPerYear))
	m.CalmarRatio = a.ratio("calmar", m.AnnualizedReturn, m.MaxDrawdown)

	m.VaR95 = percentile(returns, 0.05)
	m.CVaR95 = cvar(returns, m.VaR95)

	a.tradeMetrics(&m, trades)

	if benchmark != nil {
		a.benchmarkMetrics(&m, benchmark)
	}

	return m
}

// ratio divides, reporting a zero sentinel instead of exploding on a zero or
// near-zero denominator.
func (a *Analyzer) ratio(name string, numerator, denominator float64) float64 {
	if denominator == 0 || math.IsNaN(denominator) {
		a.logger.Info("ratio undefined, reporting 0",
			zap.String("metric", name),
			zap.Float64("numerator", numerator),
		)
		return 0
	}
	return numerator / denominator
}

func (a *Analyzer) tradeMetrics(m *Metrics, trades []core.Trade) {
	closed := MatchClosedTrades(trades)
	m.ClosedTrades = len(closed)

	var grossProfit, grossLoss float64
	for _, ct := range closed {
		if ct.PL > 0 {
			m.WinningTrades++
			grossProfit += ct.PL
		} else {
			m.LosingTrades++
			grossLoss += -ct.PL
		}
	}

	if m.ClosedTrades > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.ClosedTrades)
	}
	m.ProfitFactor = a.ratio("profit_factor", grossProfit, grossLoss)
}

func (a *Analyzer) benchmarkMetrics(m *Metrics, cmp *BenchmarkComparison) {
	returns, bench := cmp.StrategyReturns, cmp.BenchmarkReturns
	n := len(returns)
	if len(bench) < n {
		n = len(bench)
	}
	if n < 2 {
		return
	}
	returns = returns[:n]
	bench = bench[:n]

	m.HasBenchmark = true

	diff := make([]float64, n)
	for i := range diff {
		diff[i] = returns[i] - bench[i]
	}

	m.TrackingError = stdev(diff) * math.Sqrt(TradingDaysPerYear)
	m.InformationRatio = a.ratio("information_ratio", mean(diff)*TradingDaysPerYear, m.TrackingError)

	benchVar := variance(bench)
	m.Beta = a.ratio("beta", covariance(returns, bench), benchVar)

	strategyAnnual := mean(returns) * TradingDaysPerYear
	benchAnnual := mean(bench) * TradingDaysPerYear
	m.Alpha = strategyAnnual - (a.riskFreeRate + m.Beta*(benchAnnual-a.riskFreeRate))

	m.Correlation = a.ratio("correlation", covariance(returns, bench), stdev(returns)*stdev(bench))

	m.ExcessReturn = compound(returns) - compound(bench)
}

// ClosedTrade is one sell matched FIFO against prior buy lots of the same
// instrument. Buy commissions are amortized per share into the cost basis;
// the sell commission is charged to the closing trade.
type ClosedTrade struct {
	Symbol    string
	Quantity  float64
	ExitPrice float64
	CostBasis float64
	PL        float64
}

type lot struct {
	quantity     float64
	costPerShare float64
}

// MatchClosedTrades pairs sells with prior buys FIFO per instrument. A sell
// closes at most its matched quantity; unmatched sell quantity cannot occur
// for a long-only portfolio.
func MatchClosedTrades(trades []core.Trade) []ClosedTrade {
	open := make(map[string][]lot)
	var closed []ClosedTrade

	for _, t := range trades {
		switch t.Side {
		case core.SideBuy:
			open[t.Symbol] = append(open[t.Symbol], lot{
				quantity:     t.Quantity,
				costPerShare: t.Price + t.Commission/t.Quantity,
			})
		case core.SideSell:
			remaining := t.Quantity
			var basis float64
			queue := open[t.Symbol]
			for remaining > 1e-9 && len(queue) > 0 {
				matched := queue[0].quantity
				if matched > remaining {
					matched = remaining
				}
				basis += matched * queue[0].costPerShare
				queue[0].quantity -= matched
				remaining -= matched
				if queue[0].quantity <= 1e-9 {
					queue = queue[1:]
				}
			}
			open[t.Symbol] = queue

			matchedQty := t.Quantity - remaining
			if matchedQty <= 1e-9 {
				continue
			}
			proceeds := matchedQty*t.Price - t.Commission
			closed = append(closed, ClosedTrade{
				Symbol:    t.Symbol,
				Quantity:  matchedQty,
				ExitPrice: t.Price,
				CostBasis: basis,
				PL:        proceeds - basis,
			})
		}
	}

	return closed
}

func dailyReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, equity[i]/equity[i-1]-1)
	}
	return returns
}

func annualize(totalReturn float64, bars int) float64 {
	if bars == 0 || totalReturn <= -1 {
		return 0
	}
	return math.Pow(1+totalReturn, TradingDaysPerYear/float64(bars)) - 1
}

// maxDrawdown tracks the running peak in a single pass.
func maxDrawdown(equity []float64) float64 {
	var peak, maxDD float64
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - v) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// downsideDeviation is the sample stdev of only the negative daily returns.
func downsideDeviation(returns []float64) float64 {
	var negative []float64
	for _, r := range returns {
		if r < 0 {
			negative = append(negative, r)
		}
	}
	return stdev(negative)
}

// percentile computes the q-th quantile with linear interpolation between
// order statistics (historical method, no distributional assumption).
func percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	pos := q * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	frac := pos - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

func cvar(returns []float64, threshold float64) float64 {
	var sum float64
	var count int
	for _, r := range returns {
		if r <= threshold {
			sum += r
			count++
		}
	}
	if count == 0 {
		return threshold
	}
	return sum / float64(count)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return sum / float64(len(values)-1)
}

func stdev(values []float64) float64 {
	return math.Sqrt(variance(values))
}

func covariance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return 0
	}
	ma, mb := mean(a), mean(b)
	var sum float64
	for i := range a {
		sum += (a[i] - ma) * (b[i] - mb)
	}
	return sum / float64(len(a)-1)
}

func compound(returns []float64) float64 {
	cumulative := 1.0
	for _, r := range returns {
		cumulative *= 1 + r
	}
	return cumulative - 1
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
