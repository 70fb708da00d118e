// Package backtest drives the bar-by-bar strategy simulation: it walks one
// or more aligned price series in time order, feeds the growing history to a
// strategy, executes the resulting signals against a simulated portfolio and
// records the equity curve. The same inputs always produce the same Result.
package backtest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/quantbt/internal/core"
	"github.com/newthinker/quantbt/internal/perf"
	"github.com/newthinker/quantbt/internal/portfolio"
	"github.com/newthinker/quantbt/internal/strategy"
	"go.uber.org/zap"
)

// PriceRef selects which bar price fills execute against.
type PriceRef string

const (
	PriceRefClose PriceRef = "close"
	PriceRefOpen  PriceRef = "open"
)

// SizingMode decides how cash is split across simultaneous buy signals.
type SizingMode string

const (
	// SizingEqualSplit divides available cash evenly across the bar's buys.
	SizingEqualSplit SizingMode = "equal_split"
	// SizingPriority fills buys in signal order, each taking all cash that
	// remains when its turn comes.
	SizingPriority SizingMode = "priority"
)

// qtyEpsilon is the smallest quantity worth executing.
const qtyEpsilon = 1e-9

// Config is the execution policy for a run. Zero commission and slippage by
// default; fills reference the close unless configured otherwise.
type Config struct {
	InitialCapital float64
	CommissionRate float64
	SlippageRate   float64
	PriceRef       PriceRef
	Sizing         SizingMode
	RiskFreeRate   float64
}

// DefaultConfig returns the standard simulation parameters.
func DefaultConfig() Config {
	return Config{
		InitialCapital: 100000,
		PriceRef:       PriceRefClose,
		Sizing:         SizingEqualSplit,
		RiskFreeRate:   0.02,
	}
}

// Validate checks the configuration before a run starts.
func (c Config) Validate() error {
	if c.InitialCapital <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("initial capital must be positive, got %f", c.InitialCapital))
	}
	if c.CommissionRate < 0 || c.CommissionRate >= 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("commission rate must be in [0,1), got %f", c.CommissionRate))
	}
	if c.SlippageRate < 0 || c.SlippageRate >= 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("slippage rate must be in [0,1), got %f", c.SlippageRate))
	}
	switch c.PriceRef {
	case PriceRefClose, PriceRefOpen:
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown price reference %q", c.PriceRef))
	}
	switch c.Sizing {
	case SizingEqualSplit, SizingPriority:
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown sizing mode %q", c.Sizing))
	}
	return nil
}

// Engine runs deterministic, single-pass simulations.
type Engine struct {
	cfg      Config
	analyzer *perf.Analyzer
	logger   *zap.Logger
}

// New creates an engine with the given execution policy.
func New(cfg Config, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:      cfg,
		analyzer: perf.NewAnalyzer(cfg.RiskFreeRate, logger),
		logger:   logger,
	}, nil
}

// Run executes a backtest of strat over the given price series. All series
// are validated before any state is touched: a data-integrity or
// configuration failure aborts the run up front rather than mid-loop. A
// missing bar for one instrument on a shared date is not an error; that
// instrument simply cannot trade that day and is marked at its last known
// price.
func (e *Engine) Run(ctx context.Context, strat strategy.Strategy, series []core.PriceSeries, benchmark *core.PriceSeries) (*Result, error) {
	symbols, bySymbol, err := validateSeries(series)
	if err != nil {
		return nil, err
	}
	if benchmark != nil {
		if err := benchmark.Validate(); err != nil {
			return nil, fmt.Errorf("benchmark %s: %w", benchmark.Symbol, err)
		}
	}

	index := sharedIndex(series)

	pf, err := portfolio.New(e.cfg.InitialCapital)
	if err != nil {
		return nil, err
	}

	histories := make(map[string][]core.Bar, len(symbols))
	cursor := make(map[string]int, len(symbols))
	lastPrice := make(map[string]float64, len(symbols))

	curve := make([]EquityPoint, 0, len(index))

	for _, t := range index {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		// Advance each series; instruments without a bar at t keep their
		// previous history and stay untradable this step.
		tradable := make(map[string]float64, len(symbols))
		for _, symbol := range symbols {
			bars := bySymbol[symbol]
			i := cursor[symbol]
			if i < len(bars) && bars[i].Time.Equal(t) {
				histories[symbol] = append(histories[symbol], bars[i])
				price := e.refPrice(bars[i])
				tradable[symbol] = price
				lastPrice[symbol] = price
				cursor[symbol] = i + 1
			}
		}

		signals, err := strat.GenerateSignals(strategy.Context{
			Symbols:  symbols,
			History:  histories,
			Holdings: pf.Holdings(),
			Now:      t,
		})
		if err != nil {
			return nil, core.WrapError(core.ErrStrategyFailed,
				fmt.Errorf("%s at %s: %w", strat.Name(), t.Format("2006-01-02"), err))
		}

		if err := e.execute(pf, signals, tradable, lastPrice, t); err != nil {
			return nil, err
		}

		curve = append(curve, EquityPoint{
			Time:  t,
			Value: pf.MarkToMarket(lastPrice),
			Cash:  pf.Cash(),
		})
	}

	result := &Result{
		RunID:          uuid.NewString(),
		Strategy:       strat.Name(),
		Symbols:        symbols,
		Start:          index[0],
		End:            index[len(index)-1],
		InitialCapital: e.cfg.InitialCapital,
		EquityCurve:    curve,
		Trades:         pf.Trades(),
	}
	result.FinalValue = curve[len(curve)-1].Value
	result.Returns = seriesReturns(result.EquityValues())

	var comparison *perf.BenchmarkComparison
	if benchmark != nil {
		stratRets, benchRets := alignReturns(curve, *benchmark, e.cfg.PriceRef)
		result.Benchmark = benchmark.Symbol
		result.BenchmarkRets = benchRets
		comparison = &perf.BenchmarkComparison{
			StrategyReturns:  stratRets,
			BenchmarkReturns: benchRets,
		}
	}

	result.Metrics = e.analyzer.Analyze(e.cfg.InitialCapital, result.EquityValues(), result.Trades, comparison)
	result.MetricsMap = result.Metrics.Map()

	e.logger.Info("backtest complete",
		zap.String("run_id", result.RunID),
		zap.String("strategy", result.Strategy),
		zap.Strings("symbols", symbols),
		zap.Float64("final_value", result.FinalValue),
		zap.Int("trades", len(result.Trades)),
	)

	return result, nil
}

// execute translates one bar's signals into fills. Sells run before buys so
// freed cash is investable in the same step; buys are then sized according
// to the configured mode. Buy quantities are clipped to what cash affords,
// never rejected outright.
func (e *Engine) execute(pf *portfolio.Portfolio, signals []core.Signal, tradable, lastPrice map[string]float64, t time.Time) error {
	var buys []core.Signal

	for _, sig := range signals {
		price, ok := tradable[sig.Symbol]
		if !ok {
			continue // No bar for this instrument today
		}

		switch sig.Action {
		case core.ActionSell:
			if err := e.sellAll(pf, sig.Symbol, price, t); err != nil {
				return err
			}
		case core.ActionTargetWeight:
			if err := e.rebalance(pf, sig, price, lastPrice, t); err != nil {
				return err
			}
		case core.ActionBuy:
			buys = append(buys, sig)
		case core.ActionHold:
			// Nothing to do
		}
	}

	if len(buys) == 0 {
		return nil
	}

	// Sizing snapshot taken after sells so liquidation proceeds are
	// available to this bar's buys. Fixed-amount buys size themselves and
	// do not participate in the split.
	plain := 0
	for _, sig := range buys {
		if sig.Amount <= 0 {
			plain++
		}
	}
	splitBudget := 0.0
	if plain > 0 {
		splitBudget = pf.Cash() / float64(plain)
	}

	for _, sig := range buys {
		budget := pf.Cash()
		if sig.Amount > 0 {
			// Fixed-amount contribution (dollar-cost averaging)
			if sig.Amount < budget {
				budget = sig.Amount
			}
		} else if e.cfg.Sizing == SizingEqualSplit {
			if splitBudget < budget {
				budget = splitBudget
			}
		}
		if err := e.buy(pf, sig.Symbol, budget, tradable[sig.Symbol], t); err != nil {
			return err
		}
	}

	return nil
}

// buy spends up to budget on symbol at the slipped price, clipping the
// quantity so that gross plus commission never overdraws cash.
func (e *Engine) buy(pf *portfolio.Portfolio, symbol string, budget, refPrice float64, t time.Time) error {
	px := refPrice * (1 + e.cfg.SlippageRate)
	qty := budget / (px * (1 + e.cfg.CommissionRate))
	if qty <= qtyEpsilon {
		return nil
	}
	_, err := pf.ApplyBuy(t, symbol, qty, px, qty*px*e.cfg.CommissionRate)
	return err
}

// sellAll liquidates the full open position, if any. Sells never require
// cash and always succeed against an existing position.
func (e *Engine) sellAll(pf *portfolio.Portfolio, symbol string, refPrice float64, t time.Time) error {
	pos, ok := pf.Position(symbol)
	if !ok || pos.Quantity <= qtyEpsilon {
		return nil
	}
	px := refPrice * (1 - e.cfg.SlippageRate)
	_, err := pf.ApplySell(t, symbol, pos.Quantity, px, pos.Quantity*px*e.cfg.CommissionRate)
	return err
}

// rebalance computes the delta order needed to bring symbol to the target
// weight of total portfolio value.
func (e *Engine) rebalance(pf *portfolio.Portfolio, sig core.Signal, refPrice float64, lastPrice map[string]float64, t time.Time) error {
	if sig.Weight < 0 || sig.Weight > 1 {
		return core.WrapError(core.ErrInvalidOrder,
			fmt.Errorf("target weight for %s out of [0,1]: %f", sig.Symbol, sig.Weight))
	}

	total := pf.MarkToMarket(lastPrice)
	pos, _ := pf.Position(sig.Symbol)
	delta := sig.Weight*total - pos.Quantity*refPrice

	switch {
	case delta > qtyEpsilon:
		budget := pf.Cash()
		if delta < budget {
			budget = delta
		}
		return e.buy(pf, sig.Symbol, budget, refPrice, t)
	case delta < -qtyEpsilon:
		px := refPrice * (1 - e.cfg.SlippageRate)
		qty := -delta / px
		if qty > pos.Quantity {
			qty = pos.Quantity
		}
		if qty <= qtyEpsilon {
			return nil
		}
		_, err := pf.ApplySell(t, sig.Symbol, qty, px, qty*px*e.cfg.CommissionRate)
		return err
	}
	return nil
}

func (e *Engine) refPrice(bar core.Bar) float64 {
	if e.cfg.PriceRef == PriceRefOpen {
		return bar.Open
	}
	return bar.Close
}

// validateSeries checks every series and that their date ranges overlap.
// Symbols keep the caller's order so signal processing is deterministic.
func validateSeries(series []core.PriceSeries) ([]string, map[string][]core.Bar, error) {
	if len(series) == 0 {
		return nil, nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("no price series supplied"))
	}

	symbols := make([]string, 0, len(series))
	bySymbol := make(map[string][]core.Bar, len(series))

	var latestStart, earliestEnd time.Time
	for i, s := range series {
		if err := s.Validate(); err != nil {
			return nil, nil, err
		}
		if _, dup := bySymbol[s.Symbol]; dup {
			return nil, nil, core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("duplicate price series for %s", s.Symbol))
		}
		symbols = append(symbols, s.Symbol)
		bySymbol[s.Symbol] = s.Bars

		if i == 0 || s.Start().After(latestStart) {
			latestStart = s.Start()
		}
		if i == 0 || s.End().Before(earliestEnd) {
			earliestEnd = s.End()
		}
	}

	if latestStart.After(earliestEnd) {
		return nil, nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("price series date ranges are disjoint"))
	}

	return symbols, bySymbol, nil
}

// sharedIndex merges all series timestamps into one ascending index.
func sharedIndex(series []core.PriceSeries) []time.Time {
	seen := make(map[int64]time.Time)
	for _, s := range series {
		for _, b := range s.Bars {
			seen[b.Time.UnixNano()] = b.Time
		}
	}
	index := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		index = append(index, t)
	}
	sort.Slice(index, func(i, j int) bool { return index[i].Before(index[j]) })
	return index
}

func seriesReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, values[i]/values[i-1]-1)
	}
	return returns
}

// alignReturns pairs strategy and benchmark returns by date: both series are
// sampled at the bars the equity curve and the benchmark share, so each
// return pair covers the same interval even when the benchmark is missing
// bars mid-window.
func alignReturns(curve []EquityPoint, benchmark core.PriceSeries, ref PriceRef) (stratRets, benchRets []float64) {
	benchPrice := make(map[int64]float64, len(benchmark.Bars))
	for _, b := range benchmark.Bars {
		if ref == PriceRefOpen {
			benchPrice[b.Time.UnixNano()] = b.Open
		} else {
			benchPrice[b.Time.UnixNano()] = b.Close
		}
	}

	var equity, prices []float64
	for _, pt := range curve {
		price, ok := benchPrice[pt.Time.UnixNano()]
		if !ok {
			continue
		}
		equity = append(equity, pt.Value)
		prices = append(prices, price)
	}
	return seriesReturns(equity), seriesReturns(prices)
}
