package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/newthinker/quantbt/internal/backtest"
)

// printReport renders one run as a sectioned text report.
func printReport(w io.Writer, result *backtest.Result) {
	m := result.Metrics

	fmt.Fprintf(w, "=== %s performance report ===\n\n", result.Strategy)

	fmt.Fprintln(w, "[Run]")
	fmt.Fprintf(w, "Run ID:          %s\n", result.RunID)
	fmt.Fprintf(w, "Symbols:         %s\n", strings.Join(result.Symbols, ", "))
	fmt.Fprintf(w, "Period:          %s to %s\n",
		result.Start.Format("2006-01-02"), result.End.Format("2006-01-02"))
	fmt.Fprintf(w, "Initial capital: $%.2f\n", result.InitialCapital)
	fmt.Fprintf(w, "Final value:     $%.2f\n", result.FinalValue)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[Returns]")
	fmt.Fprintf(w, "Total return:      %.2f%%\n", m.TotalReturn*100)
	fmt.Fprintf(w, "Annualized return: %.2f%%\n", m.AnnualizedReturn*100)
	fmt.Fprintf(w, "Best day:          %.2f%%\n", m.BestDay*100)
	fmt.Fprintf(w, "Worst day:         %.2f%%\n", m.WorstDay*100)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[Risk]")
	fmt.Fprintf(w, "Volatility:   %.2f%%\n", m.Volatility*100)
	fmt.Fprintf(w, "Max drawdown: %.2f%%\n", m.MaxDrawdown*100)
	fmt.Fprintf(w, "VaR (95%%):    %.2f%%\n", m.VaR95*100)
	fmt.Fprintf(w, "CVaR (95%%):   %.2f%%\n", m.CVaR95*100)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[Risk-adjusted]")
	fmt.Fprintf(w, "Sharpe ratio:  %.2f\n", m.SharpeRatio)
	fmt.Fprintf(w, "Sortino ratio: %.2f\n", m.SortinoRatio)
	fmt.Fprintf(w, "Calmar ratio:  %.2f\n", m.CalmarRatio)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[Trades]")
	fmt.Fprintf(w, "Total trades:  %d\n", m.TotalTrades)
	fmt.Fprintf(w, "Closed trades: %d (%d won, %d lost)\n", m.ClosedTrades, m.WinningTrades, m.LosingTrades)
	fmt.Fprintf(w, "Win rate:      %.2f%%\n", m.WinRate*100)
	fmt.Fprintf(w, "Profit factor: %.2f\n", m.ProfitFactor)

	if m.HasBenchmark {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "[Versus %s]\n", result.Benchmark)
		fmt.Fprintf(w, "Alpha:             %.2f%%\n", m.Alpha*100)
		fmt.Fprintf(w, "Beta:              %.2f\n", m.Beta)
		fmt.Fprintf(w, "Correlation:       %.2f\n", m.Correlation)
		fmt.Fprintf(w, "Tracking error:    %.2f%%\n", m.TrackingError*100)
		fmt.Fprintf(w, "Information ratio: %.2f\n", m.InformationRatio)
		fmt.Fprintf(w, "Excess return:     %.2f%%\n", m.ExcessReturn*100)
	}
}

// printComparison renders a strategy comparison as a table sorted by total
// return, best first.
func printComparison(w io.Writer, results map[string]*backtest.Result) {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ri, rj := results[names[i]], results[names[j]]
		if ri.Metrics.TotalReturn != rj.Metrics.TotalReturn {
			return ri.Metrics.TotalReturn > rj.Metrics.TotalReturn
		}
		return names[i] < names[j]
	})

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tTOTAL RETURN\tANNUALIZED\tVOLATILITY\tMAX DD\tSHARPE\tWIN RATE\tTRADES")
	for _, name := range names {
		m := results[name].Metrics
		fmt.Fprintf(tw, "%s\t%.2f%%\t%.2f%%\t%.2f%%\t%.2f%%\t%.2f\t%.2f%%\t%d\n",
			name,
			m.TotalReturn*100,
			m.AnnualizedReturn*100,
			m.Volatility*100,
			m.MaxDrawdown*100,
			m.SharpeRatio,
			m.WinRate*100,
			m.TotalTrades,
		)
	}
	tw.Flush()
}

// printOptimization renders a sweep outcome.
func printOptimization(w io.Writer, opt *backtest.OptimizationResult, metric string) {
	fmt.Fprintln(w, "=== parameter sweep ===")
	fmt.Fprintf(w, "Combinations evaluated: %d (%d failed)\n", opt.Evaluated, opt.Failed)
	fmt.Fprintf(w, "Best %s: %.4f\n", metric, opt.BestScore)

	keys := make([]string, 0, len(opt.BestParams))
	for k := range opt.BestParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(w, "Best parameters:")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s = %v\n", k, opt.BestParams[k])
	}

	fmt.Fprintln(w)
	printReport(w, opt.BestResult)
}
