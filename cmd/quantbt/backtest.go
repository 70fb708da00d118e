package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/quantbt/internal/core"
	"github.com/newthinker/quantbt/internal/feed"
	"github.com/newthinker/quantbt/internal/strategy/factory"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	backtestSymbols   []string
	backtestFrom      string
	backtestTo        string
	backtestBenchmark string
	backtestParams    []string
)

var backtestCmd = &cobra.Command{
	Use:   "backtest [strategy]",
	Short: "Run a strategy against historical data",
	Long:  "Run a strategy against historical data, archive the run and print a performance report",
	Args:  cobra.ExactArgs(1),
	RunE:  runBacktestCmd,
}

func init() {
	backtestCmd.Flags().StringSliceVar(&backtestSymbols, "symbols", nil, "Symbols to trade, comma separated (required)")
	backtestCmd.Flags().StringVar(&backtestFrom, "from", "", "Start date YYYY-MM-DD (required)")
	backtestCmd.Flags().StringVar(&backtestTo, "to", "", "End date YYYY-MM-DD (required)")
	backtestCmd.Flags().StringVar(&backtestBenchmark, "benchmark", "", "Benchmark symbol for relative metrics")
	backtestCmd.Flags().StringSliceVar(&backtestParams, "param", nil, "Strategy parameter as key=value, repeatable")

	backtestCmd.MarkFlagRequired("symbols")
	backtestCmd.MarkFlagRequired("from")
	backtestCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(backtestCmd)
}

func runBacktestCmd(cmd *cobra.Command, args []string) error {
	from, to, err := parseDateRange(backtestFrom, backtestTo)
	if err != nil {
		return err
	}

	params, err := parseParams(backtestParams)
	if err != nil {
		return err
	}

	strat, err := factory.New(args[0], params)
	if err != nil {
		return err
	}

	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	ctx := cmd.Context()
	series, benchmark, err := fetchSeries(ctx, rt.feed, backtestSymbols, backtestBenchmark, from, to)
	if err != nil {
		return err
	}

	result, err := rt.engine.Run(ctx, strat, series, benchmark)
	if err != nil {
		return err
	}

	if err := rt.results.Save(ctx, result); err != nil {
		rt.log.Warn("failed to archive run", zap.Error(err))
	}

	printReport(os.Stdout, result)
	return nil
}

// parseDateRange parses the from/to flags and checks their order.
func parseDateRange(fromStr, toStr string) (time.Time, time.Time, error) {
	from, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from date format (expected YYYY-MM-DD): %w", err)
	}
	to, err := time.Parse("2006-01-02", toStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to date format (expected YYYY-MM-DD): %w", err)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date must be after start date")
	}
	return from, to, nil
}

// parseParams turns repeated key=value flags into strategy parameters.
// Values that look numeric become numbers so period and amount parameters
// arrive typed.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q (expected key=value)", pair)
		}
		params[key] = coerceValue(value)
	}
	return params, nil
}

func coerceValue(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

// fetchSeries loads history for every traded symbol plus the optional
// benchmark.
func fetchSeries(ctx context.Context, p feed.Provider, symbols []string, benchmark string, from, to time.Time) ([]core.PriceSeries, *core.PriceSeries, error) {
	series, err := feed.FetchAll(ctx, p, symbols, from, to)
	if err != nil {
		return nil, nil, err
	}
	if benchmark == "" {
		return series, nil, nil
	}
	bench, err := p.FetchHistory(ctx, benchmark, from, to)
	if err != nil {
		return nil, nil, err
	}
	return series, &bench, nil
}
