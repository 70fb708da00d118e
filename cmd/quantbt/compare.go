package main

import (
	"os"

	"github.com/newthinker/quantbt/internal/strategy"
	"github.com/newthinker/quantbt/internal/strategy/factory"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	compareStrategies []string
	compareSymbols    []string
	compareFrom       string
	compareTo         string
	compareBenchmark  string
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Run several strategies on the same data and rank them",
	Long:  "Run several strategies with default parameters on the same data and print a comparison table",
	RunE:  runCompareCmd,
}

func init() {
	compareCmd.Flags().StringSliceVar(&compareStrategies, "strategies", nil, "Strategies to compare, comma separated (required)")
	compareCmd.Flags().StringSliceVar(&compareSymbols, "symbols", nil, "Symbols to trade, comma separated (required)")
	compareCmd.Flags().StringVar(&compareFrom, "from", "", "Start date YYYY-MM-DD (required)")
	compareCmd.Flags().StringVar(&compareTo, "to", "", "End date YYYY-MM-DD (required)")
	compareCmd.Flags().StringVar(&compareBenchmark, "benchmark", "", "Benchmark symbol for relative metrics")

	compareCmd.MarkFlagRequired("strategies")
	compareCmd.MarkFlagRequired("symbols")
	compareCmd.MarkFlagRequired("from")
	compareCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(compareCmd)
}

func runCompareCmd(cmd *cobra.Command, args []string) error {
	from, to, err := parseDateRange(compareFrom, compareTo)
	if err != nil {
		return err
	}

	strategies := make([]strategy.Strategy, 0, len(compareStrategies))
	for _, name := range compareStrategies {
		strat, err := factory.New(name, nil)
		if err != nil {
			return err
		}
		strategies = append(strategies, strat)
	}

	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	ctx := cmd.Context()
	series, benchmark, err := fetchSeries(ctx, rt.feed, compareSymbols, compareBenchmark, from, to)
	if err != nil {
		return err
	}

	results, err := rt.engine.Compare(ctx, strategies, series, benchmark, rt.cfg.Engine.Workers)
	if err != nil {
		return err
	}

	for _, result := range results {
		if err := rt.results.Save(ctx, result); err != nil {
			rt.log.Warn("failed to archive run", zap.Error(err))
		}
	}

	printComparison(os.Stdout, results)
	return nil
}
