package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/newthinker/quantbt/internal/backtest"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	optimizeSymbols   []string
	optimizeFrom      string
	optimizeTo        string
	optimizeBenchmark string
	optimizeGrid      []string
	optimizeMetric    string
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize [strategy]",
	Short: "Sweep a strategy over a parameter grid",
	Long: `Sweep a strategy over every combination of the given parameter grid,
score each run by the chosen metric and report the best combination.`,
	Args: cobra.ExactArgs(1),
	RunE: runOptimizeCmd,
}

func init() {
	optimizeCmd.Flags().StringSliceVar(&optimizeSymbols, "symbols", nil, "Symbols to trade, comma separated (required)")
	optimizeCmd.Flags().StringVar(&optimizeFrom, "from", "", "Start date YYYY-MM-DD (required)")
	optimizeCmd.Flags().StringVar(&optimizeTo, "to", "", "End date YYYY-MM-DD (required)")
	optimizeCmd.Flags().StringVar(&optimizeBenchmark, "benchmark", "", "Benchmark symbol for relative metrics")
	optimizeCmd.Flags().StringArrayVar(&optimizeGrid, "grid", nil, "Parameter values as key=v1,v2,v3, repeatable (required)")
	optimizeCmd.Flags().StringVar(&optimizeMetric, "metric", "sharpe_ratio", "Metric to maximize")

	optimizeCmd.MarkFlagRequired("symbols")
	optimizeCmd.MarkFlagRequired("from")
	optimizeCmd.MarkFlagRequired("to")
	optimizeCmd.MarkFlagRequired("grid")

	rootCmd.AddCommand(optimizeCmd)
}

func runOptimizeCmd(cmd *cobra.Command, args []string) error {
	from, to, err := parseDateRange(optimizeFrom, optimizeTo)
	if err != nil {
		return err
	}

	grid, err := parseGrid(optimizeGrid)
	if err != nil {
		return err
	}

	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	ctx := cmd.Context()
	series, benchmark, err := fetchSeries(ctx, rt.feed, optimizeSymbols, optimizeBenchmark, from, to)
	if err != nil {
		return err
	}

	opt, err := rt.engine.Optimize(ctx, args[0], grid, optimizeMetric, series, benchmark, rt.cfg.Engine.Workers)
	if err != nil {
		return err
	}

	if err := rt.results.Save(ctx, opt.BestResult); err != nil {
		rt.log.Warn("failed to archive run", zap.Error(err))
	}

	printOptimization(os.Stdout, opt, optimizeMetric)
	return nil
}

// parseGrid turns repeated key=v1,v2 flags into a parameter grid.
func parseGrid(pairs []string) (backtest.ParamGrid, error) {
	grid := make(backtest.ParamGrid, len(pairs))
	for _, pair := range pairs {
		key, list, ok := strings.Cut(pair, "=")
		if !ok || key == "" || list == "" {
			return nil, fmt.Errorf("invalid grid entry %q (expected key=v1,v2,...)", pair)
		}
		values := strings.Split(list, ",")
		coerced := make([]any, 0, len(values))
		for _, v := range values {
			coerced = append(coerced, coerceValue(strings.TrimSpace(v)))
		}
		grid[key] = coerced
	}
	return grid, nil
}
