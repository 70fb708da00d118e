package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "quantbt",
	Short: "quantbt - trading strategy backtesting engine",
	Long: `quantbt simulates trading strategies against historical price data,
tracks the resulting portfolio bar by bar and reports performance metrics.
Runs can be compared across strategies and swept over parameter grids.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
