package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/newthinker/quantbt/internal/strategy/factory"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Archived run operations",
	Long:  `Commands for browsing and managing archived backtest runs.`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived runs",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show the full report for an archived run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete [run-id]",
	Short: "Delete an archived run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsDelete,
}

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List available strategies",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(strings.Join(factory.Available(), "\n"))
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)

	rootCmd.AddCommand(strategiesCmd)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	summaries, err := rt.results.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	if len(summaries) == 0 {
		fmt.Println("No archived runs found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTRATEGY\tSYMBOLS\tPERIOD\tFINAL VALUE\tRETURN\t")
	fmt.Fprintln(w, "------\t--------\t-------\t------\t-----------\t------\t")

	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s to %s\t%.2f\t%.2f%%\t\n",
			s.RunID, s.Strategy, strings.Join(s.Symbols, ","),
			s.Start.Format("2006-01-02"), s.End.Format("2006-01-02"),
			s.FinalValue, s.TotalReturn*100)
	}
	w.Flush()

	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	result, err := rt.results.Load(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("loading run: %w", err)
	}

	printReport(os.Stdout, result)
	return nil
}

func runRunsDelete(cmd *cobra.Command, args []string) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	if err := rt.results.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}

	fmt.Printf("Deleted run %s\n", args[0])
	return nil
}
