package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/basarometer/sourcectl/internal/patterns"
	"github.com/basarometer/sourcectl/internal/report"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Inspect and tune extraction patterns",
}

var patternsPerformanceCmd = &cobra.Command{
	Use:   "performance",
	Short: "Show usage statistics per pattern type",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		out, _ := cmd.Flags().GetString("out")

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		perf, err := env.Learner.GetPatternPerformance(ctx)
		if err != nil {
			return err
		}
		if out == "" {
			return printJSON(os.Stdout, perf)
		}

		f, err := os.Create(out)
		if err != nil {
			return eris.Wrapf(err, "create %s", out)
		}
		if err := report.WritePatternPerformanceXLSX(f, perf); err != nil {
			_ = f.Close()
			return err
		}
		return eris.Wrapf(f.Close(), "close %s", out)
	},
}

var patternsOptimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Deactivate failing patterns and raise confidence of reliable ones",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Learner.OptimizePatterns(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Examined %d patterns: %d deactivated, %d boosted.\n", res.Examined, res.Deactivated, res.Boosted)
		formatSummary(os.Stdout, "Actions", res.Summary)
		return nil
	},
}

var patternsRecordCmd = &cobra.Command{
	Use:   "record <pattern-id>",
	Short: "Record one use of a pattern",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		success, _ := cmd.Flags().GetBool("success")

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := patterns.RecordUsage(ctx, env.Patterns, args[0], success); err != nil {
			return err
		}
		fmt.Printf("Recorded use of pattern %s (success=%t).\n", args[0], success)
		return nil
	},
}

func init() {
	patternsPerformanceCmd.Flags().String("out", "", "write an XLSX workbook instead of JSON")
	patternsRecordCmd.Flags().Bool("success", false, "the use produced a correct match")

	patternsCmd.AddCommand(patternsPerformanceCmd, patternsOptimizeCmd, patternsRecordCmd)
	rootCmd.AddCommand(patternsCmd)
}
