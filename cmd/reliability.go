package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/basarometer/sourcectl/internal/reliability"
)

var reliabilityCmd = &cobra.Command{
	Use:   "reliability",
	Short: "Score sources and inspect their reliability history",
}

var reliabilityScoreCmd = &cobra.Command{
	Use:   "score <source-id>",
	Short: "Record a new reliability measurement for a source",
	Long:  "Each dimension is 0-100. Omitted dimensions count as 0.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		in := reliability.RawMetricInputs{
			DataAccuracy:       floatFlag(cmd, "accuracy"),
			TextQuality:        floatFlag(cmd, "text-quality"),
			DomainRelevance:    floatFlag(cmd, "relevance"),
			BusinessLegitimacy: floatFlag(cmd, "legitimacy"),
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		score, err := env.Reliability.CalculateReliabilityScore(ctx, args[0], in)
		if err != nil {
			return err
		}
		fmt.Printf("Source %s reliability score: %.1f\n", args[0], score)
		return nil
	},
}

var reliabilityHistoryCmd = &cobra.Command{
	Use:   "history <source-id>",
	Short: "Show recent reliability measurements and the trend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		history, err := env.Reliability.GetSourceReliabilityHistory(ctx, args[0])
		if err != nil {
			return err
		}
		trend, err := env.Reliability.SourceTrend(ctx, args[0])
		if err != nil {
			return err
		}

		return printJSON(os.Stdout, map[string]any{
			"source_id": args[0],
			"history":   history,
			"trend":     trend,
		})
	},
}

var reliabilityTrendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Compare reliability across all sources over a window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		days, _ := cmd.Flags().GetInt("days")
		if days <= 0 {
			return eris.Errorf("--days must be positive, got %d", days)
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		trends, err := env.Reliability.Trends(ctx, time.Now().UTC().AddDate(0, 0, -days))
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, trends)
	},
}

// floatFlag returns the flag value, or nil when it was not set.
func floatFlag(cmd *cobra.Command, name string) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetFloat64(name)
	return &v
}

func init() {
	reliabilityScoreCmd.Flags().Float64("accuracy", 0, "data accuracy (0-100)")
	reliabilityScoreCmd.Flags().Float64("text-quality", 0, "text quality (0-100)")
	reliabilityScoreCmd.Flags().Float64("relevance", 0, "domain relevance (0-100)")
	reliabilityScoreCmd.Flags().Float64("legitimacy", 0, "business legitimacy (0-100)")

	reliabilityTrendsCmd.Flags().Int("days", int(reliability.DefaultTrendWindow/(24*time.Hour)), "look back this many days")

	reliabilityCmd.AddCommand(reliabilityScoreCmd, reliabilityHistoryCmd, reliabilityTrendsCmd)
	rootCmd.AddCommand(reliabilityCmd)
}
