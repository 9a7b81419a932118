package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/basarometer/sourcectl/internal/discovery"
	"github.com/basarometer/sourcectl/internal/heuristics"
	"github.com/basarometer/sourcectl/internal/intake"
	"github.com/basarometer/sourcectl/internal/model"
	"github.com/basarometer/sourcectl/internal/patterns"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover, validate and review price sources",
}

// -- discover run --

var discoverRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a discovery session over a candidate file (csv, json or xlsx)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		file, _ := cmd.Flags().GetString("file")
		manual, _ := cmd.Flags().GetBool("manual")

		candidates, err := intake.ReadCandidatesFile(ctx, file)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			fmt.Fprintln(os.Stderr, "No candidates found.")
			return nil
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var opts []discovery.SessionOption
		if manual {
			opts = append(opts, discovery.Manual())
		}

		res, err := env.Discovery.RunDiscoverySession(ctx, candidates, opts...)
		if err != nil {
			return eris.Wrap(err, "discover run")
		}

		fmt.Printf("Session %s: %d candidates, %d valid, %d inserted, %d duplicates, avg confidence %.2f\n",
			res.SessionID, res.Total, res.Valid, res.Inserted, res.Duplicates, res.AvgConfidence)
		formatSummary(os.Stdout, "Outcomes", res.Summary)
		return nil
	},
}

// -- discover validate --

var discoverValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate one candidate without storing it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		var c discovery.Candidate
		c.URL, _ = cmd.Flags().GetString("url")
		c.Name, _ = cmd.Flags().GetString("name")
		c.Location, _ = cmd.Flags().GetString("location")
		c.Description, _ = cmd.Flags().GetString("description")

		if err := cfg.Validate("discovery"); err != nil {
			return err
		}
		tables, err := heuristics.Load(cfg.Discovery.KeywordFile)
		if err != nil {
			return err
		}

		// Validation needs no database; patterns come from the tables alone.
		mem := patterns.NewMemoryStore()
		if _, err := patterns.SeedFromTables(ctx, mem, tables, cfg.Discovery.BusinessType); err != nil {
			return err
		}
		matcher, err := patterns.Load(ctx, mem, patterns.Filter{BusinessType: cfg.Discovery.BusinessType})
		if err != nil {
			return err
		}

		v := discovery.NewValidator(tables, matcher, cfg.Discovery)
		return printJSON(os.Stdout, v.ValidateSingleSource(c))
	},
}

// -- discover approve|reject|mark-validated --

type decision func(ctx context.Context, q *discovery.Queue, id, notes string) error

func decisionCmd(use, short, done string, apply decision) *cobra.Command {
	c := &cobra.Command{
		Use:   use + " <source-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			notes, _ := cmd.Flags().GetString("notes")

			env, err := initEnv(ctx)
			if err != nil {
				return err
			}
			defer env.Close()

			if err := apply(ctx, env.Queue, args[0], notes); err != nil {
				return err
			}
			fmt.Printf("Source %s %s.\n", args[0], done)
			return nil
		},
	}
	c.Flags().String("notes", "", "admin notes stored with the decision")
	return c
}

var discoverApproveCmd = decisionCmd("approve", "Approve a discovered source", "approved",
	func(ctx context.Context, q *discovery.Queue, id, notes string) error { return q.Approve(ctx, id, notes) })

var discoverRejectCmd = decisionCmd("reject", "Reject a discovered source", "rejected",
	func(ctx context.Context, q *discovery.Queue, id, notes string) error { return q.Reject(ctx, id, notes) })

var discoverMarkValidatedCmd = decisionCmd("mark-validated", "Mark a discovered source as validated", "marked validated",
	func(ctx context.Context, q *discovery.Queue, id, notes string) error { return q.MarkValidated(ctx, id, notes) })

// -- discover prioritize --

var discoverPrioritizeCmd = &cobra.Command{
	Use:   "prioritize <source-id>",
	Short: "Boost a source's reliability score",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		notes, _ := cmd.Flags().GetString("notes")

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		score, err := env.Queue.Prioritize(ctx, args[0], notes)
		if err != nil {
			return err
		}
		fmt.Printf("Source %s reliability score is now %.1f.\n", args[0], score)
		return nil
	},
}

// -- discover list --

var discoverListCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered sources, best first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		var opts discovery.ListOpts
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			st, err := model.ParseSourceStatus(s)
			if err != nil {
				return err
			}
			opts.Status = &st
		}
		if cmd.Flags().Changed("min-score") {
			minScore, _ := cmd.Flags().GetFloat64("min-score")
			opts.MinScore = &minScore
		}
		opts.Limit, _ = cmd.Flags().GetInt("limit")

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sources, err := env.Queue.List(ctx, opts)
		if err != nil {
			return eris.Wrap(err, "discover list")
		}
		if len(sources) == 0 {
			fmt.Fprintln(os.Stderr, "No sources found.")
			return nil
		}
		formatSources(os.Stdout, sources)
		return nil
	},
}

// -- discover stats --

var discoverStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count sources by status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		counts, err := env.Queue.Stats(ctx)
		if err != nil {
			return eris.Wrap(err, "discover stats")
		}
		formatStatusCounts(os.Stdout, counts)
		return nil
	},
}

// -- discover sessions / performance --

var discoverSessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent discovery sessions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		days, _ := cmd.Flags().GetInt("days")
		limit, _ := cmd.Flags().GetInt("limit")

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sessions, err := env.Discovery.ListSessions(ctx, days, limit)
		if err != nil {
			return eris.Wrap(err, "discover sessions")
		}
		if len(sessions) == 0 {
			fmt.Fprintln(os.Stderr, "No sessions found.")
			return nil
		}
		formatSessions(os.Stdout, sessions)
		return nil
	},
}

var discoverPerformanceCmd = &cobra.Command{
	Use:   "performance",
	Short: "Summarize discovery sessions and reliability trends over a window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		days, _ := cmd.Flags().GetInt("days")

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		perf, err := env.Discovery.Performance(ctx, days)
		if err != nil {
			return eris.Wrap(err, "discover performance")
		}
		trends, err := env.Reliability.Trends(ctx, perf.Since)
		if err != nil {
			return eris.Wrap(err, "discover performance")
		}
		return printJSON(os.Stdout, map[string]any{
			"performance": perf,
			"reliability": trends,
		})
	},
}

func init() {
	discoverRunCmd.Flags().String("file", "", "candidate file (.csv, .json or .xlsx)")
	_ = discoverRunCmd.MarkFlagRequired("file")
	discoverRunCmd.Flags().Bool("manual", false, "record the session as admin-submitted")

	discoverValidateCmd.Flags().String("url", "", "candidate URL")
	_ = discoverValidateCmd.MarkFlagRequired("url")
	discoverValidateCmd.Flags().String("name", "", "business name")
	discoverValidateCmd.Flags().String("location", "", "business location")
	discoverValidateCmd.Flags().String("description", "", "free-text description")

	discoverPrioritizeCmd.Flags().String("notes", "", "admin notes stored with the boost")

	discoverListCmd.Flags().String("status", "", "filter by status (discovered, validated, approved, rejected)")
	discoverListCmd.Flags().Float64("min-score", 0, "minimum reliability score")
	discoverListCmd.Flags().Int("limit", 50, "maximum rows")

	discoverSessionsCmd.Flags().Int("days", discovery.DefaultPerformanceDays, "look back this many days")
	discoverSessionsCmd.Flags().Int("limit", 50, "maximum rows (0 for all)")
	discoverPerformanceCmd.Flags().Int("days", discovery.DefaultPerformanceDays, "look back this many days")

	discoverCmd.AddCommand(
		discoverRunCmd,
		discoverValidateCmd,
		discoverApproveCmd,
		discoverRejectCmd,
		discoverMarkValidatedCmd,
		discoverPrioritizeCmd,
		discoverListCmd,
		discoverStatsCmd,
		discoverSessionsCmd,
		discoverPerformanceCmd,
	)
	rootCmd.AddCommand(discoverCmd)
}
