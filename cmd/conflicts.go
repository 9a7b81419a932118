package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/basarometer/sourcectl/internal/conflicts"
	"github.com/basarometer/sourcectl/internal/intake"
	"github.com/basarometer/sourcectl/internal/model"
	"github.com/basarometer/sourcectl/internal/report"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Detect and resolve price conflicts between sources",
}

var conflictsIngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load a JSON batch of price observations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		file, _ := cmd.Flags().GetString("file")

		obs, err := intake.ReadObservationsFile(ctx, file)
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Conflicts.IngestObservations(ctx, obs)
		if err != nil {
			return err
		}
		fmt.Printf("Ingested %d observations.\n", n)
		return nil
	},
}

var conflictsDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Record conflicts between current observations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		created, err := env.Conflicts.DetectPriceConflicts(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Detected %d new conflicts.\n", len(created))
		if len(created) > 0 {
			formatConflicts(os.Stdout, created)
		}
		return nil
	},
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id>",
	Short: "Resolve one conflict by source reliability",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		method, err := model.ParseResolutionMethod(stringFlag(cmd, "method"))
		if err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Conflicts.ResolveConflict(ctx, args[0], method)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, res)
	},
}

var conflictsManualCmd = &cobra.Command{
	Use:   "manual <conflict-id>",
	Short: "Resolve one conflict with an admin-chosen price",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		price, _ := cmd.Flags().GetFloat64("price")
		notes, _ := cmd.Flags().GetString("notes")
		admin, _ := cmd.Flags().GetString("admin")

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		applied, err := env.Conflicts.ResolveManually(ctx, args[0], price, notes, admin)
		if err != nil {
			return err
		}
		if !applied {
			fmt.Fprintf(os.Stderr, "Conflict %s was already resolved.\n", args[0])
			return nil
		}
		fmt.Printf("Conflict %s resolved at %.2f.\n", args[0], price)
		return nil
	},
}

var conflictsResolveAllCmd = &cobra.Command{
	Use:   "resolve-all",
	Short: "Resolve every pending conflict by source reliability",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sum, err := env.Conflicts.ResolveAllPendingConflicts(ctx)
		if err != nil {
			return err
		}
		formatSummary(os.Stdout, "Resolved", *sum)
		return nil
	},
}

var conflictsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conflicts, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		var opts conflicts.ListOpts
		if cmd.Flags().Changed("resolved") {
			resolved, _ := cmd.Flags().GetBool("resolved")
			opts.Resolved = &resolved
		}
		opts.CatalogItemID, _ = cmd.Flags().GetString("item")
		opts.Limit, _ = cmd.Flags().GetInt("limit")

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		cs, err := env.Conflicts.List(ctx, opts)
		if err != nil {
			return eris.Wrap(err, "conflicts list")
		}
		if len(cs) == 0 {
			fmt.Fprintln(os.Stderr, "No conflicts found.")
			return nil
		}
		formatConflicts(os.Stdout, cs)
		return nil
	},
}

var conflictsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show conflict resolution statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		stats, err := env.Conflicts.GetConflictResolutionStats(ctx)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, stats)
	},
}

var conflictsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export conflicts and resolution stats to an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		out, _ := cmd.Flags().GetString("out")
		limit, _ := cmd.Flags().GetInt("limit")

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		cs, err := env.Conflicts.List(ctx, conflicts.ListOpts{Limit: limit})
		if err != nil {
			return eris.Wrap(err, "conflicts export")
		}
		stats, err := env.Conflicts.GetConflictResolutionStats(ctx)
		if err != nil {
			return err
		}

		f, err := os.Create(out)
		if err != nil {
			return eris.Wrapf(err, "create %s", out)
		}
		if err := report.WriteConflictsXLSX(f, cs, stats); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrapf(err, "close %s", out)
		}
		fmt.Printf("Wrote %d conflicts to %s.\n", len(cs), out)
		return nil
	},
}

func stringFlag(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func init() {
	conflictsIngestCmd.Flags().String("file", "", "JSON array of observations")
	_ = conflictsIngestCmd.MarkFlagRequired("file")

	conflictsResolveCmd.Flags().String("method", "algorithm", "resolution method")

	conflictsManualCmd.Flags().Float64("price", 0, "resolved price")
	conflictsManualCmd.Flags().String("notes", "", "reason for the chosen price")
	conflictsManualCmd.Flags().String("admin", "", "admin identifier (default \"admin\")")
	_ = conflictsManualCmd.MarkFlagRequired("price")
	_ = conflictsManualCmd.MarkFlagRequired("notes")

	conflictsListCmd.Flags().Bool("resolved", false, "filter by resolution state")
	conflictsListCmd.Flags().String("item", "", "filter by catalog item")
	conflictsListCmd.Flags().Int("limit", 50, "maximum rows")

	conflictsExportCmd.Flags().String("out", "conflicts.xlsx", "output workbook")
	conflictsExportCmd.Flags().Int("limit", 1000, "maximum conflicts")

	conflictsCmd.AddCommand(
		conflictsIngestCmd,
		conflictsDetectCmd,
		conflictsResolveCmd,
		conflictsManualCmd,
		conflictsResolveAllCmd,
		conflictsListCmd,
		conflictsStatsCmd,
		conflictsExportCmd,
	)
	rootCmd.AddCommand(conflictsCmd)
}
