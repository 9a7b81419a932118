package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/basarometer/sourcectl/internal/jobs"
)

var jobsOnce bool

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Run conflict detection, resolution and pattern optimization periodically",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		runner := jobs.NewRunner(env.Conflicts, env.Learner, cfg.Jobs)
		if jobsOnce {
			return printJSON(os.Stdout, runner.RunOnce(ctx))
		}
		runner.Run(ctx)
		return nil
	},
}

func init() {
	jobsCmd.Flags().BoolVar(&jobsOnce, "once", false, "run every pass once and print the report")
	rootCmd.AddCommand(jobsCmd)
}
