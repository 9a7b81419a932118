package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/basarometer/sourcectl/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "sourcectl",
	Short: "Price source discovery, reliability and conflict management",
	Long:  "Discovers and validates retail price sources, scores their reliability, resolves price conflicts between them and tunes the extraction patterns used to recognise them.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
