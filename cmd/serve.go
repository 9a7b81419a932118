package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/basarometer/sourcectl/internal/api"
	"github.com/basarometer/sourcectl/internal/jobs"
)

var (
	servePort int
	serveJobs bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin and collaborator HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		srvCfg := cfg.Server
		if servePort != 0 {
			srvCfg.Port = servePort
		}

		handler := api.NewServer(api.Services{
			Discovery:   env.Discovery,
			Queue:       env.Queue,
			Reliability: env.Reliability,
			Conflicts:   env.Conflicts,
			Learning:    env.Learner,
			Patterns:    env.Patterns,
		}, srvCfg)

		if serveJobs {
			runner := jobs.NewRunner(env.Conflicts, env.Learner, cfg.Jobs,
				jobs.WithPatternReload(env.Discovery.RefreshPatterns))
			go runner.Run(ctx)
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", srvCfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", srvCfg.Port), zap.Bool("jobs", serveJobs))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveJobs, "jobs", false, "also run the periodic conflict and pattern jobs")
	rootCmd.AddCommand(serveCmd)
}
