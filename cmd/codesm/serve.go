package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"codesm/internal/agent"
	"codesm/internal/observability"
	srvhttp "codesm/internal/server/http"
	"codesm/internal/shared/logging"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the agent over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, workDir, err := loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ServerAddr = addr
			}
			logger := logging.NewComponentLogger("server")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			metrics, err := observability.NewMetricsCollector(cfg.Metrics, logger)
			if err != nil {
				return err
			}
			tracer, err := observability.NewTracerProvider(cfg.Tracing)
			if err != nil {
				return err
			}

			a, err := agent.New(ctx, cfg, workDir, logger)
			if err != nil {
				return err
			}
			defer a.Cleanup()
			a.SetMetrics(metrics)
			metrics.IncrementActiveSessions(ctx)

			server := srvhttp.New(a, cfg.ServerAddr, logger)
			errCh := make(chan error, 1)
			go func() { errCh <- server.ListenAndServe() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			metrics.DecrementActiveSessions(shutdownCtx)
			_ = metrics.Shutdown(shutdownCtx)
			_ = tracer.Shutdown(shutdownCtx)
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (default from config)")
	return cmd
}
