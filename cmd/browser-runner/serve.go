package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tupyy/browser-runner/internal/config"
	"github.com/tupyy/browser-runner/internal/handlers"
	"github.com/tupyy/browser-runner/internal/metrics"
	"github.com/tupyy/browser-runner/internal/server"
	"github.com/tupyy/browser-runner/internal/services"
	"github.com/tupyy/browser-runner/pkg/grid"
)

const shutdownTimeout = 30 * time.Second

func NewServeCommand() *cobra.Command {
	var local bool
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep the worker pools alive and accept runs over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlag("server.http-port", cmd.Flags().Lookup("http-port")); err != nil {
				return err
			}

			cfg, err := loadConfiguration(cmd, v)
			if err != nil {
				return err
			}
			logger, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return serve(cmd, cfg, local)
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "Run tests in-process instead of in worker processes")
	cmd.Flags().Int("http-port", 8000, "HTTP server listen port")

	return cmd
}

func serve(cmd *cobra.Command, cfg *config.Configuration, local bool) error {
	zap.S().Named("cli").Infow("configuration loaded", "config", cfg.DebugMap())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Runner.GridURL != "" {
		if err := grid.NewProbe(cfg.Runner.GridURL, nil).WaitReady(ctx, cfg.Runner.GridWaitTimeout); err != nil {
			return err
		}
	}

	configPath, _ := cmd.Flags().GetString(flagConfig)
	pools, cleanup, err := buildPools(cfg, configPath, cfg.BrowserNames(), local)
	if err != nil {
		return err
	}
	defer cleanup()

	collector := metrics.NewCollector()
	runner := services.NewRunner(pools, services.WithListener(collector))

	srv, err := server.NewServer(cfg, func(router *gin.RouterGroup) {
		handlers.RegisterHandlers(router, handlers.New(runner))
	}, server.WithMetrics(collector.Registry()))
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	runner.Stop()
	if _, err := runner.Wait(shutdownCtx); err != nil {
		zap.S().Named("cli").Warnw("run did not finish before shutdown", "error", err)
	}
	return srv.Stop(shutdownCtx)
}
