package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tupyy/browser-runner/internal/config"
	"github.com/tupyy/browser-runner/internal/executor"
	srvErrors "github.com/tupyy/browser-runner/pkg/errors"
)

func NewWorkerCommand() *cobra.Command {
	var browser string
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Worker process: reads tests on stdin and replies on stdout",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfiguration(cmd, v)
			if err != nil {
				return err
			}
			logger, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			b, ok := cfg.Browsers[browser]
			if !ok {
				return srvErrors.NewUnknownBrowserError(browser)
			}

			// Ctrl-C reaches the whole process group; the parent decides when
			// workers stop by closing stdin.
			signal.Ignore(os.Interrupt)
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
			defer stop()

			zap.S().Named("worker").Debugw("worker started", "browser", browser, "pid", os.Getpid())
			ex := executor.New(b.BrowserName, cfg.Runner.GridURL, cfg.Worker.Command, os.Stderr, executor.WithTimeout(cfg.Worker.Timeout))
			return ex.Serve(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&browser, "browser", "", "Browser this worker runs tests for")
	_ = cmd.MarkFlagRequired("browser")

	return cmd
}
