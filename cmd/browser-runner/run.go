package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tupyy/browser-runner/internal/config"
	"github.com/tupyy/browser-runner/internal/models"
	"github.com/tupyy/browser-runner/internal/services"
	"github.com/tupyy/browser-runner/internal/tests"
	"github.com/tupyy/browser-runner/pkg/grid"
)

var (
	errTestsFailed  = errors.New("some tests failed")
	errTestsStopped = errors.New("run was stopped before every test ran")
)

type runOptions struct {
	testsPath     string
	browsers      []string
	local         bool
	skipGridCheck bool
}

func NewRunCommand() *cobra.Command {
	var opts runOptions
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a batch of tests on every configured browser and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlag("runner.max-retries", cmd.Flags().Lookup("max-retries")); err != nil {
				return err
			}
			if err := v.BindPFlag("runner.grid-url", cmd.Flags().Lookup("grid-url")); err != nil {
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

			return run(cmd, cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.testsPath, "tests", "", "Path to the YAML or JSON file listing the tests")
	cmd.Flags().StringSliceVar(&opts.browsers, "browser", nil, "Browsers to run (default: all configured)")
	cmd.Flags().BoolVar(&opts.local, "local", false, "Run tests in-process instead of in worker processes")
	cmd.Flags().BoolVar(&opts.skipGridCheck, "skip-grid-check", false, "Do not wait for the grid to be ready")
	cmd.Flags().Int("max-retries", 2, "Retries of a failed test")
	cmd.Flags().String("grid-url", "", "Browser grid URL")
	_ = cmd.MarkFlagRequired("tests")

	return cmd
}

func run(cmd *cobra.Command, cfg *config.Configuration, opts runOptions) error {
	zap.S().Named("cli").Debugw("configuration loaded", "config", cfg.DebugMap())

	batch, err := tests.Load(opts.testsPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Runner.GridURL != "" && !opts.skipGridCheck {
		if err := grid.NewProbe(cfg.Runner.GridURL, nil).WaitReady(ctx, cfg.Runner.GridWaitTimeout); err != nil {
			return err
		}
	}

	browsers := opts.browsers
	if len(browsers) == 0 {
		browsers = cfg.BrowserNames()
	}

	configPath, _ := cmd.Flags().GetString(flagConfig)
	pools, cleanup, err := buildPools(cfg, configPath, browsers, opts.local)
	if err != nil {
		return err
	}
	defer cleanup()

	out := newPrinter(cmd.OutOrStdout())
	runner := services.NewRunner(pools, services.WithListener(out))

	if _, err := runner.Start(batch); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}

	go func() {
		<-ctx.Done()
		runner.Stop()
	}()

	// Wait is not bound to ctx: after a stop, in-flight tests still report.
	status, err := runner.Wait(context.Background())
	if err != nil {
		return err
	}
	out.Summary(status)

	return runError(status)
}

// runError maps the final status of a run to the command result.
func runError(status models.RunStatus) error {
	switch {
	case status.Failed():
		return errTestsFailed
	case status.State == models.RunStateStopped || status.NotRun() > 0:
		return errTestsStopped
	}
	return nil
}
