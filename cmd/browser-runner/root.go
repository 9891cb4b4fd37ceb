package main

import (
	"fmt"

	"github.com/jzelinskie/cobrautil/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tupyy/browser-runner/internal/config"
)

const (
	flagConfig    = "config"
	flagLogLevel  = "log-level"
	flagLogFormat = "log-format"
)

func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "browser-runner",
		Short:         "Run browser tests on a pool of long-lived workers",
		SilenceUsage:  true,
		SilenceErrors: false,
		// flags left unset on the command line are filled from BROWSER_RUNNER_* variables
		PersistentPreRunE: cobrautil.SyncViperPreRunE(config.EnvPrefix),
	}

	root.PersistentFlags().String(flagConfig, "", "Path to the configuration file")
	root.PersistentFlags().String(flagLogLevel, "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().String(flagLogFormat, "", "Log format (console, json)")

	root.AddCommand(
		NewRunCommand(),
		NewServeCommand(),
		NewWorkerCommand(),
	)
	return root
}

// loadConfiguration reads the configuration file and overlays the flags bound in v.
func loadConfiguration(cmd *cobra.Command, v *viper.Viper) (*config.Configuration, error) {
	if err := v.BindPFlag("log-level", cmd.Flags().Lookup(flagLogLevel)); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("log-format", cmd.Flags().Lookup(flagLogFormat)); err != nil {
		return nil, err
	}

	path, _ := cmd.Flags().GetString(flagConfig)
	cfg, err := config.Load(v, path)
	if err != nil {
		return nil, err
	}
	// an unset flag binds an empty string over the default
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setupLogger installs the global zap logger. Logs always go to stderr:
// stdout of a worker process carries the protocol.
func setupLogger(cfg *config.Configuration) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	var zcfg zap.Config
	if cfg.LogFormat == "json" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}
