package main

import (
	"fmt"
	"os"
	"os/exec"

	"go.uber.org/zap"

	"github.com/tupyy/browser-runner/internal/config"
	"github.com/tupyy/browser-runner/internal/executor"
	"github.com/tupyy/browser-runner/pkg/pool"
	"github.com/tupyy/browser-runner/pkg/worker"
)

// buildPools creates one pool per browser. Workers are child processes running
// the hidden worker command, or in-process executors when local is set.
// The returned cleanup function closes the pools and their workers.
func buildPools(cfg *config.Configuration, configPath string, browsers []string, local bool) ([]*pool.Pool, func(), error) {
	var (
		pools []*pool.Pool
		procs []*worker.Process
	)
	cleanup := func() {
		for _, p := range pools {
			p.Close()
		}
		for _, proc := range procs {
			if err := proc.Close(); err != nil {
				zap.S().Named("cli").Warnw("failed to close worker", "pid", proc.Pid(), "error", err)
			}
		}
	}

	exe, err := os.Executable()
	if err != nil && !local {
		return nil, nil, fmt.Errorf("failed to locate executable: %w", err)
	}

	for _, name := range browsers {
		b, ok := cfg.Browsers[name]
		if !ok {
			cleanup()
			return nil, nil, fmt.Errorf("browser %q is not configured", name)
		}

		var workers []pool.Worker
		if local {
			ex := executor.New(b.BrowserName, cfg.Runner.GridURL, cfg.Worker.Command, os.Stderr, executor.WithTimeout(cfg.Worker.Timeout))
			workers = worker.Funcs(b.Limit, ex.Run)
		} else {
			started, err := worker.StartProcesses(b.Limit, func(int) *exec.Cmd {
				cmd := exec.Command(exe, "worker",
					"--browser", name,
					"--"+flagConfig, configPath,
					"--"+flagLogLevel, cfg.LogLevel,
					"--"+flagLogFormat, cfg.LogFormat,
				)
				cmd.Stderr = os.Stderr
				cmd.Env = os.Environ()
				return cmd
			})
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("failed to start workers for %q: %w", name, err)
			}
			procs = append(procs, started...)
			workers = worker.AsWorkers(started)
		}

		p, err := pool.New(name, workers, cfg.Runner.MaxRetries, pool.WithTimeout(cfg.Worker.Timeout))
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		pools = append(pools, p)

		zap.S().Named("cli").Infow("pool ready", "browser", name, "workers", b.Limit, "local", local)
	}

	return pools, cleanup, nil
}
