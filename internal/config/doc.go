// Package config defines the configuration structure for browser-runner.
//
// Defaults come from `default` struct tags (creasty/defaults). A YAML, JSON or
// TOML file and BROWSER_RUNNER_* environment variables are layered on top with
// viper; command line flags are bound to the same viper instance by the CLI.
//
// # Configuration Structure
//
//	Configuration
//	├── Server         - HTTP control API
//	├── Runner         - Retry bound and browser grid
//	├── Worker         - Command run by worker processes
//	├── Auth           - Bearer token authentication of the HTTP API
//	├── Browsers       - One pool per entry
//	├── LogFormat      - Logging format
//	└── LogLevel       - Logging verbosity
//
// # Runner Configuration
//
//	┌──────────────────┬─────────┬────────────────────────────────────────┐
//	│ Field            │ Default │ Description                            │
//	├──────────────────┼─────────┼────────────────────────────────────────┤
//	│ MaxRetries       │ 2       │ Retries of a failed test               │
//	│ GridURL          │ ""      │ Browser grid base URL                  │
//	│ GridWaitTimeout  │ 30s     │ How long to wait for the grid          │
//	└──────────────────┴─────────┴────────────────────────────────────────┘
//
// # Browser Configuration
//
//	┌──────────────┬──────────┬─────────────────────────────────────────┐
//	│ Field        │ Default  │ Description                             │
//	├──────────────┼──────────┼─────────────────────────────────────────┤
//	│ Limit        │ 1        │ Number of worker processes              │
//	│ BrowserName  │ map key  │ Browser name passed to the workers      │
//	└──────────────┴──────────┴─────────────────────────────────────────┘
//
// # Worker Configuration
//
//	┌──────────┬─────────┬────────────────────────────────────────────────┐
//	│ Field    │ Default │ Description                                    │
//	├──────────┼─────────┼────────────────────────────────────────────────┤
//	│ Command  │ []      │ argv of the command running a single test      │
//	│ Timeout  │ 5m      │ Upper bound of one attempt                     │
//	└──────────┴─────────┴────────────────────────────────────────────────┘
//
// # Example
//
//	runner:
//	  max-retries: 1
//	  grid-url: http://localhost:4444/wd/hub
//	worker:
//	  command: ["npx", "mocha", "--grep", "$TEST_ID"]
//	browsers:
//	  chrome:
//	    limit: 4
//	  firefox:
//	    limit: 2
//	    browser-name: firefox
//
// # Debug Logging
//
//	zap.S().Infow("configuration loaded", "config", cfg.DebugMap())
package config
