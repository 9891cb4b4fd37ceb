/*
Package main runs the end-to-end tests of browser-runner against the real binary.

# Package Structure

	test/e2e/
	├── main.go   Entry point: flags, logger, binary build, Ginkgo runner
	├── tests.go  Ginkgo tests for the run and serve commands
	└── doc.go    This file

# Test Command

Every case writes a configuration whose worker command is a shell one-liner.
The outcome of a test is derived from its id:

	┌───────────┬──────────────────────────────────────┐
	│ Id prefix │ Outcome                              │
	├───────────┼──────────────────────────────────────┤
	│ fail      │ failed on every attempt              │
	│ skip      │ skipped (exit code 77)               │
	│ flaky     │ failed first, passed on first retry  │
	│ other     │ passed                               │
	└───────────┴──────────────────────────────────────┘

No browser grid is needed: the grid check only runs when runner.grid-url is set.

# Flags

	-binary      Path to a prebuilt browser-runner binary. When empty the
	             binary is built with gexec.Build.
	-keep-dirs   Keep the generated configuration directories.

# Running

	go run ./test/e2e
	go run ./test/e2e -binary bin/browser-runner
*/
package main
