// Package worker provides the pool.Worker implementations.
//
// Process runs a long-lived child process and talks to it with one JSON
// document per line: the pool writes {"id","path","retries"} to its stdin and
// reads exactly one {"id","status","error"} line back from its stdout. A
// process is never restarted; once it exits every send fails fast with a
// WorkerExitedError, which the pool records as a failed attempt.
//
// Func runs tests in the current process and is used for local runs and tests.
package worker
