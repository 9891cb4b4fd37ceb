// Package services implements the business logic layer for browser-runner.
//
// # Runner
//
// Runner drives one pool.Pool per configured browser. A run submits the same
// batch of tests to every selected pool and is over once every pool published
// its completion event.
//
// State Machine:
//
//	┌──────┐  Start  ┌─────────┐  all pools done  ┌───────────┐
//	│ Idle │───────►│ Running │─────────────────►│ Completed │
//	└──────┘         └────┬────┘                  └───────────┘
//	                      │ Stop
//	                      ▼
//	                ┌──────────┐  all pools done  ┌─────────┐
//	                │ Stopping │─────────────────►│ Stopped │
//	                └──────────┘                  └─────────┘
//
// Completed and Stopped accept a new Start.
//
// Key behaviors:
//   - Only one run at a time (returns RunInProgressError otherwise)
//   - Stop drops queued tests on every pool; tests already on a worker finish
//   - The runner is a pool.Observer: it keeps the latest status, attempt count
//     and error of every (browser, test) pair
//   - Listeners registered with WithListener see every event after the runner
//
// Usage:
//
//	runner := services.NewRunner(pools, services.WithListener(printer))
//	runID, err := runner.Start(tests, "chrome")
//	status, err := runner.Wait(ctx)
//
// # Thread Safety
//
// Runner state is protected by a mutex. Pools call the runner from their event
// loops, so the mutex is never held while calling into a pool.
package services
