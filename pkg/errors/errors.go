// Package errors defines the typed errors returned by the pool, the workers and the services.
package errors

import (
	"errors"
	"fmt"
)

// RejectedStartError is returned when a batch is submitted while a pool still has tests in flight.
type RejectedStartError struct {
	browser string
}

func NewRejectedStartError(browser string) *RejectedStartError {
	return &RejectedStartError{browser: browser}
}

func (e *RejectedStartError) Error() string {
	return fmt.Sprintf("pool %q is running: batch rejected", e.browser)
}

func IsRejectedStartError(err error) bool {
	var e *RejectedStartError
	return errors.As(err, &e)
}

// MalformedReplyError means a worker reply could not be decoded into a terminal status.
type MalformedReplyError struct {
	TestID string
	err    error
}

func NewMalformedReplyError(testID string, err error) *MalformedReplyError {
	return &MalformedReplyError{TestID: testID, err: err}
}

func (e *MalformedReplyError) Error() string {
	return fmt.Sprintf("malformed reply for test %q: %v", e.TestID, e.err)
}

func (e *MalformedReplyError) Unwrap() error {
	return e.err
}

func IsMalformedReplyError(err error) bool {
	var e *MalformedReplyError
	return errors.As(err, &e)
}

// WorkerExitedError is returned by a process worker whose child process is gone.
type WorkerExitedError struct {
	pid int
	err error
}

func NewWorkerExitedError(pid int, err error) *WorkerExitedError {
	return &WorkerExitedError{pid: pid, err: err}
}

func (e *WorkerExitedError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("worker %d exited", e.pid)
	}
	return fmt.Sprintf("worker %d exited: %v", e.pid, e.err)
}

func (e *WorkerExitedError) Unwrap() error {
	return e.err
}

func IsWorkerExitedError(err error) bool {
	var e *WorkerExitedError
	return errors.As(err, &e)
}

// WorkerBusyError is returned when a unit is sent to a worker that has not replied yet.
type WorkerBusyError struct{}

func NewWorkerBusyError() *WorkerBusyError {
	return &WorkerBusyError{}
}

func (e *WorkerBusyError) Error() string {
	return "worker already has a unit of work in flight"
}

func IsWorkerBusyError(err error) bool {
	var e *WorkerBusyError
	return errors.As(err, &e)
}

type PoolClosedError struct{}

func NewPoolClosedError() *PoolClosedError {
	return &PoolClosedError{}
}

func (e *PoolClosedError) Error() string {
	return "pool is closed"
}

func IsPoolClosedError(err error) bool {
	var e *PoolClosedError
	return errors.As(err, &e)
}

type UnknownBrowserError struct {
	browser string
}

func NewUnknownBrowserError(browser string) *UnknownBrowserError {
	return &UnknownBrowserError{browser: browser}
}

func (e *UnknownBrowserError) Error() string {
	return fmt.Sprintf("browser %q is not configured", e.browser)
}

func IsUnknownBrowserError(err error) bool {
	var e *UnknownBrowserError
	return errors.As(err, &e)
}

// RunInProgressError is returned by the runner service when a run is already active.
type RunInProgressError struct {
	runID string
}

func NewRunInProgressError(runID string) *RunInProgressError {
	return &RunInProgressError{runID: runID}
}

func (e *RunInProgressError) Error() string {
	return fmt.Sprintf("run %s is in progress", e.runID)
}

func IsRunInProgressError(err error) bool {
	var e *RunInProgressError
	return errors.As(err, &e)
}

// IsConflictError groups the errors caused by overlapping runs.
func IsConflictError(err error) bool {
	return IsRejectedStartError(err) || IsRunInProgressError(err)
}
