package models

import "time"

type RunState string

const (
	RunStateIdle      RunState = "idle"
	RunStateRunning   RunState = "running"
	RunStateStopping  RunState = "stopping"
	RunStateCompleted RunState = "completed"
	RunStateStopped   RunState = "stopped"
)

// TestRecord is the latest known state of a test on one browser.
type TestRecord struct {
	Browser  string
	Test     Test
	Status   TestStatus
	Attempts int
	Error    string
}

// RunStatus describes a run spanning one or more browser pools.
type RunStatus struct {
	ID        string
	State     RunState
	Browsers  []string
	Started   time.Time
	Finished  time.Time
	Tests     []TestRecord
	Summaries []RunSummary
}

// Failed reports whether at least one test ended as failed.
func (s RunStatus) Failed() bool {
	for _, t := range s.Tests {
		if t.Status == TestStatusFailed {
			return true
		}
	}
	return false
}

// Count returns the number of tests whose current status is status.
func (s RunStatus) Count(status TestStatus) int {
	n := 0
	for _, t := range s.Tests {
		if t.Status == status {
			n++
		}
	}
	return n
}

// NotRun returns the number of tests that never reached a terminal status,
// typically because the run was stopped.
func (s RunStatus) NotRun() int {
	n := 0
	for _, t := range s.Tests {
		if t.Status == "" || t.Status == TestStatusPending {
			n++
		}
	}
	return n
}
