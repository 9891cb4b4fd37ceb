package models

import (
	"fmt"
	"strings"
)

// TestStatus is the state of a single attempt of a test.
type TestStatus string

const (
	// TestStatusPending is emitted by the pool when a test is handed to a worker.
	TestStatusPending TestStatus = "pending"
	TestStatusPassed  TestStatus = "passed"
	TestStatusFailed  TestStatus = "failed"
	TestStatusSkipped TestStatus = "skipped"
)

// ParseTerminalStatus parses a status a worker is allowed to reply with.
func ParseTerminalStatus(s string) (TestStatus, error) {
	switch TestStatus(s) {
	case TestStatusPassed, TestStatusFailed, TestStatusSkipped:
		return TestStatus(s), nil
	default:
		return "", fmt.Errorf("invalid terminal test status: %q", s)
	}
}

// Test is one schedulable unit of work.
type Test struct {
	ID      string   `json:"id" yaml:"id"`
	Path    []string `json:"path" yaml:"path"`
	Retries int      `json:"retries" yaml:"-"`
}

// Title joins the path for display.
func (t Test) Title() string {
	return strings.Join(t.Path, "/")
}

// Reply is the payload a worker sends back after running a test.
type Reply struct {
	ID     string     `json:"id,omitempty"`
	Status TestStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}
