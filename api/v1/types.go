package v1

import (
	"time"

	"github.com/tupyy/browser-runner/internal/models"
)

type Test struct {
	Id   string   `json:"id" binding:"required"`
	Path []string `json:"path"`
}

type StartRunRequest struct {
	Tests    []Test   `json:"tests" binding:"required"`
	Browsers []string `json:"browsers,omitempty"`
}

type StartRunResponse struct {
	RunId string `json:"runId"`
}

type TestStatus struct {
	Browser  string   `json:"browser"`
	Id       string   `json:"id"`
	Path     []string `json:"path"`
	Status   string   `json:"status,omitempty"`
	Attempts int      `json:"attempts"`
	Retries  int      `json:"retries"`
	Error    *string  `json:"error,omitempty"`
}

type PoolSummary struct {
	Browser  string `json:"browser"`
	Passed   int    `json:"passed"`
	Failed   int    `json:"failed"`
	Skipped  int    `json:"skipped"`
	Retries  int    `json:"retries"`
	Forced   bool   `json:"forced"`
	Duration string `json:"duration"`
}

type RunStatus struct {
	RunId     string        `json:"runId,omitempty"`
	State     string        `json:"state"`
	Browsers  []string      `json:"browsers"`
	StartedAt *time.Time    `json:"startedAt,omitempty"`
	EndedAt   *time.Time    `json:"endedAt,omitempty"`
	Tests     []TestStatus  `json:"tests"`
	Pools     []PoolSummary `json:"pools"`
}

type Error struct {
	Error string `json:"error"`
}

// ToModels converts API tests to models.Test.
func (r StartRunRequest) ToModels() []models.Test {
	tests := make([]models.Test, 0, len(r.Tests))
	for _, t := range r.Tests {
		tests = append(tests, models.Test{ID: t.Id, Path: t.Path})
	}
	return tests
}

// NewRunStatusFromModel converts a models.RunStatus to an API RunStatus.
func NewRunStatusFromModel(m models.RunStatus) RunStatus {
	s := RunStatus{
		RunId:    m.ID,
		State:    string(m.State),
		Browsers: m.Browsers,
		Tests:    make([]TestStatus, 0, len(m.Tests)),
		Pools:    make([]PoolSummary, 0, len(m.Summaries)),
	}
	if s.Browsers == nil {
		s.Browsers = []string{}
	}
	if !m.Started.IsZero() {
		started := m.Started
		s.StartedAt = &started
	}
	if !m.Finished.IsZero() {
		ended := m.Finished
		s.EndedAt = &ended
	}

	for _, t := range m.Tests {
		ts := TestStatus{
			Browser:  t.Browser,
			Id:       t.Test.ID,
			Path:     t.Test.Path,
			Status:   string(t.Status),
			Attempts: t.Attempts,
			Retries:  t.Test.Retries,
		}
		if t.Error != "" {
			e := t.Error
			ts.Error = &e
		}
		s.Tests = append(s.Tests, ts)
	}

	for _, p := range m.Summaries {
		s.Pools = append(s.Pools, PoolSummary{
			Browser:  p.Browser,
			Passed:   p.Passed,
			Failed:   p.Failed,
			Skipped:  p.Skipped,
			Retries:  p.Retries,
			Forced:   p.Forced,
			Duration: p.Duration().String(),
		})
	}
	return s
}
