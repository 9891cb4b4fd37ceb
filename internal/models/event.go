package models

import "time"

// StatusEvent is published for every pending and terminal transition of a test.
type StatusEvent struct {
	Browser   string
	Test      Test
	Status    TestStatus
	WillRetry bool
	Err       error
	Time      time.Time
}

// RetryExhausted reports whether this is the final failure of a test
// after every retry was consumed.
func (e StatusEvent) RetryExhausted(maxRetries int) bool {
	return e.Status == TestStatusFailed && !e.WillRetry && e.Test.Retries >= maxRetries
}

// RunSummary is published once when a pool returns to idle after a batch.
type RunSummary struct {
	RunID    string
	Browser  string
	Passed   int
	Failed   int
	Skipped  int
	Retries  int
	Forced   bool
	Started  time.Time
	Finished time.Time
}

func (s RunSummary) Duration() time.Duration {
	return s.Finished.Sub(s.Started)
}
