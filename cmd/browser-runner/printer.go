package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/tupyy/browser-runner/internal/models"
)

// printer writes one line per status event. Pools call it from their own
// goroutines, so writes are serialized.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) OnStatus(e models.StatusEvent) {
	var label string
	switch e.Status {
	case models.TestStatusPending:
		label = color.YellowString("START")
	case models.TestStatusPassed:
		label = color.GreenString("PASS")
	case models.TestStatusSkipped:
		label = color.BlueString("SKIP")
	case models.TestStatusFailed:
		if e.WillRetry {
			label = color.MagentaString("RETRY")
		} else {
			label = color.RedString("FAIL")
		}
	default:
		label = string(e.Status)
	}

	line := fmt.Sprintf("[%s:%s] %s", label, e.Browser, color.CyanString(e.Test.Title()))
	if e.Test.Retries > 0 {
		line += fmt.Sprintf(" (retry %d)", e.Test.Retries)
	}
	if e.Status == models.TestStatusFailed && e.Err != nil {
		line += ": " + e.Err.Error()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

func (p *printer) OnDone(s models.RunSummary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "%s %s: %s, %s, %d skipped, %d retries in %s\n",
		color.New(color.Bold).Sprint("DONE"), s.Browser,
		color.GreenString("%d passed", s.Passed),
		color.RedString("%d failed", s.Failed),
		s.Skipped, s.Retries, s.Duration().Round(time.Millisecond))
}

func (p *printer) Summary(s models.RunStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()

	passed, failed, notRun := s.Count(models.TestStatusPassed), s.Count(models.TestStatusFailed), s.NotRun()
	state := color.GreenString(string(s.State))
	if failed > 0 || notRun > 0 || s.State == models.RunStateStopped {
		state = color.RedString(string(s.State))
	}
	fmt.Fprintf(p.out, "\nRun %s %s: %s, %s, %d skipped", s.ID, state,
		color.GreenString("%d passed", passed),
		color.RedString("%d failed", failed),
		s.Count(models.TestStatusSkipped))
	if notRun > 0 {
		fmt.Fprintf(p.out, ", %s", color.YellowString("%d not run", notRun))
	}
	fmt.Fprintln(p.out)

	for _, t := range s.Tests {
		if t.Status == models.TestStatusFailed {
			fmt.Fprintf(p.out, "  %s [%s] %s: %s\n", color.RedString("✗"), t.Browser, t.Test.Title(), t.Error)
		}
	}
}
