// Package executor is the worker side of the pool protocol. It reads one test
// per line, runs the configured command for it and answers with exactly one
// status line.
package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/tupyy/browser-runner/internal/models"
)

// ExitCodeSkipped is the exit code a test command uses to report a skipped test.
const ExitCodeSkipped = 77

const waitDelay = time.Second

var (
	startLabel = color.New(color.FgYellow).SprintFunc()
	passLabel  = color.New(color.FgGreen).SprintFunc()
	failLabel  = color.New(color.FgRed).SprintFunc()
	skipLabel  = color.New(color.FgBlue).SprintFunc()
	titleColor = color.New(color.FgCyan).SprintFunc()
)

type Executor struct {
	browser string
	gridURL string
	command []string
	timeout time.Duration
	// output receives the test command's stdout/stderr and progress lines.
	// It must never be the protocol stream.
	output io.Writer
}

type Option func(e *Executor)

// WithTimeout kills a test command still running after d.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.timeout = d
	}
}

func New(browser, gridURL string, command []string, output io.Writer, opts ...Option) *Executor {
	if output == nil {
		output = os.Stderr
	}
	e := &Executor{browser: browser, gridURL: gridURL, command: command, output: output}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Serve answers every payload read from in until in is closed or ctx is done.
func (e *Executor) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var t models.Test
		var r models.Reply
		if err := json.Unmarshal(scanner.Bytes(), &t); err != nil {
			r = models.Reply{Status: models.TestStatusFailed, Error: fmt.Sprintf("invalid payload: %v", err)}
		} else {
			r = e.Run(ctx, t)
		}

		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("failed to write reply: %w", err)
		}
	}
	return scanner.Err()
}

// Run runs the test command once for t.
func (e *Executor) Run(ctx context.Context, t models.Test) models.Reply {
	r := models.Reply{ID: t.ID}
	if len(e.command) == 0 {
		r.Status = models.TestStatusFailed
		r.Error = "no test command configured"
		return r
	}

	env := map[string]string{
		"TEST_ID":      t.ID,
		"TEST_PATH":    t.Title(),
		"TEST_RETRIES": strconv.Itoa(t.Retries),
		"BROWSER":      e.browser,
		"GRID_URL":     e.gridURL,
	}
	args := make([]string, 0, len(e.command))
	for _, a := range e.command {
		args = append(args, os.Expand(a, func(k string) string {
			if v, ok := env[k]; ok {
				return v
			}
			return os.Getenv(k)
		}))
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stdout = e.output
	cmd.Stderr = e.output
	// children of a killed command may keep the output pipes open
	cmd.WaitDelay = waitDelay

	e.progress(startLabel("START"), t)
	err := cmd.Run()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		r.Status = models.TestStatusPassed
		e.progress(passLabel("PASS"), t)
	case errors.As(err, &exitErr) && exitErr.ExitCode() == ExitCodeSkipped:
		r.Status = models.TestStatusSkipped
		e.progress(skipLabel("SKIP"), t)
	default:
		r.Status = models.TestStatusFailed
		r.Error = err.Error()
		e.progress(failLabel("FAIL"), t)
		zap.S().Named("executor").Debugw("test command failed", "test", t.ID, "browser", e.browser, "error", err)
	}
	return r
}

func (e *Executor) progress(label string, t models.Test) {
	fmt.Fprintf(e.output, "[%s:%s:%d] %s\n", label, e.browser, os.Getpid(), titleColor(t.Title()))
}
