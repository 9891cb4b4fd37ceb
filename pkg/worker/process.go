package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tupyy/browser-runner/internal/models"
	srvErrors "github.com/tupyy/browser-runner/pkg/errors"
	"github.com/tupyy/browser-runner/pkg/pool"
)

const (
	maxReplySize = 1024 * 1024
	killTimeout  = 5 * time.Second
)

// Process is a worker backed by a long-lived child process.
// Payloads are written to its stdin and replies read from its stdout,
// one JSON document per line.
type Process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	mu      sync.Mutex
	pending chan models.Result[[]byte]
	// stale counts replies still owed for abandoned sends; they are dropped.
	stale   int
	exitErr error
	exited  chan struct{}
}

// StartProcess starts cmd and takes ownership of its stdin and stdout.
func StartProcess(cmd *exec.Cmd) (*Process, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open worker stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		exited: make(chan struct{}),
	}
	go p.read(stdout)

	zap.S().Named("worker").Debugw("worker process started", "pid", p.Pid(), "path", cmd.Path)
	return p, nil
}

// StartProcesses starts n workers. If one fails the ones already started are closed.
func StartProcesses(n int, build func(i int) *exec.Cmd) ([]*Process, error) {
	procs := make([]*Process, 0, n)
	for i := range n {
		p, err := StartProcess(build(i))
		if err != nil {
			for _, started := range procs {
				_ = started.Close()
			}
			return nil, err
		}
		procs = append(procs, p)
	}
	return procs, nil
}

// AsWorkers converts processes to pool workers.
func AsWorkers(procs []*Process) []pool.Worker {
	workers := make([]pool.Worker, 0, len(procs))
	for _, p := range procs {
		workers = append(workers, p)
	}
	return workers
}

func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Send writes payload to the process. The returned future receives the next reply line,
// or an error if the process is gone or still busy with a previous payload.
func (p *Process) Send(ctx context.Context, payload []byte) *models.Future[models.Result[[]byte]] {
	p.mu.Lock()
	if p.exitErr != nil {
		err := p.exitErr
		p.mu.Unlock()
		return models.ResolvedFuture(models.Result[[]byte]{Err: err})
	}
	if p.pending != nil {
		p.mu.Unlock()
		return models.ResolvedFuture(models.Result[[]byte]{Err: srvErrors.NewWorkerBusyError()})
	}
	c := make(chan models.Result[[]byte], 1)
	p.pending = c
	p.mu.Unlock()

	line := append(append(make([]byte, 0, len(payload)+1), payload...), '\n')
	if _, err := p.stdin.Write(line); err != nil {
		p.mu.Lock()
		if p.pending == c {
			p.pending = nil
		}
		p.mu.Unlock()
		return models.ResolvedFuture(models.Result[[]byte]{Err: fmt.Errorf("failed to write to worker %d: %w", p.Pid(), err)})
	}

	return models.NewFuture(c, func() { p.abandon(c) })
}

// abandon forgets the pending send c; its reply will be dropped when it arrives.
func (p *Process) abandon(c chan models.Result[[]byte]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending == c {
		p.pending = nil
		p.stale++
	}
}

func (p *Process) read(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxReplySize)
	for scanner.Scan() {
		p.deliver(append([]byte(nil), scanner.Bytes()...))
	}
	if err := scanner.Err(); err != nil {
		zap.S().Named("worker").Warnw("failed to read worker output", "pid", p.Pid(), "error", err)
		// drain so Wait does not block on a full pipe
		_, _ = io.Copy(io.Discard, stdout)
	}

	err := srvErrors.NewWorkerExitedError(p.Pid(), p.cmd.Wait())

	p.mu.Lock()
	p.exitErr = err
	c := p.pending
	p.pending = nil
	p.mu.Unlock()
	close(p.exited)

	zap.S().Named("worker").Infow("worker process exited", "pid", p.Pid(), "error", err)
	if c != nil {
		c <- models.Result[[]byte]{Err: err}
	}
}

func (p *Process) deliver(line []byte) {
	p.mu.Lock()
	if p.stale > 0 {
		p.stale--
		p.mu.Unlock()
		zap.S().Named("worker").Debugw("dropping reply of abandoned send", "pid", p.Pid())
		return
	}
	c := p.pending
	p.pending = nil
	p.mu.Unlock()

	if c == nil {
		zap.S().Named("worker").Warnw("unexpected worker output", "pid", p.Pid(), "line", string(line))
		return
	}
	c <- models.Result[[]byte]{Data: line}
}

// Exited is closed once the child process is gone.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Close closes stdin so the worker exits on its own, and kills it if it does not.
func (p *Process) Close() error {
	_ = p.stdin.Close()

	select {
	case <-p.exited:
		return nil
	case <-time.After(killTimeout):
	}

	zap.S().Named("worker").Warnw("killing worker process", "pid", p.Pid())
	if err := p.cmd.Process.Kill(); err != nil {
		return fmt.Errorf("failed to kill worker %d: %w", p.Pid(), err)
	}
	<-p.exited
	return nil
}
