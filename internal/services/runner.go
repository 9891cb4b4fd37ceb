package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tupyy/browser-runner/internal/models"
	"github.com/tupyy/browser-runner/internal/util"
	srvErrors "github.com/tupyy/browser-runner/pkg/errors"
	"github.com/tupyy/browser-runner/pkg/pool"
)

// Runner runs a batch of tests on every browser pool and keeps the latest
// status of each test in memory.
type Runner struct {
	pools     map[string]*pool.Pool
	names     []string
	listeners []pool.Observer

	mu      sync.Mutex
	run     models.RunStatus
	records map[string]*models.TestRecord
	order   []string
	pending map[string]struct{}
	done    chan struct{}
}

type RunnerOption func(r *Runner)

// WithListener forwards every pool event to o after the runner recorded it.
func WithListener(o pool.Observer) RunnerOption {
	return func(r *Runner) {
		r.listeners = append(r.listeners, o)
	}
}

func NewRunner(pools []*pool.Pool, opts ...RunnerOption) *Runner {
	r := &Runner{
		pools: make(map[string]*pool.Pool, len(pools)),
		run:   models.RunStatus{State: models.RunStateIdle},
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, p := range pools {
		r.pools[p.Browser()] = p
		r.names = append(r.names, p.Browser())
		p.Subscribe(r)
	}
	sort.Strings(r.names)

	done := make(chan struct{})
	close(done)
	r.done = done

	return r
}

// Browsers returns the names of the managed pools.
func (r *Runner) Browsers() []string {
	return append([]string(nil), r.names...)
}

// Start submits tests to the pools of browsers, or of every browser when none is given.
func (r *Runner) Start(tests []models.Test, browsers ...string) (string, error) {
	if len(browsers) == 0 {
		browsers = r.names
	}
	browsers = util.Dedup(browsers)
	for _, b := range browsers {
		if _, ok := r.pools[b]; !ok {
			return "", srvErrors.NewUnknownBrowserError(b)
		}
	}

	r.mu.Lock()
	if r.isActive() {
		id := r.run.ID
		r.mu.Unlock()
		return "", srvErrors.NewRunInProgressError(id)
	}

	r.run = models.RunStatus{
		ID:       uuid.NewString(),
		State:    models.RunStateRunning,
		Browsers: browsers,
		Started:  time.Now(),
	}
	r.records = make(map[string]*models.TestRecord, len(tests)*len(browsers))
	r.order = r.order[:0]
	r.pending = make(map[string]struct{}, len(browsers))
	for _, b := range browsers {
		r.pending[b] = struct{}{}
		for _, t := range tests {
			key := recordKey(b, t.ID)
			r.records[key] = &models.TestRecord{Browser: b, Test: t}
			r.order = append(r.order, key)
		}
	}
	r.done = make(chan struct{})
	runID := r.run.ID
	r.mu.Unlock()

	zap.S().Named("runner").Infow("starting run", "run_id", runID, "browsers", browsers, "tests", len(tests))

	// Pools publish events synchronously from Start, so the lock must not be held here.
	var errs []error
	for _, b := range browsers {
		if err := r.pools[b].Start(tests); err != nil {
			zap.S().Named("runner").Errorw("failed to start pool", "browser", b, "error", err)
			errs = append(errs, err)
			r.poolDone(b, models.RunSummary{Browser: b})
		}
	}
	if len(errs) > 0 {
		r.Stop()
		return runID, errors.Join(errs...)
	}

	return runID, nil
}

// Stop stops every pool of the current run. In-flight tests finish normally.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.isActive() {
		r.mu.Unlock()
		return
	}
	r.run.State = models.RunStateStopping
	browsers := append([]string(nil), r.run.Browsers...)
	r.mu.Unlock()

	zap.S().Named("runner").Infow("stopping run", "browsers", browsers)
	for _, b := range browsers {
		r.pools[b].Stop()
	}
}

// Wait blocks until the current run is over and returns its final status.
func (r *Runner) Wait(ctx context.Context) (models.RunStatus, error) {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()

	select {
	case <-done:
		return r.Status(), nil
	case <-ctx.Done():
		return r.Status(), ctx.Err()
	}
}

// Status returns a snapshot of the current or last run.
func (r *Runner) Status() models.RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.run
	s.Browsers = append([]string(nil), r.run.Browsers...)
	s.Summaries = append([]models.RunSummary(nil), r.run.Summaries...)
	s.Tests = make([]models.TestRecord, 0, len(r.order))
	for _, key := range r.order {
		s.Tests = append(s.Tests, *r.records[key])
	}
	return s
}

func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isActive()
}

// Close closes every pool. A run still active ends as stopped, since closed
// pools publish no completion event.
func (r *Runner) Close() {
	for _, p := range r.pools {
		p.Close()
	}

	r.mu.Lock()
	if r.isActive() {
		r.run.State = models.RunStateStopping
	}
	pending := make([]string, 0, len(r.pending))
	for b := range r.pending {
		pending = append(pending, b)
	}
	r.mu.Unlock()

	sort.Strings(pending)
	for _, b := range pending {
		r.poolDone(b, models.RunSummary{Browser: b, Forced: true, Finished: time.Now()})
	}
}

// OnStatus implements pool.Observer.
func (r *Runner) OnStatus(e models.StatusEvent) {
	r.mu.Lock()
	if rec, ok := r.records[recordKey(e.Browser, e.Test.ID)]; ok {
		rec.Status = e.Status
		rec.Test.Retries = e.Test.Retries
		if e.Status == models.TestStatusPending {
			rec.Attempts++
			rec.Error = ""
		} else if e.Err != nil {
			rec.Error = e.Err.Error()
		}
	}
	r.mu.Unlock()

	for _, l := range r.listeners {
		l.OnStatus(e)
	}
}

// OnDone implements pool.Observer.
func (r *Runner) OnDone(s models.RunSummary) {
	r.poolDone(s.Browser, s)
	for _, l := range r.listeners {
		l.OnDone(s)
	}
}

func (r *Runner) poolDone(browser string, s models.RunSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[browser]; !ok {
		return
	}
	delete(r.pending, browser)
	r.run.Summaries = append(r.run.Summaries, s)
	if len(r.pending) > 0 {
		return
	}

	if r.run.State == models.RunStateStopping {
		r.run.State = models.RunStateStopped
	} else {
		r.run.State = models.RunStateCompleted
	}
	r.run.Finished = time.Now()
	close(r.done)

	zap.S().Named("runner").Infow("run finished", "run_id", r.run.ID, "state", r.run.State, "duration", r.run.Finished.Sub(r.run.Started))
}

func (r *Runner) isActive() bool {
	return r.run.State == models.RunStateRunning || r.run.State == models.RunStateStopping
}

func recordKey(browser, id string) string {
	return browser + "\x00" + id
}
