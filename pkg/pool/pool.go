package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tupyy/browser-runner/internal/models"
	srvErrors "github.com/tupyy/browser-runner/pkg/errors"
)

// Worker is the pool side of one long-lived execution unit.
// The future returned by Send receives exactly one result.
type Worker interface {
	Send(ctx context.Context, payload []byte) *models.Future[models.Result[[]byte]]
}

type Option func(p *Pool)

// WithObserver registers o before the event loop starts.
func WithObserver(o Observer) Option {
	return func(p *Pool) {
		p.observers = append(p.observers, o)
	}
}

// WithTimeout bounds a single attempt. A worker that does not reply in time
// is reported as a failed attempt.
func WithTimeout(d time.Duration) Option {
	return func(p *Pool) {
		p.timeout = d
	}
}

type handle struct {
	id     int
	worker Worker
	busy   bool
}

// reply is a message from an attempt forwarder. attempt marks a result to
// report for test; release hands the worker back to the free queue. A timed
// out attempt is reported first and released once the worker answers.
type reply struct {
	h       *handle
	test    models.Test
	result  models.Result[[]byte]
	attempt bool
	release bool
}

type startRequest struct {
	tests []models.Test
	c     chan error
}

type Pool struct {
	browser    string
	maxRetries int
	timeout    time.Duration
	handles    []*handle
	free       *queue[*handle]
	queue      *queue[models.Test]
	forcedStop bool
	busy       atomic.Int32
	summary    models.RunSummary

	obsMu     sync.Mutex
	observers []Observer

	start      chan startRequest
	stop       chan struct{}
	replies    chan reply
	close      chan any
	done       chan any
	mainCtx    context.Context
	mainCancel context.CancelFunc
	wg         sync.WaitGroup
	once       sync.Once
}

// New creates a pool running tests for browser on the given workers.
// The number of workers and maxRetries are fixed for the pool's lifetime.
func New(browser string, workers []Worker, maxRetries int, opts ...Option) (*Pool, error) {
	if len(workers) == 0 {
		return nil, fmt.Errorf("pool %q needs at least one worker", browser)
	}
	if maxRetries < 0 {
		return nil, fmt.Errorf("pool %q: max retries must not be negative", browser)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		browser:    browser,
		maxRetries: maxRetries,
		free:       &queue[*handle]{},
		queue:      &queue[models.Test]{},
		start:      make(chan startRequest),
		stop:       make(chan struct{}),
		replies:    make(chan reply, 2*len(workers)),
		close:      make(chan any),
		done:       make(chan any),
		mainCtx:    ctx,
		mainCancel: cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	for i, w := range workers {
		h := &handle{id: i, worker: w}
		p.handles = append(p.handles, h)
		p.free.Push(h)
	}

	go p.run()
	return p, nil
}

func (p *Pool) Browser() string { return p.browser }

func (p *Pool) MaxRetries() int { return p.maxRetries }

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.handles) }

// IsRunning reports whether at least one worker has a test in flight.
func (p *Pool) IsRunning() bool {
	return p.busy.Load() > 0
}

// Subscribe registers o. Observers registered after Start may miss events.
func (p *Pool) Subscribe(o Observer) {
	p.obsMu.Lock()
	defer p.obsMu.Unlock()
	p.observers = append(p.observers, o)
}

// Start replaces the queue with tests and begins dispatching them.
// It returns a RejectedStartError without touching any state if a test is still in flight.
func (p *Pool) Start(tests []models.Test) error {
	r := startRequest{tests: tests, c: make(chan error, 1)}
	select {
	case <-p.done:
		return srvErrors.NewPoolClosedError()
	case p.start <- r:
	}
	return <-r.c
}

// Stop drops every queued test and suppresses retries. Tests already running
// on a worker are not interrupted; the completion event is published when they reply.
// Stop is a no-op when the pool is idle.
func (p *Pool) Stop() {
	select {
	case <-p.done:
	case p.stop <- struct{}{}:
	}
}

// Close cancels in-flight work and stops the event loop. It is idempotent.
// No completion event is published for a batch interrupted by Close.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.mainCancel()
		p.close <- struct{}{}
		<-p.done
	})
}

func (p *Pool) run() {
	defer close(p.done)
	for {
		select {
		case r := <-p.start:
			r.c <- p.onStart(r.tests)
		case <-p.stop:
			p.onStop()
		case r := <-p.replies:
			p.onReply(r)
		case <-p.close:
			p.wg.Wait()
			p.busy.Store(0)
			return
		}
	}
}

func (p *Pool) onStart(tests []models.Test) error {
	if p.busy.Load() > 0 {
		return srvErrors.NewRejectedStartError(p.browser)
	}

	p.queue.Clear()
	for _, t := range tests {
		t.Path = append([]string(nil), t.Path...)
		t.Retries = 0
		p.queue.Push(t)
	}
	p.summary = models.RunSummary{
		RunID:   uuid.NewString(),
		Browser: p.browser,
		Started: time.Now(),
	}

	zap.S().Named("pool").Infow("batch accepted", "browser", p.browser, "run_id", p.summary.RunID, "tests", len(tests), "workers", len(p.handles))

	if p.queue.Len() == 0 {
		p.finish()
		return nil
	}
	p.dispatch()
	return nil
}

func (p *Pool) onStop() {
	if p.busy.Load() == 0 {
		return
	}
	zap.S().Named("pool").Infow("stop requested", "browser", p.browser, "dropped", p.queue.Len())
	p.forcedStop = true
	p.queue.Clear()
}

// dispatch pairs free workers with queued tests until one of them runs out.
func (p *Pool) dispatch() {
	for p.free.Len() > 0 && p.queue.Len() > 0 {
		h := p.free.Pop()
		t := p.queue.Pop()

		p.emit(models.StatusEvent{Browser: p.browser, Test: t, Status: models.TestStatusPending})

		payload, _ := json.Marshal(t)

		h.busy = true
		p.busy.Add(1)

		ctx, cancel := p.attemptContext()
		p.wg.Add(1)
		go p.await(ctx, cancel, h, t, h.worker.Send(ctx, payload))
	}
}

func (p *Pool) attemptContext() (context.Context, context.CancelFunc) {
	if p.timeout > 0 {
		return context.WithTimeout(p.mainCtx, p.timeout)
	}
	return context.WithCancel(p.mainCtx)
}

// await forwards the single reply of a worker into the event loop.
// When the attempt times out the failure is forwarded at once, but the worker
// is only released when its late reply arrives.
func (p *Pool) await(ctx context.Context, cancel context.CancelFunc, h *handle, t models.Test, f *models.Future[models.Result[[]byte]]) {
	defer p.wg.Done()
	defer cancel()

	select {
	case res := <-f.C():
		p.forward(reply{h: h, test: t, result: res, attempt: true, release: true})
		return
	case <-ctx.Done():
	}

	if p.mainCtx.Err() != nil {
		f.Stop()
		return
	}
	if !p.forward(reply{h: h, test: t, result: models.Result[[]byte]{Err: ctx.Err()}, attempt: true}) {
		return
	}

	select {
	case res := <-f.C():
		zap.S().Named("pool").Debugw("late reply discarded", "browser", p.browser, "worker", h.id, "test", t.ID, "error", res.Err)
		p.forward(reply{h: h, test: t, release: true})
	case <-p.mainCtx.Done():
		f.Stop()
	}
}

// forward hands r to the event loop unless the pool is closing.
func (p *Pool) forward(r reply) bool {
	select {
	case p.replies <- r:
		return true
	case <-p.mainCtx.Done():
		return false
	}
}

func (p *Pool) onReply(r reply) {
	if r.attempt {
		p.onAttempt(r)
	}
	if r.release {
		r.h.busy = false
		p.busy.Add(-1)
		p.free.Push(r.h)
	}

	if p.queue.Len() > 0 {
		p.dispatch()
	} else if p.free.Len() == len(p.handles) {
		p.finish()
	}
}

// onAttempt applies the retry rule to the outcome of one attempt and reports it.
func (p *Pool) onAttempt(r reply) {
	t := r.test
	status, err := decodeReply(t.ID, r.result)
	switch {
	case srvErrors.IsWorkerBusyError(err):
		zap.S().Named("pool").Errorw("unit sent to a busy worker", "browser", p.browser, "worker", r.h.id, "test", t.ID)
	case srvErrors.IsMalformedReplyError(err):
		zap.S().Named("pool").Warnw("treating reply as failed attempt", "browser", p.browser, "worker", r.h.id, "test", t.ID, "error", err)
	}

	willRetry := false
	if status == models.TestStatusFailed && t.Retries < p.maxRetries && !p.forcedStop {
		willRetry = true
		retry := t
		retry.Retries++
		p.queue.Push(retry)
	}

	switch {
	case willRetry:
		p.summary.Retries++
	case status == models.TestStatusPassed:
		p.summary.Passed++
	case status == models.TestStatusFailed:
		p.summary.Failed++
	case status == models.TestStatusSkipped:
		p.summary.Skipped++
	}

	p.emit(models.StatusEvent{Browser: p.browser, Test: t, Status: status, WillRetry: willRetry, Err: err})
}

func (p *Pool) finish() {
	p.summary.Forced = p.forcedStop
	p.summary.Finished = time.Now()
	p.forcedStop = false

	zap.S().Named("pool").Infow("batch finished", "browser", p.browser, "run_id", p.summary.RunID,
		"passed", p.summary.Passed, "failed", p.summary.Failed, "skipped", p.summary.Skipped,
		"retries", p.summary.Retries, "forced", p.summary.Forced, "duration", p.summary.Duration())

	for _, o := range p.snapshotObservers() {
		o.OnDone(p.summary)
	}
}

func (p *Pool) emit(e models.StatusEvent) {
	e.Time = time.Now()
	for _, o := range p.snapshotObservers() {
		o.OnStatus(e)
	}
}

func (p *Pool) snapshotObservers() []Observer {
	p.obsMu.Lock()
	defer p.obsMu.Unlock()
	return append([]Observer(nil), p.observers...)
}

// decodeReply turns a raw worker reply into a terminal status. Anything that
// is not a valid terminal status is a failed attempt.
// A reply error from the worker itself is carried on a failed status.
func decodeReply(testID string, res models.Result[[]byte]) (models.TestStatus, error) {
	if srvErrors.IsWorkerBusyError(res.Err) {
		return models.TestStatusFailed, res.Err
	}
	if res.Err != nil {
		return models.TestStatusFailed, srvErrors.NewMalformedReplyError(testID, res.Err)
	}

	var r models.Reply
	if err := json.Unmarshal(res.Data, &r); err != nil {
		return models.TestStatusFailed, srvErrors.NewMalformedReplyError(testID, err)
	}
	if r.ID != "" && r.ID != testID {
		return models.TestStatusFailed, srvErrors.NewMalformedReplyError(testID, fmt.Errorf("reply is for test %q", r.ID))
	}
	status, err := models.ParseTerminalStatus(string(r.Status))
	if err != nil {
		return models.TestStatusFailed, srvErrors.NewMalformedReplyError(testID, err)
	}
	if status == models.TestStatusFailed && r.Error != "" {
		return status, errors.New(r.Error)
	}
	return status, nil
}
