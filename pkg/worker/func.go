package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/tupyy/browser-runner/internal/models"
	srvErrors "github.com/tupyy/browser-runner/pkg/errors"
	"github.com/tupyy/browser-runner/pkg/pool"
)

// RunFunc runs one test inside the current process.
type RunFunc func(ctx context.Context, t models.Test) models.Reply

// Func is an in-process worker. It speaks the same payload format as a process worker.
type Func struct {
	fn   RunFunc
	busy atomic.Bool
}

func NewFunc(fn RunFunc) *Func {
	return &Func{fn: fn}
}

func (f *Func) Send(ctx context.Context, payload []byte) *models.Future[models.Result[[]byte]] {
	var t models.Test
	if err := json.Unmarshal(payload, &t); err != nil {
		return models.ResolvedFuture(models.Result[[]byte]{Err: err})
	}
	if !f.busy.CompareAndSwap(false, true) {
		return models.ResolvedFuture(models.Result[[]byte]{Err: srvErrors.NewWorkerBusyError()})
	}

	c := make(chan models.Result[[]byte], 1)
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		res := f.run(ctx, t)
		// free before replying so the next Send never sees a stale busy flag
		f.busy.Store(false)
		c <- res
	}()

	return models.NewFuture(c, cancel)
}

func (f *Func) run(ctx context.Context, t models.Test) (res models.Result[[]byte]) {
	defer func() {
		if rec := recover(); rec != nil {
			data, _ := json.Marshal(models.Reply{ID: t.ID, Status: models.TestStatusFailed, Error: fmt.Sprintf("worker panicked: %v", rec)})
			res = models.Result[[]byte]{Data: data}
		}
	}()

	r := f.fn(ctx, t)
	if r.ID == "" {
		r.ID = t.ID
	}
	data, err := json.Marshal(r)
	return models.Result[[]byte]{Data: data, Err: err}
}

// Funcs creates n in-process workers sharing fn.
func Funcs(n int, fn RunFunc) []pool.Worker {
	workers := make([]pool.Worker, 0, n)
	for range n {
		workers = append(workers, NewFunc(fn))
	}
	return workers
}
