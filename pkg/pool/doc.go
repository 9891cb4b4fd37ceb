// Package pool implements the per-browser test scheduler.
//
// A Pool owns a fixed set of long-lived workers and a FIFO queue of tests.
// A batch is submitted with Start; the pool hands tests to free workers one at
// a time per worker, retries failed tests up to a bound and publishes every
// status transition to its observers.
//
// # Architecture Overview
//
//	┌─────────────────────────────────────────────────────────────────────┐
//	│                              Pool                                   │
//	│                                                                     │
//	│  ┌──────────────┐      ┌──────────────┐      ┌──────────────┐       │
//	│  │   Worker 1   │      │   Worker 2   │      │   Worker N   │       │
//	│  └──────────────┘      └──────────────┘      └──────────────┘       │
//	│         ▲  │                  ▲  │                  ▲  │            │
//	│    Send │  │ reply       Send │  │ reply       Send │  │ reply      │
//	│         │  ▼                  │  ▼                  │  ▼            │
//	│         └─────────────────────┼─────────────────────┘               │
//	│                               │                                     │
//	│                        ┌──────┴──────┐                              │
//	│                        │  dispatch() │──► observers (status, done)  │
//	│                        └──────┬──────┘                              │
//	│                               │                                     │
//	│  ┌────────────────────────────┴────────────────────────────┐        │
//	│  │                      Test Queue                         │        │
//	│  │  [A] [B] [C] ... [B retry]                              │        │
//	│  └─────────────────────────────────────────────────────────┘        │
//	│                               ▲                                     │
//	│                        Start(tests)                                 │
//	└─────────────────────────────────────────────────────────────────────┘
//
// # Event Loop
//
// All state (queue, free workers, busy flags, forced stop) is owned by a
// single goroutine:
//
//	for {
//	    select {
//	    case r := <-p.start:     // Start(tests)
//	    case <-p.stop:           // Stop()
//	    case r := <-p.replies:   // a worker replied
//	    case <-p.close:          // Close()
//	    }
//	}
//
// Each dispatched test gets a forwarding goroutine that waits for the worker's
// single reply and pushes it into the replies channel. The channel is buffered
// to the number of workers, which is the maximum number of outstanding replies.
//
// # Dispatch and Retry
//
//  1. While a worker is free and the queue is not empty, pop both.
//  2. Publish a pending event for the test and send it to the worker.
//  3. On reply, decode the status. An undecodable reply, a worker error or a
//     timeout counts as a failed attempt.
//  4. A failed test is appended to the back of the queue with its retry count
//     incremented when retries < maxRetries and Stop was not called.
//  5. Publish the terminal status, free the worker and dispatch again.
//     A worker whose attempt timed out stays busy until its late reply
//     arrives; that reply is discarded.
//  6. When the queue is empty and every worker is free, clear the forced stop
//     flag and publish the run summary exactly once.
//
// Free workers are kept in a FIFO queue so none of them is starved.
//
// # Stop and Close
//
// Stop is cooperative: it drops queued tests and suppresses retries, but
// in-flight tests run to completion. Close cancels the context given to
// in-flight sends, waits for the forwarding goroutines and ends the loop.
// A batch interrupted by Close publishes no run summary.
//
// # Usage Example
//
//	p, err := pool.New("chrome", workers, 2, pool.WithObserver(pool.ObserverFuncs{
//	    Status: func(e models.StatusEvent) { log.Println(e.Test.Title(), e.Status) },
//	    Done:   func(s models.RunSummary) { close(done) },
//	}))
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	if err := p.Start(tests); err != nil {
//	    return err // RejectedStartError: a batch is still running
//	}
//	<-done
package pool
