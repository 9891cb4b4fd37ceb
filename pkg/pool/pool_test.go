package pool_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tupyy/browser-runner/internal/models"
	srvErrors "github.com/tupyy/browser-runner/pkg/errors"
	"github.com/tupyy/browser-runner/pkg/pool"
	"github.com/tupyy/browser-runner/pkg/worker"
)

// recorder collects the events published by a pool.
type recorder struct {
	mu        sync.Mutex
	events    []models.StatusEvent
	summaries chan models.RunSummary
}

func newRecorder() *recorder {
	return &recorder{summaries: make(chan models.RunSummary, 10)}
}

func (r *recorder) OnStatus(e models.StatusEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) OnDone(s models.RunSummary) {
	r.summaries <- s
}

func (r *recorder) Events() []models.StatusEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.StatusEvent(nil), r.events...)
}

func (r *recorder) Count(status models.TestStatus) int {
	n := 0
	for _, e := range r.Events() {
		if e.Status == status {
			n++
		}
	}
	return n
}

func (r *recorder) Pending() []string {
	var ids []string
	for _, e := range r.Events() {
		if e.Status == models.TestStatusPending {
			ids = append(ids, e.Test.ID)
		}
	}
	return ids
}

func (r *recorder) For(id string) []models.StatusEvent {
	var out []models.StatusEvent
	for _, e := range r.Events() {
		if e.Test.ID == id {
			out = append(out, e)
		}
	}
	return out
}

// rawWorker replies with fixed bytes.
type rawWorker struct {
	data []byte
	err  error
}

func (w rawWorker) Send(ctx context.Context, payload []byte) *models.Future[models.Result[[]byte]] {
	return models.ResolvedFuture(models.Result[[]byte]{Data: w.data, Err: w.err})
}

func makeTests(ids ...string) []models.Test {
	tests := make([]models.Test, 0, len(ids))
	for _, id := range ids {
		tests = append(tests, models.Test{ID: id, Path: []string{"suite", id}})
	}
	return tests
}

func reply(status models.TestStatus) models.Reply {
	return models.Reply{Status: status}
}

func alwaysPass(ctx context.Context, t models.Test) models.Reply {
	return reply(models.TestStatusPassed)
}

func alwaysFail(ctx context.Context, t models.Test) models.Reply {
	return models.Reply{Status: models.TestStatusFailed, Error: "assertion failed"}
}

var _ = Describe("Pool", func() {
	var (
		p   *pool.Pool
		rec *recorder
	)

	BeforeEach(func() {
		rec = newRecorder()
	})

	AfterEach(func() {
		if p != nil {
			p.Close()
			p = nil
		}
	})

	Describe("New", func() {
		It("should refuse a pool without workers", func() {
			_, err := pool.New("chrome", nil, 1)
			Expect(err).To(HaveOccurred())
		})

		It("should refuse a negative retry bound", func() {
			_, err := pool.New("chrome", worker.Funcs(1, alwaysPass), -1)
			Expect(err).To(HaveOccurred())
		})

		It("should start idle", func() {
			var err error
			p, err = pool.New("chrome", worker.Funcs(3, alwaysPass), 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.IsRunning()).To(BeFalse())
			Expect(p.Size()).To(Equal(3))
			Expect(p.Browser()).To(Equal("chrome"))
		})
	})

	DescribeTable("successful batches",
		func(workers, maxRetries, tests int) {
			var err error
			p, err = pool.New("chrome", worker.Funcs(workers, alwaysPass), maxRetries, pool.WithObserver(rec))
			Expect(err).NotTo(HaveOccurred())

			ids := make([]string, 0, tests)
			for i := range tests {
				ids = append(ids, string(rune('a'+i)))
			}
			Expect(p.Start(makeTests(ids...))).To(Succeed())

			var summary models.RunSummary
			Eventually(rec.summaries, 2*time.Second).Should(Receive(&summary))
			Expect(rec.Count(models.TestStatusPending)).To(Equal(tests))
			Expect(rec.Count(models.TestStatusPassed)).To(Equal(tests))
			Expect(rec.Count(models.TestStatusFailed)).To(BeZero())
			Expect(summary.Passed).To(Equal(tests))
			Expect(summary.Retries).To(BeZero())
			Expect(summary.Forced).To(BeFalse())
			Expect(summary.RunID).NotTo(BeEmpty())
			for _, e := range rec.Events() {
				Expect(e.Test.Retries).To(BeZero())
				Expect(e.Browser).To(Equal("chrome"))
			}
			Expect(p.IsRunning()).To(BeFalse())
		},
		Entry("one worker, one test", 1, 0, 1),
		Entry("one worker, many tests", 1, 2, 7),
		Entry("more workers than tests", 5, 1, 3),
		Entry("many workers, many tests", 4, 3, 20),
	)

	Describe("Retry", func() {
		It("should retry an always failing test exactly maxRetries times", func() {
			var err error
			p, err = pool.New("chrome", worker.Funcs(2, alwaysFail), 3, pool.WithObserver(rec))
			Expect(err).NotTo(HaveOccurred())

			Expect(p.Start(makeTests("flaky"))).To(Succeed())

			var summary models.RunSummary
			Eventually(rec.summaries, 2*time.Second).Should(Receive(&summary))

			events := rec.For("flaky")
			Expect(rec.Count(models.TestStatusPending)).To(Equal(4))
			Expect(rec.Count(models.TestStatusFailed)).To(Equal(4))

			var final []models.StatusEvent
			for _, e := range events {
				if e.Status == models.TestStatusFailed && !e.WillRetry {
					final = append(final, e)
				}
			}
			Expect(final).To(HaveLen(1))
			Expect(final[0].Test.Retries).To(Equal(3))
			Expect(final[0].RetryExhausted(3)).To(BeTrue())
			Expect(final[0].Err).To(MatchError("assertion failed"))
			Expect(summary.Failed).To(Equal(1))
			Expect(summary.Retries).To(Equal(3))
		})

		It("should not retry when maxRetries is zero", func() {
			var err error
			p, err = pool.New("chrome", worker.Funcs(1, alwaysFail), 0, pool.WithObserver(rec))
			Expect(err).NotTo(HaveOccurred())

			Expect(p.Start(makeTests("a"))).To(Succeed())
			Eventually(rec.summaries, 2*time.Second).Should(Receive())

			Expect(rec.Count(models.TestStatusPending)).To(Equal(1))
			Expect(rec.Count(models.TestStatusFailed)).To(Equal(1))
		})

		It("should append a retried test behind the queued ones", func() {
			var bAttempts atomic.Int32
			run := func(ctx context.Context, t models.Test) models.Reply {
				if t.ID == "B" && bAttempts.Add(1) == 1 {
					return reply(models.TestStatusFailed)
				}
				return reply(models.TestStatusPassed)
			}

			var err error
			p, err = pool.New("chrome", worker.Funcs(2, run), 1, pool.WithObserver(rec))
			Expect(err).NotTo(HaveOccurred())

			Expect(p.Start(makeTests("A", "B", "C"))).To(Succeed())
			Eventually(rec.summaries, 2*time.Second).Should(Receive())

			Expect(rec.Pending()).To(Equal([]string{"A", "B", "C", "B"}))

			b := rec.For("B")
			Expect(b).To(HaveLen(4))
			Expect(b[1].Status).To(Equal(models.TestStatusFailed))
			Expect(b[1].WillRetry).To(BeTrue())
			Expect(b[2].Status).To(Equal(models.TestStatusPending))
			Expect(b[2].Test.Retries).To(Equal(1))
			Expect(b[3].Status).To(Equal(models.TestStatusPassed))

			Expect(rec.Count(models.TestStatusPassed)).To(Equal(3))
			Expect(bAttempts.Load()).To(BeEquivalentTo(2))
		})
	})

	Describe("Start", func() {
		It("should reject a batch while running without touching the queue", func() {
			release := make(chan struct{})
			run := func(ctx context.Context, t models.Test) models.Reply {
				<-release
				return reply(models.TestStatusPassed)
			}

			var err error
			p, err = pool.New("chrome", worker.Funcs(1, run), 0, pool.WithObserver(rec))
			Expect(err).NotTo(HaveOccurred())

			Expect(p.Start(makeTests("a", "b"))).To(Succeed())
			Eventually(p.IsRunning).Should(BeTrue())

			err = p.Start(makeTests("x", "y", "z"))
			Expect(err).To(HaveOccurred())
			Expect(srvErrors.IsRejectedStartError(err)).To(BeTrue())

			close(release)
			Eventually(rec.summaries, 2*time.Second).Should(Receive())
			Expect(rec.Pending()).To(Equal([]string{"a", "b"}))
		})

		It("should accept a new batch after the previous one completed", func() {
			var err error
			p, err = pool.New("chrome", worker.Funcs(2, alwaysPass), 0, pool.WithObserver(rec))
			Expect(err).NotTo(HaveOccurred())

			Expect(p.Start(makeTests("a"))).To(Succeed())
			Eventually(rec.summaries, 2*time.Second).Should(Receive())
			Expect(p.IsRunning()).To(BeFalse())

			Expect(p.Start(makeTests("b"))).To(Succeed())
			Eventually(rec.summaries, 2*time.Second).Should(Receive())
			Expect(rec.Pending()).To(Equal([]string{"a", "b"}))
		})

		It("should reset the retry counter of submitted tests", func() {
			var err error
			p, err = pool.New("chrome", worker.Funcs(1, alwaysPass), 0, pool.WithObserver(rec))
			Expect(err).NotTo(HaveOccurred())

			Expect(p.Start([]models.Test{{ID: "a", Retries: 5}})).To(Succeed())
			Eventually(rec.summaries, 2*time.Second).Should(Receive())
			Expect(rec.Events()[0].Test.Retries).To(BeZero())
		})

		It("should complete an empty batch immediately", func() {
			var err error
			p, err = pool.New("chrome", worker.Funcs(1, alwaysPass), 0, pool.WithObserver(rec))
			Expect(err).NotTo(HaveOccurred())

			Expect(p.Start(nil)).To(Succeed())
			Eventually(rec.summaries, time.Second).Should(Receive())
			Expect(rec.Events()).To(BeEmpty())
		})

		It("should give every free worker a test", func() {
			release := make(chan struct{})
			var used sync.Map
			workers := make([]pool.Worker, 0, 3)
			for i := range 3 {
				workers = append(workers, worker.NewFunc(func(ctx context.Context, t models.Test) models.Reply {
					used.Store(i, true)
					<-release
					return reply(models.TestStatusPassed)
				}))
			}

			var err error
			p, err = pool.New("chrome", workers, 0, pool.WithObserver(rec))
			Expect(err).NotTo(HaveOccurred())

			Expect(p.Start(makeTests("a", "b", "c", "d", "e"))).To(Succeed())
			Eventually(func() int {
				n := 0
				used.Range(func(_, _ any) bool { n++; return true })
				return n
			}).Should(Equal(3))
			Consistently(rec.Pending, 100*time.Millisecond).Should(HaveLen(3))

			close(release)
			Eventually(rec.summaries, 2*time.Second).Should(Receive())
			Expect(rec.Count(models.TestStatusPassed)).To(Equal(5))
		})

		It("should fail once the pool is closed", func() {
			var err error
			p, err = pool.New("chrome", worker.Funcs(1, alwaysPass), 0)
			Expect(err).NotTo(HaveOccurred())
			p.Close()

			err = p.Start(makeTests("a"))
			Expect(srvErrors.IsPoolClosedError(err)).To(BeTrue())
			p = nil
		})
	})

	Describe("Stop", func() {
		var release chan struct{}

		blocking := func(status models.TestStatus) worker.RunFunc {
			return func(ctx context.Context, t models.Test) models.Reply {
				<-release
				return reply(status)
			}
		}

		BeforeEach(func() {
			release = make(chan struct{})
		})

		It("should not dispatch queued tests after stop", func() {
			var err error
			p, err = pool.New("chrome", worker.Funcs(2, blocking(models.TestStatusPassed)), 1, pool.WithObserver(rec))
			Expect(err).NotTo(HaveOccurred())

			Expect(p.Start(makeTests("a", "b", "c", "d", "e"))).To(Succeed())
			Eventually(rec.Pending).Should(HaveLen(2))

			p.Stop()
			Expect(p.IsRunning()).To(BeTrue())
			close(release)

			var summary models.RunSummary
			Eventually(rec.summaries, 2*time.Second).Should(Receive(&summary))
			Expect(summary.Forced).To(BeTrue())
			Expect(summary.Passed).To(Equal(2))
			Expect(rec.Pending()).To(Equal([]string{"a", "b"}))
			Expect(rec.Count(models.TestStatusPassed)).To(Equal(2))
			Expect(p.IsRunning()).To(BeFalse())
		})

		It("should not retry a test failing after stop", func() {
			var err error
			p, err = pool.New("chrome", worker.Funcs(1, blocking(models.TestStatusFailed)), 3, pool.WithObserver(rec))
			Expect(err).NotTo(HaveOccurred())

			Expect(p.Start(makeTests("a"))).To(Succeed())
			Eventually(rec.Pending).Should(HaveLen(1))

			p.Stop()
			close(release)

			Eventually(rec.summaries, 2*time.Second).Should(Receive())
			events := rec.For("a")
			Expect(events).To(HaveLen(2))
			Expect(events[1].Status).To(Equal(models.TestStatusFailed))
			Expect(events[1].WillRetry).To(BeFalse())
		})

		It("should clear the forced stop once idle", func() {
			var err error
			p, err = pool.New("chrome", worker.Funcs(1, blocking(models.TestStatusFailed)), 1, pool.WithObserver(rec))
			Expect(err).NotTo(HaveOccurred())

			Expect(p.Start(makeTests("a"))).To(Succeed())
			Eventually(rec.Pending).Should(HaveLen(1))
			p.Stop()
			close(release)

			var summary models.RunSummary
			Eventually(rec.summaries, 2*time.Second).Should(Receive(&summary))
			Expect(summary.Forced).To(BeTrue())

			// the next batch retries again
			Expect(p.Start(makeTests("b"))).To(Succeed())
			Eventually(rec.summaries, 2*time.Second).Should(Receive(&summary))
			Expect(summary.Forced).To(BeFalse())
			Expect(summary.Retries).To(Equal(1))
			Expect(rec.For("b")).To(HaveLen(4))
		})

		It("should be a no-op when idle", func() {
			var err error
			p, err = pool.New("chrome", worker.Funcs(1, alwaysFail), 1, pool.WithObserver(rec))
			Expect(err).NotTo(HaveOccurred())

			p.Stop()
			Expect(p.Start(makeTests("a"))).To(Succeed())

			var summary models.RunSummary
			Eventually(rec.summaries, 2*time.Second).Should(Receive(&summary))
			Expect(summary.Forced).To(BeFalse())
			Expect(rec.Pending()).To(Equal([]string{"a", "a"}))
		})
	})

	Describe("Malformed replies", func() {
		It("should treat an undecodable reply as a failed attempt", func() {
			var err error
			p, err = pool.New("chrome", []pool.Worker{rawWorker{data: []byte("not json")}}, 1, pool.WithObserver(rec))
			Expect(err).NotTo(HaveOccurred())

			Expect(p.Start(makeTests("a"))).To(Succeed())
			var summary models.RunSummary
			Eventually(rec.summaries, 2*time.Second).Should(Receive(&summary))

			Expect(rec.Count(models.TestStatusFailed)).To(Equal(2))
			for _, e := range rec.For("a") {
				if e.Status == models.TestStatusFailed {
					Expect(srvErrors.IsMalformedReplyError(e.Err)).To(BeTrue())
				}
			}
			Expect(summary.Failed).To(Equal(1))
		})

		It("should treat an unknown status as a failed attempt", func() {
			var err error
			p, err = pool.New("chrome", []pool.Worker{rawWorker{data: []byte(`{"status":"pending"}`)}}, 0, pool.WithObserver(rec))
			Expect(err).NotTo(HaveOccurred())

			Expect(p.Start(makeTests("a"))).To(Succeed())
			Eventually(rec.summaries, 2*time.Second).Should(Receive())
			Expect(rec.Count(models.TestStatusFailed)).To(Equal(1))
		})

		It("should treat a reply for another test as a failed attempt", func() {
			var err error
			p, err = pool.New("chrome", []pool.Worker{rawWorker{data: []byte(`{"id":"other","status":"passed"}`)}}, 0, pool.WithObserver(rec))
			Expect(err).NotTo(HaveOccurred())

			Expect(p.Start(makeTests("a"))).To(Succeed())
			Eventually(rec.summaries, 2*time.Second).Should(Receive())
			Expect(rec.Count(models.TestStatusPassed)).To(BeZero())
			Expect(rec.Count(models.TestStatusFailed)).To(Equal(1))
		})

		It("should treat a worker error as a failed attempt", func() {
			var err error
			p, err = pool.New("chrome", []pool.Worker{rawWorker{err: srvErrors.NewWorkerExitedError(42, nil)}}, 0, pool.WithObserver(rec))
			Expect(err).NotTo(HaveOccurred())

			Expect(p.Start(makeTests("a"))).To(Succeed())
			Eventually(rec.summaries, 2*time.Second).Should(Receive())

			events := rec.For("a")
			Expect(events).To(HaveLen(2))
			Expect(srvErrors.IsWorkerExitedError(events[1].Err)).To(BeTrue())
		})
	})

	Describe("Busy worker", func() {
		It("should report a busy worker as it is and not as a malformed reply", func() {
			var err error
			p, err = pool.New("chrome", []pool.Worker{rawWorker{err: srvErrors.NewWorkerBusyError()}}, 0, pool.WithObserver(rec))
			Expect(err).NotTo(HaveOccurred())

			Expect(p.Start(makeTests("a"))).To(Succeed())
			Eventually(rec.summaries, 2*time.Second).Should(Receive())

			events := rec.For("a")
			Expect(events).To(HaveLen(2))
			Expect(events[1].Status).To(Equal(models.TestStatusFailed))
			Expect(srvErrors.IsWorkerBusyError(events[1].Err)).To(BeTrue())
			Expect(srvErrors.IsMalformedReplyError(events[1].Err)).To(BeFalse())
		})
	})

	Describe("Timeout", func() {
		It("should fail an attempt that does not reply in time", func() {
			run := func(ctx context.Context, t models.Test) models.Reply {
				<-ctx.Done()
				return reply(models.TestStatusPassed)
			}

			var err error
			p, err = pool.New("chrome", worker.Funcs(1, run), 0, pool.WithObserver(rec), pool.WithTimeout(50*time.Millisecond))
			Expect(err).NotTo(HaveOccurred())

			Expect(p.Start(makeTests("slow"))).To(Succeed())
			Eventually(rec.summaries, 2*time.Second).Should(Receive())

			events := rec.For("slow")
			Expect(events).To(HaveLen(2))
			Expect(events[1].Status).To(Equal(models.TestStatusFailed))
			Expect(events[1].Err).To(MatchError(context.DeadlineExceeded))
		})

		It("should keep a timed out worker busy until it replies", func() {
			release := make(chan struct{})
			run := func(ctx context.Context, t models.Test) models.Reply {
				if t.ID == "slow" {
					<-release
				}
				return reply(models.TestStatusPassed)
			}

			var err error
			p, err = pool.New("chrome", worker.Funcs(1, run), 0, pool.WithObserver(rec), pool.WithTimeout(50*time.Millisecond))
			Expect(err).NotTo(HaveOccurred())

			Expect(p.Start(makeTests("slow", "fast"))).To(Succeed())
			Eventually(func() int { return rec.Count(models.TestStatusFailed) }, 2*time.Second).Should(Equal(1))

			Consistently(rec.Pending, 200*time.Millisecond).Should(Equal([]string{"slow"}))
			Expect(p.IsRunning()).To(BeTrue())
			Expect(srvErrors.IsRejectedStartError(p.Start(makeTests("other")))).To(BeTrue())

			close(release)
			var summary models.RunSummary
			Eventually(rec.summaries, 2*time.Second).Should(Receive(&summary))
			Expect(summary.Passed).To(Equal(1))
			Expect(summary.Failed).To(Equal(1))

			fast := rec.For("fast")
			Expect(fast).To(HaveLen(2))
			Expect(fast[1].Status).To(Equal(models.TestStatusPassed))
			Expect(p.IsRunning()).To(BeFalse())
		})

		It("should not fail the next test after a timeout", func() {
			run := func(ctx context.Context, t models.Test) models.Reply {
				if t.ID == "slow" {
					<-ctx.Done()
					time.Sleep(20 * time.Millisecond)
				}
				return reply(models.TestStatusPassed)
			}

			var err error
			p, err = pool.New("chrome", worker.Funcs(1, run), 2, pool.WithObserver(rec), pool.WithTimeout(50*time.Millisecond))
			Expect(err).NotTo(HaveOccurred())

			Expect(p.Start(makeTests("slow", "fast"))).To(Succeed())
			var summary models.RunSummary
			Eventually(rec.summaries, 5*time.Second).Should(Receive(&summary))

			for _, e := range rec.For("fast") {
				Expect(e.Status).NotTo(Equal(models.TestStatusFailed))
			}
			Expect(rec.For("fast")).To(HaveLen(2))

			slow := rec.For("slow")
			Expect(slow).To(HaveLen(6))
			Expect(slow[5].Status).To(Equal(models.TestStatusFailed))
			Expect(slow[5].Err).To(MatchError(context.DeadlineExceeded))
			Expect(summary.Passed).To(Equal(1))
			Expect(summary.Failed).To(Equal(1))
			Expect(summary.Retries).To(Equal(2))
		})
	})

	Describe("Close", func() {
		It("should return while a test is in flight", func() {
			run := func(ctx context.Context, t models.Test) models.Reply {
				<-ctx.Done()
				return reply(models.TestStatusFailed)
			}

			var err error
			p, err = pool.New("chrome", worker.Funcs(1, run), 0, pool.WithObserver(rec))
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Start(makeTests("a"))).To(Succeed())
			Eventually(rec.Pending).Should(HaveLen(1))

			closed := make(chan struct{})
			go func() {
				p.Close()
				close(closed)
			}()
			Eventually(closed, 2*time.Second).Should(BeClosed())
			Expect(p.IsRunning()).To(BeFalse())
			Consistently(rec.summaries, 100*time.Millisecond).ShouldNot(Receive())
			p = nil
		})
	})

	Describe("Subscribe", func() {
		It("should deliver events to observers registered before Start", func() {
			var err error
			p, err = pool.New("firefox", worker.Funcs(1, alwaysPass), 0)
			Expect(err).NotTo(HaveOccurred())

			done := make(chan models.RunSummary, 1)
			var statuses []models.TestStatus
			var mu sync.Mutex
			p.Subscribe(pool.ObserverFuncs{
				Status: func(e models.StatusEvent) {
					mu.Lock()
					statuses = append(statuses, e.Status)
					mu.Unlock()
				},
				Done: func(s models.RunSummary) { done <- s },
			})

			Expect(p.Start(makeTests("a"))).To(Succeed())
			var summary models.RunSummary
			Eventually(done, 2*time.Second).Should(Receive(&summary))
			Expect(summary.Browser).To(Equal("firefox"))

			mu.Lock()
			defer mu.Unlock()
			Expect(statuses).To(Equal([]models.TestStatus{models.TestStatusPending, models.TestStatusPassed}))
		})
	})
})
