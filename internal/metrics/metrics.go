// Package metrics exports pool activity as Prometheus metrics.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tupyy/browser-runner/internal/models"
)

const namespace = "browser_runner"

// Collector is a pool.Observer recording attempts, retries and batches.
// It owns its registry so several collectors can live in one process.
type Collector struct {
	registry *prometheus.Registry

	attempts  *prometheus.CounterVec
	retries   *prometheus.CounterVec
	inFlight  *prometheus.GaugeVec
	latency   *prometheus.HistogramVec
	batches   *prometheus.CounterVec
	batchTime *prometheus.HistogramVec

	mu      sync.Mutex
	started map[string]time.Time
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Finished test attempts by browser and status",
		}, []string{"browser", "status"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Failed attempts that were queued again",
		}, []string{"browser"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tests_in_flight",
			Help:      "Tests currently running on a worker",
		}, []string{"browser"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Duration of a single test attempt",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"browser"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Completed batches by browser, forced when stopped",
		}, []string{"browser", "forced"}),
		batchTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of a batch from start to completion",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"browser"}),
		started: make(map[string]time.Time),
	}

	c.registry.MustRegister(
		c.attempts,
		c.retries,
		c.inFlight,
		c.latency,
		c.batches,
		c.batchTime,
	)
	return c
}

// Registry returns the registry holding the collector's metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// OnStatus implements pool.Observer.
func (c *Collector) OnStatus(e models.StatusEvent) {
	key := e.Browser + "\x00" + e.Test.ID

	if e.Status == models.TestStatusPending {
		c.inFlight.WithLabelValues(e.Browser).Inc()
		c.mu.Lock()
		c.started[key] = e.Time
		c.mu.Unlock()
		return
	}

	c.inFlight.WithLabelValues(e.Browser).Dec()
	c.attempts.WithLabelValues(e.Browser, string(e.Status)).Inc()
	if e.WillRetry {
		c.retries.WithLabelValues(e.Browser).Inc()
	}

	c.mu.Lock()
	start, ok := c.started[key]
	delete(c.started, key)
	c.mu.Unlock()
	if ok {
		c.latency.WithLabelValues(e.Browser).Observe(e.Time.Sub(start).Seconds())
	}
}

// OnDone implements pool.Observer.
func (c *Collector) OnDone(s models.RunSummary) {
	forced := "false"
	if s.Forced {
		forced = "true"
	}
	c.batches.WithLabelValues(s.Browser, forced).Inc()
	c.batchTime.WithLabelValues(s.Browser).Observe(s.Duration().Seconds())
}
