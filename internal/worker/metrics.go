// ABOUTME: Prometheus metrics for the worker pool
// ABOUTME: All methods are nil-safe so a Pool without metrics pays nothing

package worker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK        = "ok"
	outcomeError     = "error"
	outcomePanic     = "panic"
	outcomeCancelled = "cancelled"
)

// Metrics holds the pool's Prometheus collectors.
type Metrics struct {
	tasks      *prometheus.CounterVec
	inFlight   prometheus.Gauge
	duration   *prometheus.HistogramVec
	submitWait prometheus.Histogram
	abandoned  prometheus.Counter
}

// NewMetrics creates the pool collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		tasks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_worker_tasks_total",
			Help: "Tasks finished by kind and outcome",
		}, []string{"kind", "outcome"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "warden_worker_in_flight",
			Help: "Tasks currently running",
		}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warden_worker_task_duration_seconds",
			Help:    "Task run time in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		submitWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "warden_worker_submit_wait_seconds",
			Help:    "Time Submit spent waiting for a free slot",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		}),
		abandoned: f.NewCounter(prometheus.CounterOpts{
			Name: "warden_worker_abandoned_total",
			Help: "Tasks still running when the shutdown grace period expired",
		}),
	}
}

func (m *Metrics) observeTask(kind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(kind, outcome).Inc()
	m.duration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) observeWait(d time.Duration) {
	if m == nil {
		return
	}
	m.submitWait.Observe(d.Seconds())
}

func (m *Metrics) setInFlight(n int64) {
	if m == nil {
		return
	}
	m.inFlight.Set(float64(n))
}

func (m *Metrics) addAbandoned(n int) {
	if m == nil {
		return
	}
	m.abandoned.Add(float64(n))
}
