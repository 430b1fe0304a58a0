package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerMetrics captures background job health.
type SchedulerMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobErrors   *prometheus.CounterVec
	jobTimeouts *prometheus.CounterVec
	processed   *prometheus.CounterVec
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the process-wide scheduler metrics.
func Scheduler() *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer)
	})
	return schedulerMetrics
}

func newSchedulerMetrics(registerer prometheus.Registerer) *SchedulerMetrics {
	m := &SchedulerMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payoutd_scheduler_job_runs_total",
			Help: "Scheduler job runs by name.",
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payoutd_scheduler_job_duration_seconds",
			Help:    "Scheduler job latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payoutd_scheduler_job_errors_total",
			Help: "Scheduler job errors by reason.",
		}, []string{"job", "reason"}),
		jobTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payoutd_scheduler_job_timeouts_total",
			Help: "Scheduler job timeouts.",
		}, []string{"job"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payoutd_scheduler_items_processed_total",
			Help: "Items handled by scheduler jobs.",
		}, []string{"job"}),
	}
	m.jobRuns = register(registerer, m.jobRuns)
	m.jobDuration = register(registerer, m.jobDuration)
	m.jobErrors = register(registerer, m.jobErrors)
	m.jobTimeouts = register(registerer, m.jobTimeouts)
	m.processed = register(registerer, m.processed)
	return m
}

// register returns the already registered collector when one with the same
// descriptor exists.
func register[T prometheus.Collector](registerer prometheus.Registerer, c T) T {
	if err := registerer.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	reason := "unknown"
	if errors.Is(err, context.DeadlineExceeded) {
		reason = "deadline_exceeded"
	}
	m.jobErrors.WithLabelValues(job, reason).Inc()
}

func (m *SchedulerMetrics) AddProcessed(job string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.processed.WithLabelValues(job).Add(float64(n))
}

// ResetSchedulerMetricsForTest drops the cached collectors so a test can
// register them against its own registry.
func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}
