package migration

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for migration runs on their own
// registry. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Runs         *prometheus.CounterVec
	Steps        *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
	LockWait     prometheus.Histogram
	Applied      prometheus.Gauge
	Pending      prometheus.Gauge
}

// NewMetrics creates and registers the collectors under namespace
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of upgrade, downgrade and stamp calls",
		}, []string{"operation", "status"}),
		Steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Total number of revision steps executed",
		}, []string{"revision", "direction", "status"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of revision steps in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"direction"}),
		LockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for the migration lock",
			Buckets:   prometheus.DefBuckets,
		}),
		Applied: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "applied_revisions",
			Help:      "Number of revisions applied at the last observation",
		}),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_revisions",
			Help:      "Number of revisions pending at the last observation",
		}),
	}

	reg.MustRegister(m.Runs, m.Steps, m.StepDuration, m.LockWait, m.Applied, m.Pending)
	return m
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeRun(operation string, err error) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(operation, status(err)).Inc()
}

func (m *Metrics) observeStep(step Step, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.Steps.WithLabelValues(step.Revision, string(step.Direction), status(err)).Inc()
	m.StepDuration.WithLabelValues(string(step.Direction)).Observe(elapsed.Seconds())
}

func (m *Metrics) observeLockWait(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.LockWait.Observe(elapsed.Seconds())
}

func (m *Metrics) observePosition(applied, pending int) {
	if m == nil {
		return
	}
	m.Applied.Set(float64(applied))
	m.Pending.Set(float64(pending))
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
