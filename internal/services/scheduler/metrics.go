package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the scheduler's Prometheus collectors on a dedicated
// registry so tests can create schedulers without collector collisions
type metrics struct {
	registry  *prometheus.Registry
	submitted *prometheus.CounterVec
	succeeded *prometheus.CounterVec
	failed    *prometheus.CounterVec
	retried   *prometheus.CounterVec
	active    prometheus.Gauge
	queued    prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "merx",
			Subsystem: "scheduler",
			Name:      "tasks_submitted_total",
			Help:      "Tasks accepted into the queue",
		}, []string{"kind"}),
		succeeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "merx",
			Subsystem: "scheduler",
			Name:      "tasks_succeeded_total",
			Help:      "Tasks that completed successfully",
		}, []string{"kind"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "merx",
			Subsystem: "scheduler",
			Name:      "tasks_failed_total",
			Help:      "Tasks that failed terminally",
		}, []string{"kind"}),
		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "merx",
			Subsystem: "scheduler",
			Name:      "tasks_retried_total",
			Help:      "Task attempts re-enqueued after a recoverable failure",
		}, []string{"kind"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "merx",
			Subsystem: "scheduler",
			Name:      "tasks_active",
			Help:      "Tasks currently executing",
		}),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "merx",
			Subsystem: "scheduler",
			Name:      "tasks_queued",
			Help:      "Tasks waiting in the queue",
		}),
	}

	m.registry.MustRegister(m.submitted, m.succeeded, m.failed, m.retried, m.active, m.queued)
	return m
}

// Registry exposes the collectors for an optional metrics endpoint
func (m *metrics) Registry() *prometheus.Registry {
	return m.registry
}
