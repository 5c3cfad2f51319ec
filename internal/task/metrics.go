package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by a Pool.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	TasksSubmitted *prometheus.CounterVec
	TasksCompleted *prometheus.CounterVec
	TasksFailed    *prometheus.CounterVec
	TasksRunning   prometheus.Gauge
	TasksPending   prometheus.Gauge
	TaskLatency    prometheus.Histogram
}

// NewMetrics creates the pool collectors and registers them with reg.
// Collectors that are already registered are reused, so several pools may
// share one registry.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		TasksSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tasks_submitted_total",
			Help:      "Total number of tasks submitted to the pool",
		}, []string{"tag"}),
		TasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tasks_completed_total",
			Help:      "Total number of tasks that finished without error",
		}, []string{"tag"}),
		TasksFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tasks_failed_total",
			Help:      "Total number of tasks that returned an error or panicked",
		}, []string{"tag"}),
		TasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tasks_running",
			Help:      "Current number of running tasks",
		}),
		TasksPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "tasks_pending",
			Help:      "Current number of tasks waiting for a free executor",
		}),
		TaskLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "task_duration_seconds",
			Help:      "Histogram of task execution time",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	var err error
	m.TasksSubmitted, err = register(reg, m.TasksSubmitted)
	if err != nil {
		return nil, err
	}
	m.TasksCompleted, err = register(reg, m.TasksCompleted)
	if err != nil {
		return nil, err
	}
	m.TasksFailed, err = register(reg, m.TasksFailed)
	if err != nil {
		return nil, err
	}
	m.TasksRunning, err = register(reg, m.TasksRunning)
	if err != nil {
		return nil, err
	}
	m.TasksPending, err = register(reg, m.TasksPending)
	if err != nil {
		return nil, err
	}
	m.TaskLatency, err = register(reg, m.TaskLatency)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("failed to register pool metrics: %w", err)
	}
	return c, nil
}

func (m *Metrics) submitted(tag string) {
	if m == nil {
		return
	}
	m.TasksSubmitted.WithLabelValues(tag).Inc()
	m.TasksPending.Inc()
}

func (m *Metrics) started() {
	if m == nil {
		return
	}
	m.TasksPending.Dec()
	m.TasksRunning.Inc()
}

func (m *Metrics) finished(tag string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.TasksRunning.Dec()
	m.TaskLatency.Observe(elapsed.Seconds())
	if err != nil {
		m.TasksFailed.WithLabelValues(tag).Inc()
		return
	}
	m.TasksCompleted.WithLabelValues(tag).Inc()
}

// sync sets the gauges to the pool state at the time metrics were attached
func (m *Metrics) sync(pending, running int) {
	if m == nil {
		return
	}
	m.TasksPending.Set(float64(pending))
	m.TasksRunning.Set(float64(running))
}

func (m *Metrics) discarded(n int) {
	if m == nil {
		return
	}
	m.TasksPending.Sub(float64(n))
}
