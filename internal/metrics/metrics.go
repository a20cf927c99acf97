package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bqflow"

// Metrics holds the collectors shared by the clients and the task runner.
type Metrics struct {
	RemoteOperationDuration *prometheus.HistogramVec
	TaskRunDuration         *prometheus.HistogramVec
	TaskRuns                *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg skips registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RemoteOperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "remote_operation_duration_seconds",
			Help:      "Time spent in BigQuery and GCS calls.",

			// Metadata calls take tens of ms, load and query jobs up to minutes.
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"service", "operation", "status"}),
		TaskRunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_run_duration_seconds",
			Help:      "Time spent running tasks.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"kind", "status"}),
		TaskRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_runs_total",
			Help:      "Task runs by final status.",
		}, []string{"kind", "status"}),
	}

	if reg != nil {
		reg.MustRegister(m.RemoteOperationDuration, m.TaskRunDuration, m.TaskRuns)
	}
	return m
}

// ObserveRemote records the duration of a remote call started at start.
// Nil receivers are allowed so clients can run without metrics.
func (m *Metrics) ObserveRemote(service, operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.RemoteOperationDuration.WithLabelValues(service, operation, StatusCode(err)).Observe(time.Since(start).Seconds())
}

// ObserveTask records a finished task run.
func (m *Metrics) ObserveTask(kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.TaskRunDuration.WithLabelValues(kind, status).Observe(d.Seconds())
	m.TaskRuns.WithLabelValues(kind, status).Inc()
}

// StatusCode maps an error to a low-cardinality label.
func StatusCode(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
