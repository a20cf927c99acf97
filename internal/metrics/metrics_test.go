package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	assert.Equal(t, "success", StatusCode(nil))
	assert.Equal(t, "error", StatusCode(errors.New("boom")))
	assert.Equal(t, "canceled", StatusCode(fmt.Errorf("wait: %w", context.Canceled)))
	assert.Equal(t, "canceled", StatusCode(context.DeadlineExceeded))
}

func TestObserveTask(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveTask("load", "completed", time.Second)
	m.ObserveTask("load", "completed", time.Second)
	m.ObserveTask("query", "failed", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TaskRuns.WithLabelValues("load", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TaskRuns.WithLabelValues("query", "failed")))
}

func TestObserveRemote(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRemote("bigquery", "table_exists", time.Now(), nil)

	assert.Equal(t, 1, testutil.CollectAndCount(m.RemoteOperationDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRemote("gcs", "exists", time.Now(), nil)
		m.ObserveTask("load", "completed", time.Second)
	})
}
