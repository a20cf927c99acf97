package jobs

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bq "github.com/dvloznov/bqflow/internal/bigquery"
	"github.com/dvloznov/bqflow/internal/bigquery/inmemory"
	"github.com/dvloznov/bqflow/internal/metrics"
	"github.com/dvloznov/bqflow/internal/tasks"
)

func TestTaskHandler(t *testing.T) {
	ctx := context.Background()
	m := metrics.New(prometheus.NewRegistry())
	handler := TaskHandler(m)

	wh := inmemory.NewWarehouse(nil)
	ok := &tasks.RunQueryTask{Client: wh, Query: "SELECT 1", Destination: bq.NewTable("p", "d", "t", "")}
	require.NoError(t, handler(ctx, NewTaskRun(ok, 0)))

	bad := &tasks.RunQueryTask{Client: wh, Query: "", Destination: bq.NewTable("p", "d", "u", "")}
	assert.Error(t, handler(ctx, NewTaskRun(bad, 0)))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TaskRuns.WithLabelValues(tasks.KindQuery, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TaskRuns.WithLabelValues(tasks.KindQuery, "error")))
}

func TestTaskHandler_NoTask(t *testing.T) {
	err := TaskHandler(nil)(context.Background(), &TaskRun{JobID: "x"})
	assert.ErrorContains(t, err, "no task attached")
}

func TestNewTaskRun(t *testing.T) {
	task := &tasks.LoadTask{Destination: bq.NewTable("p", "d", "t", "EU")}
	run := NewTaskRun(task, 2)

	assert.Equal(t, task.ID(), run.TaskID)
	assert.Equal(t, tasks.KindLoad, run.Kind)
	assert.Equal(t, RunStatusPending, run.Status)
	assert.Equal(t, 2, run.MaxRetries)
	assert.False(t, run.IsTerminal())

	run.Status = RunStatusRetrying
	assert.False(t, run.IsTerminal())
	run.Status = RunStatusFailed
	assert.True(t, run.IsTerminal())
}
