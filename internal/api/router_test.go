package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/bqflow/internal/api/handlers"
	bqmem "github.com/dvloznov/bqflow/internal/bigquery/inmemory"
	"github.com/dvloznov/bqflow/internal/jobs"
	jobsmem "github.com/dvloznov/bqflow/internal/jobs/inmemory"
	"github.com/dvloznov/bqflow/internal/logger"
	"github.com/dvloznov/bqflow/internal/metrics"
)

const manifestBody = `
project: p
tasks:
  - kind: query
    destination: ds.first
    query: SELECT 1
  - kind: view
    destination: ds.v
    query: SELECT 2
`

type testServer struct {
	handler http.Handler
	queue   *jobsmem.Queue
	store   *jobsmem.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	store := jobsmem.NewStore()
	queue := jobsmem.NewQueue(10, store, jobsmem.WithWorkers(1))
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, queue.Start(ctx, jobs.TaskHandler(m)))
	t.Cleanup(func() {
		cancel()
		_ = queue.Stop(context.Background())
	})

	runs := handlers.NewRunsHandler(queue, store, bqmem.NewWarehouse(nil), nil, logger.Nop())
	return &testServer{
		handler: NewRouter(runs, reg, logger.Nop()),
		queue:   queue,
		store:   store,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestSubmitAndInspectRuns(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/runs", manifestBody)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var submitted struct {
		JobIDs []string `json:"job_ids"`
		Count  int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	require.Equal(t, 2, submitted.Count)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.queue.Drain(ctx))

	rec = s.do(t, http.MethodGet, "/api/runs/"+submitted.JobIDs[0], "")
	require.Equal(t, http.StatusOK, rec.Code)
	var run jobs.TaskRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, jobs.RunStatusCompleted, run.Status)
	assert.Equal(t, "RunQueryTask(bq://p/ds/first)", run.TaskID)

	rec = s.do(t, http.MethodGet, "/api/runs?kind=view", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Runs  []jobs.TaskRun `json:"runs"`
		Count int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Equal(t, 1, listed.Count)

	rec = s.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `bqflow_task_runs_total{kind="query",status="success"} 1`)
}

func TestRouterErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "invalid manifest", method: http.MethodPost, path: "/api/runs", body: "tasks: []", want: http.StatusBadRequest},
		{name: "missing project", method: http.MethodPost, path: "/api/runs", body: "tasks:\n  - kind: query\n    destination: d.t\n    query: SELECT 1\n", want: http.StatusBadRequest},
		{name: "unknown run", method: http.MethodGet, path: "/api/runs/nope", want: http.StatusNotFound},
		{name: "bad limit", method: http.MethodGet, path: "/api/runs?limit=ten", want: http.StatusBadRequest},
		{name: "method", method: http.MethodDelete, path: "/api/runs", want: http.StatusMethodNotAllowed},
		{name: "health", method: http.MethodGet, path: "/health", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}
