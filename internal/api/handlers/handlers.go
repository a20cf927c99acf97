package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bqflow/internal/api/middleware"
	bq "github.com/dvloznov/bqflow/internal/bigquery"
	"github.com/dvloznov/bqflow/internal/gcs"
	"github.com/dvloznov/bqflow/internal/jobs"
	"github.com/dvloznov/bqflow/internal/manifest"
)

// maxManifestBytes bounds a submitted manifest.
const maxManifestBytes = 1 << 20

// RunsHandler accepts manifests and reports on the resulting task runs.
type RunsHandler struct {
	publisher jobs.Publisher
	store     jobs.Store
	client    bq.Warehouse
	storage   gcs.StorageService
	log       zerolog.Logger
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(publisher jobs.Publisher, store jobs.Store, client bq.Warehouse, storage gcs.StorageService, log zerolog.Logger) *RunsHandler {
	return &RunsHandler{
		publisher: publisher,
		store:     store,
		client:    client,
		storage:   storage,
		log:       log,
	}
}

// SubmitManifest handles POST /api/runs with a YAML manifest body.
func (h *RunsHandler) SubmitManifest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	m, err := manifest.Parse(io.LimitReader(r.Body, maxManifestBytes))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	built, err := m.Build(h.client, h.storage)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	runs := make([]*jobs.TaskRun, 0, len(built))
	for _, t := range built {
		run := jobs.NewTaskRun(t, m.MaxRetries)
		if err := h.publisher.Publish(ctx, run); err != nil {
			h.log.Error().Err(err).Str("task_id", t.ID()).Msg("Failed to enqueue task run")
			middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue task run")
			return
		}
		h.log.Info().Str("job_id", run.JobID).Str("task_id", run.TaskID).Msg("Task run enqueued")
		runs = append(runs, run)
	}

	ids := make([]string, 0, len(runs))
	for _, run := range runs {
		ids = append(ids, run.JobID)
	}
	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_ids": ids,
		"count":   len(ids),
	})
}

// GetRun handles GET /api/runs/{id}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request, jobID string) {
	run, err := h.store.GetRun(r.Context(), jobID)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Run not found")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, run)
}

// ListRuns handles GET /api/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.RunFilter{
		Kind:   query.Get("kind"),
		Status: jobs.RunStatus(query.Get("status")),
	}

	var errs []error
	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		errs = append(errs, err)
		filter.Limit = limit
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		errs = append(errs, err)
		filter.Offset = offset
	}
	if err := errors.Join(errs...); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "limit and offset must be integers")
		return
	}

	runs, err := h.store.ListRuns(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// ServeHTTP routes /api/runs and /api/runs/{id}.
func (h *RunsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/runs"), "/")

	switch {
	case id == "" && r.Method == http.MethodGet:
		h.ListRuns(w, r)
	case id == "" && r.Method == http.MethodPost:
		h.SubmitManifest(w, r)
	case id != "" && r.Method == http.MethodGet:
		h.GetRun(w, r, id)
	default:
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
