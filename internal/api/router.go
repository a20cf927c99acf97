// Package api serves task-run submission, run status and metrics over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dvloznov/bqflow/internal/api/handlers"
	"github.com/dvloznov/bqflow/internal/api/middleware"
)

// NewRouter wires the runs handler, /metrics from gatherer and /health behind the
// recovery, logging and request-ID middleware. gatherer may be nil.
func NewRouter(runs *handlers.RunsHandler, gatherer prometheus.Gatherer, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/api/runs", runs)
	mux.Handle("/api/runs/", runs)

	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(mux),
		),
	)
}
