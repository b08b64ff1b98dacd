package handlers

import (
	"net/http"

	"github.com/nordqvist/fakture/internal/telemetry"
)

// MetricsHandler exposes the local-only usage metrics for the UI's
// diagnostics view.
type MetricsHandler struct{}

// NewMetricsHandler creates a MetricsHandler.
func NewMetricsHandler() *MetricsHandler {
	return &MetricsHandler{}
}

// Metrics handles GET /metrics.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	counters, timings := telemetry.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"counters": counters,
		"timings":  timings,
	})
}
