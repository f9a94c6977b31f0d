package api

import (
	"net/http"

	"github.com/okian/aqicast/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthHandler handles liveness and metrics requests.
type HealthHandler struct {
	stats   StatsProvider
	metrics http.Handler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(stats StatsProvider) *HealthHandler {
	return &HealthHandler{
		stats:   stats,
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

type healthResponse struct {
	Status       string `json:"status"`
	ModelsLoaded bool   `json:"models_loaded"`
}

// HandleHealth handles GET /healthz requests. The process is live even
// without models; it then reports "degraded".
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, "api.healthz", http.MethodGet) {
		return
	}
	loaded, _ := h.stats.GetStats()["modelsLoaded"].(bool)
	status := "ok"
	if !loaded {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: status, ModelsLoaded: loaded})
}

// HandleMetrics serves the custom Prometheus registry.
func (h *HealthHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}
