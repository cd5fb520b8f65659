package handler

import (
	"net/http"

	"github.com/notifyhub/workitems/internal/queue"
)

// tiered is implemented by queues that keep separate priority tiers.
type tiered interface {
	Depths() (high, normal, low int)
}

// MetricsHandler serves a human-readable JSON queue snapshot.
// Raw Prometheus metrics (counters, histograms) are available at /metrics
// via promhttp.Handler and are separate from this endpoint.
type MetricsHandler struct {
	q queue.Queue
}

func NewMetricsHandler(q queue.Queue) *MetricsHandler {
	return &MetricsHandler{q: q}
}

// GetMetrics handles GET /api/v1/metrics
//
// @Summary  Real-time queue depth snapshot
// @Tags     metrics
// @Produce  json
// @Success  200  {object}  map[string]any
// @Failure  503  {object}  map[string]string
// @Router   /api/v1/metrics [get]
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	total, err := h.q.Depth(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "notification queue unavailable")
		return
	}

	depth := map[string]int{"total": total}
	if t, ok := h.q.(tiered); ok {
		depth["high"], depth["normal"], depth["low"] = t.Depths()
	}
	respondJSON(w, http.StatusOK, map[string]any{"queue_depth": depth})
}
