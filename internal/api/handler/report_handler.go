package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/notifyhub/workitems/internal/domain"
	"github.com/notifyhub/workitems/internal/service"
)

// ReportHandler serves the read-only aggregate endpoints.
type ReportHandler struct {
	svc *service.WorkItemService
}

func NewReportHandler(svc *service.WorkItemService) *ReportHandler {
	return &ReportHandler{svc: svc}
}

// Statistics handles GET /api/v1/statistics/{kind}
//
// {kind} is a collection segment such as "tasks" or a kind name such as "Task".
//
// @Summary  Status breakdown and completion rate for one kind
// @Tags     reports
// @Produce  json
// @Param    kind  path      string  true  "epics, user-stories or tasks"
// @Success  200   {object}  hierarchy.Statistics
// @Failure  422   {object}  map[string]string
// @Router   /api/v1/statistics/{kind} [get]
func (h *ReportHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	param := chi.URLParam(r, "kind")
	kind, ok := Collections[param]
	if !ok {
		kind = domain.Kind(param)
	}

	stats, err := h.svc.Statistics(r.Context(), kind)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// DeadLetters handles GET /api/v1/dead-letters
//
// @Summary  Notifications that exhausted their delivery attempts, newest first
// @Tags     reports
// @Produce  json
// @Param    limit  query     int  false  "Maximum entries (default 50, max 500)"
// @Success  200    {object}  map[string]any
// @Router   /api/v1/dead-letters [get]
func (h *ReportHandler) DeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 500 {
		limit = l
	}

	letters, err := h.svc.DeadLetters(r.Context(), limit)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"data":  letters,
		"total": len(letters),
	})
}

// Overdue handles GET /api/v1/tasks/overdue
//
// @Summary  Tasks past their due date that are not DONE, most overdue first
// @Tags     reports
// @Produce  json
// @Param    limit  query     int  false  "Maximum entries (default 100, max 500)"
// @Success  200    {object}  map[string]any
// @Router   /api/v1/tasks/overdue [get]
func (h *ReportHandler) Overdue(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 500 {
		limit = l
	}

	tasks, err := h.svc.Overdue(r.Context(), limit)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"data":  tasks,
		"total": len(tasks),
	})
}
