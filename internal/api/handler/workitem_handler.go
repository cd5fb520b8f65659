package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/notifyhub/workitems/internal/api/middleware"
	"github.com/notifyhub/workitems/internal/domain"
	"github.com/notifyhub/workitems/internal/service"
)

// Collections maps the URL segment of each resource to its kind.
var Collections = map[string]domain.Kind{
	"epics":        domain.KindEpic,
	"user-stories": domain.KindUserStory,
	"tasks":        domain.KindTask,
}

// WorkItemHandler serves the CRUD endpoints of one kind. The router
// mounts one instance per collection.
type WorkItemHandler struct {
	svc    *service.WorkItemService
	kind   domain.Kind
	logger *zap.Logger
}

func NewWorkItemHandler(svc *service.WorkItemService, kind domain.Kind, logger *zap.Logger) *WorkItemHandler {
	return &WorkItemHandler{svc: svc, kind: kind, logger: logger.With(zap.String("kind", string(kind)))}
}

// Create handles POST /api/v1/{collection}
//
// @Summary  Create a work item
// @Tags     workitems
// @Accept   json
// @Produce  json
// @Param    body  body      domain.CreateWorkItemRequest  true  "Work item"
// @Success  201   {object}  service.WorkItemView
// @Failure  422   {object}  map[string]string
// @Router   /api/v1/{collection} [post]
func (h *WorkItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateWorkItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	item, err := h.svc.Create(r.Context(), h.kind, req, apimw.GetUserID(r.Context()))
	if err != nil {
		apimw.Logger(r.Context(), h.logger).Warn("create work item failed", zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

// Get handles GET /api/v1/{collection}/{id}
//
// @Summary  Get a work item with its completion percentage and overdue flag
// @Tags     workitems
// @Produce  json
// @Param    id   path      string  true  "Work item UUID"
// @Success  200  {object}  service.WorkItemView
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/{collection}/{id} [get]
func (h *WorkItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Get(r.Context(), h.kind, chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// List handles GET /api/v1/{collection}
//
// @Summary  List work items
// @Tags     workitems
// @Produce  json
// @Param    status  query     string  false  "Filter by status"
// @Param    parent  query     string  false  "Filter by parent id"
// @Param    owner   query     string  false  "Filter by owner or assignee id"
// @Param    limit   query     int     false  "Maximum items (default 100, max 500)"
// @Success  200     {object}  map[string]any
// @Router   /api/v1/{collection} [get]
func (h *WorkItemHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context(), h.parseListFilter(r))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"data":  items,
		"total": len(items),
	})
}

// Update handles PATCH /api/v1/{collection}/{id}
//
// A status change enqueues a notification; the response never waits for
// or reports on its delivery.
//
// @Summary  Partially update a work item
// @Tags     workitems
// @Accept   json
// @Produce  json
// @Param    id    path      string                        true  "Work item UUID"
// @Param    body  body      domain.UpdateWorkItemRequest  true  "Fields to change"
// @Success  200   {object}  service.WorkItemView
// @Failure  404   {object}  map[string]string
// @Failure  422   {object}  map[string]string
// @Router   /api/v1/{collection}/{id} [patch]
func (h *WorkItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateWorkItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	item, err := h.svc.Update(r.Context(), h.kind, chi.URLParam(r, "id"), req)
	if err != nil {
		apimw.Logger(r.Context(), h.logger).Warn("update work item failed", zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// Delete handles DELETE /api/v1/{collection}/{id}
//
// @Summary  Delete a work item and its descendants
// @Tags     workitems
// @Param    id   path      string  true  "Work item UUID"
// @Success  204
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/{collection}/{id} [delete]
func (h *WorkItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), h.kind, chi.URLParam(r, "id")); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Children handles GET /api/v1/{collection}/{id}/children
//
// @Summary  List the direct children of a work item
// @Tags     workitems
// @Produce  json
// @Param    id   path      string  true  "Work item UUID"
// @Success  200  {object}  map[string]any
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/{collection}/{id}/children [get]
func (h *WorkItemHandler) Children(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Children(r.Context(), h.kind, chi.URLParam(r, "id"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"data":  items,
		"total": len(items),
	})
}

func (h *WorkItemHandler) parseListFilter(r *http.Request) domain.ListFilter {
	q := r.URL.Query()
	filter := domain.ListFilter{Kind: h.kind, Limit: 100}

	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= 500 {
		filter.Limit = l
	}
	if s := q.Get("status"); s != "" {
		st := domain.Status(s)
		filter.Status = &st
	}
	if p := q.Get("parent"); p != "" {
		filter.ParentID = &p
	}
	if o := q.Get("owner"); o != "" {
		filter.OwnerID = &o
	}
	return filter
}
