package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/outline-studio/engine/internal/api/middleware"
	"github.com/outline-studio/engine/internal/api/types"
	"github.com/outline-studio/engine/internal/services"
	appErr "github.com/outline-studio/engine/pkg/errors"
)

// AuditEnqueuer schedules a background integrity audit of one tree.
type AuditEnqueuer interface {
	EnqueueAudit(ctx context.Context, treeID uuid.UUID) error
}

type TreesHandler struct {
	trees   services.TreeService
	audit   services.AuditService
	enqueue AuditEnqueuer
}

func NewTreesHandler(trees services.TreeService, audit services.AuditService, enqueue AuditEnqueuer) *TreesHandler {
	return &TreesHandler{trees: trees, audit: audit, enqueue: enqueue}
}

func (h *TreesHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.trees.ListTrees(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items, Meta: &types.Meta{
		RequestID: middleware.GetRequestID(r.Context()),
		Total:     int64(len(items)),
	}})
}

func (h *TreesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req types.TreeCreateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.trees.CreateTree(r.Context(), middleware.GetActor(r.Context()), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, t)
}

func (h *TreesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "treeID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.trees.GetTree(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, t)
}

// Audit runs the integrity audit inline. An unhealthy tree is still a 200
// with the findings in the report.
func (h *TreesHandler) Audit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "treeID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	report, err := h.audit.Audit(r.Context(), id)
	if err != nil && !appErr.IsCode(err, appErr.CodeIntegrity) {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, report)
}

// ScheduleAudit queues the audit for the worker.
func (h *TreesHandler) ScheduleAudit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "treeID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.trees.GetTree(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.enqueue.EnqueueAudit(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusAccepted, map[string]string{"tree_id": id.String(), "status": "queued"})
}
