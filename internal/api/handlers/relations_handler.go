package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/outline-studio/engine/internal/api/middleware"
	"github.com/outline-studio/engine/internal/api/types"
	"github.com/outline-studio/engine/internal/models"
	"github.com/outline-studio/engine/internal/services"
)

type RelationsHandler struct {
	relations services.RelationService
}

func NewRelationsHandler(relations services.RelationService) *RelationsHandler {
	return &RelationsHandler{relations: relations}
}

// edgeIDs reads the tree from the path and parent/child from the request.
func edgeIDs(r *http.Request, parent, child string) (treeID, parentID, childID uuid.UUID, err error) {
	if treeID, err = pathID(r, "treeID"); err != nil {
		return
	}
	if parentID, err = parseID(parent, "parent_id"); err != nil {
		return
	}
	childID, err = parseID(child, "child_id")
	return
}

func (h *RelationsHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req types.RelationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	treeID, parentID, childID, err := edgeIDs(r, req.ParentID, req.ChildID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rel, err := h.relations.AddEdge(r.Context(), middleware.GetActor(r.Context()), treeID, parentID, childID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, rel)
}

// Remove deletes the edge named by the parent_id and child_id query values.
func (h *RelationsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	treeID, parentID, childID, err := edgeIDs(r, q.Get("parent_id"), q.Get("child_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.relations.RemoveEdge(r.Context(), middleware.GetActor(r.Context()), treeID, parentID, childID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RelationsHandler) Move(w http.ResponseWriter, r *http.Request) {
	var req types.RelationMoveRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	treeID, fromID, childID, err := edgeIDs(r, req.FromParentID, req.ChildID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	toID, err := parseID(req.ToParentID, "to_parent_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rel, err := h.relations.MoveEdge(r.Context(), middleware.GetActor(r.Context()), treeID, childID, fromID, toID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, rel)
}

func (h *RelationsHandler) Parents(w http.ResponseWriter, r *http.Request) {
	h.neighbours(w, r, h.relations.ParentsOf)
}

func (h *RelationsHandler) Children(w http.ResponseWriter, r *http.Request) {
	h.neighbours(w, r, h.relations.ChildrenOf)
}

func (h *RelationsHandler) neighbours(w http.ResponseWriter, r *http.Request, fetch func(ctx context.Context, treeID, nodeID uuid.UUID) ([]models.Node, error)) {
	treeID, err := pathID(r, "treeID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	nodeID, err := pathID(r, "nodeID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := fetch(r.Context(), treeID, nodeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, items)
}

// IsAncestor answers ?candidate=&of= for one tree.
func (h *RelationsHandler) IsAncestor(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	treeID, err := pathID(r, "treeID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	candidate, err := parseID(q.Get("candidate"), "candidate")
	if err != nil {
		writeError(w, r, err)
		return
	}
	of, err := parseID(q.Get("of"), "of")
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok, err := h.relations.IsAncestor(r.Context(), treeID, candidate, of)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, map[string]bool{"is_ancestor": ok})
}
