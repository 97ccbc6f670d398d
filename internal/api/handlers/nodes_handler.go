package handlers

import (
	"net/http"

	"github.com/outline-studio/engine/internal/api/middleware"
	"github.com/outline-studio/engine/internal/api/types"
	"github.com/outline-studio/engine/internal/models"
	"github.com/outline-studio/engine/internal/render"
	"github.com/outline-studio/engine/internal/services"
)

type NodesHandler struct {
	nodes    services.NodeService
	versions services.VersionService
}

func NewNodesHandler(nodes services.NodeService, versions services.VersionService) *NodesHandler {
	return &NodesHandler{nodes: nodes, versions: versions}
}

// nodeView is a node as served over HTTP, with optional rendered content.
type nodeView struct {
	*models.Node
	HTML string `json:"html,omitempty"`
}

func (h *NodesHandler) List(w http.ResponseWriter, r *http.Request) {
	treeID, err := pathID(r, "treeID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := h.nodes.List(r.Context(), treeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: items, Meta: &types.Meta{
		RequestID: middleware.GetRequestID(r.Context()),
		Total:     int64(len(items)),
	}})
}

func (h *NodesHandler) Create(w http.ResponseWriter, r *http.Request) {
	treeID, err := pathID(r, "treeID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req types.NodeCreateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	actor := middleware.GetActor(r.Context())
	n, err := h.nodes.Create(r.Context(), actor, treeID, &services.CreateNodeInput{
		Title:   req.Title,
		Content: req.Content,
		Author:  actor.Author,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusCreated, n)
}

// Get serves one node. ?render=html adds the content rendered as HTML.
func (h *NodesHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	n, err := h.nodes.Get(r.Context(), treeID, nodeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	view := nodeView{Node: n}
	if r.URL.Query().Get("render") == "html" {
		if view.HTML, err = render.ToHTML(n.Content); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeData(w, r, http.StatusOK, view)
}

func (h *NodesHandler) Update(w http.ResponseWriter, r *http.Request) {
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
	var req types.NodeUpdateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	actor := middleware.GetActor(r.Context())
	n, err := h.versions.Update(r.Context(), actor, treeID, nodeID, &services.UpdateNodeInput{
		ExpectedVersion: req.ExpectedVersion,
		Title:           req.Title,
		Content:         req.Content,
		Author:          actor.Author,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, n)
}

func (h *NodesHandler) Delete(w http.ResponseWriter, r *http.Request) {
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
	if err := h.nodes.SoftDelete(r.Context(), middleware.GetActor(r.Context()), treeID, nodeID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
