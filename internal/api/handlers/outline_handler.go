package handlers

import (
	"encoding/json"
	"iter"
	"net/http"
	"strings"

	"github.com/outline-studio/engine/internal/api/middleware"
	"github.com/outline-studio/engine/internal/api/types"
	"github.com/outline-studio/engine/internal/graph"
	"github.com/outline-studio/engine/internal/services"
	appErr "github.com/outline-studio/engine/pkg/errors"
)

const ndjson = "application/x-ndjson"

type OutlineHandler struct {
	projection services.ProjectionService
}

func NewOutlineHandler(projection services.ProjectionService) *OutlineHandler {
	return &OutlineHandler{projection: projection}
}

// Get projects a tree. Query: view=normal|reverse, from=<node id>.
// Clients sending Accept: application/x-ndjson get one row per line as the
// walk produces them; everyone else gets the envelope with all rows.
func (h *OutlineHandler) Get(w http.ResponseWriter, r *http.Request) {
	treeID, err := pathID(r, "treeID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	dir, ok := graph.ParseDirection(q.Get("view"))
	if !ok {
		writeError(w, r, appErr.New(appErr.CodeInvalid, "view must be normal or reverse").WithMeta("field", "view"))
		return
	}

	var seq iter.Seq2[graph.Row, error]
	switch from := q.Get("from"); {
	case from != "":
		nodeID, err := parseID(from, "from")
		if err != nil {
			writeError(w, r, err)
			return
		}
		seq = h.projection.ProjectFrom(r.Context(), treeID, nodeID, dir)
	case dir == graph.Reverse:
		seq = h.projection.ProjectReverse(r.Context(), treeID)
	default:
		seq = h.projection.ProjectNormal(r.Context(), treeID)
	}

	if strings.Contains(r.Header.Get("Accept"), ndjson) {
		stream(w, r, seq)
		return
	}

	rows := []graph.Row{}
	for row, err := range seq {
		if err != nil {
			writeError(w, r, err)
			return
		}
		rows = append(rows, row)
	}
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: rows, Meta: &types.Meta{
		RequestID: middleware.GetRequestID(r.Context()),
		Total:     int64(len(rows)),
	}})
}

// stream writes rows as they arrive. An error before the first row is a
// normal error response; a later one ends the stream with an error line.
func stream(w http.ResponseWriter, r *http.Request, seq iter.Seq2[graph.Row, error]) {
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	started := false
	for row, err := range seq {
		if err != nil {
			if !started {
				writeError(w, r, err)
				return
			}
			_ = enc.Encode(types.APIResponse{Success: false, Error: types.FromAppError(err)})
			return
		}
		if !started {
			w.Header().Set("Content-Type", ndjson)
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := enc.Encode(row); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	if !started {
		w.Header().Set("Content-Type", ndjson)
		w.WriteHeader(http.StatusOK)
	}
}
