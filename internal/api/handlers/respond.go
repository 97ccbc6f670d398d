package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/outline-studio/engine/internal/api/middleware"
	"github.com/outline-studio/engine/internal/api/types"
	"github.com/outline-studio/engine/internal/api/validators"
	appErr "github.com/outline-studio/engine/pkg/errors"
	"github.com/outline-studio/engine/pkg/logger"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, types.APIResponse{Success: true, Data: data, Meta: &types.Meta{RequestID: middleware.GetRequestID(r.Context())}})
}

// writeError maps err to its status. A stale_version conflict also returns
// the current node as data so the client can rebase.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := types.StatusFor(err)
	resp := types.APIResponse{Success: false, Error: types.FromAppError(err), Meta: &types.Meta{RequestID: middleware.GetRequestID(r.Context())}}
	if ae, ok := appErr.As(err); ok && ae.Reason == appErr.ReasonStaleVersion {
		resp.Data = ae.Meta["current"]
	}
	if status >= http.StatusInternalServerError {
		logger.L().Error("request failed", zap.String("id", middleware.GetRequestID(r.Context())), zap.Error(err))
	}
	writeJSON(w, status, resp)
}

// decode reads a JSON body into dest and validates it.
func decode(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return appErr.Wrap(err, appErr.CodeInvalid, "invalid json")
	}
	return validators.Struct(dest)
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	return parseID(chi.URLParam(r, name), name)
}

func parseID(s, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, appErr.New(appErr.CodeInvalid, "invalid "+name).WithMeta("field", name)
	}
	return id, nil
}
