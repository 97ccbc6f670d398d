package types

import (
	"net/http"

	appErr "github.com/outline-studio/engine/pkg/errors"
)

// FromAppError converts err into the response envelope error. Meta keys are
// copied into Details except the current node snapshot, which handlers
// return as data.
func FromAppError(err error) *APIError {
	if err == nil {
		return nil
	}
	e, ok := appErr.As(err)
	if !ok {
		return &APIError{Code: string(appErr.CodeInternal), Message: "internal error"}
	}
	out := &APIError{Code: string(e.Code), Reason: string(e.Reason), Message: e.Message}
	for k, v := range e.Meta {
		if k == "current" {
			continue
		}
		if out.Details == nil {
			out.Details = map[string]any{}
		}
		out.Details[k] = v
	}
	return out
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	e, ok := appErr.As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Code {
	case appErr.CodeInvalid:
		return http.StatusBadRequest
	case appErr.CodeNotFound:
		return http.StatusNotFound
	case appErr.CodeConflict:
		return http.StatusConflict
	case appErr.CodeForbidden:
		return http.StatusForbidden
	case appErr.CodeUnavailable, appErr.CodeDeadline:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
