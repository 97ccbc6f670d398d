package types

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	appErr "github.com/outline-studio/engine/pkg/errors"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{appErr.New(appErr.CodeInvalid, "x"), http.StatusBadRequest},
		{appErr.New(appErr.CodeNotFound, "x"), http.StatusNotFound},
		{appErr.Conflict(appErr.ReasonCycle, "x"), http.StatusConflict},
		{appErr.New(appErr.CodeForbidden, "x"), http.StatusForbidden},
		{appErr.New(appErr.CodeDeadline, "x"), http.StatusServiceUnavailable},
		{appErr.New(appErr.CodeUnavailable, "x"), http.StatusServiceUnavailable},
		{appErr.New(appErr.CodeIntegrity, "x"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), "%v", tt.err)
	}
}

func TestFromAppError(t *testing.T) {
	err := appErr.Conflict(appErr.ReasonStaleVersion, "stale").
		WithMeta("node_id", "n1").
		WithMeta("current", struct{}{})
	got := FromAppError(err)
	assert.Equal(t, "conflict", got.Code)
	assert.Equal(t, "stale_version", got.Reason)
	assert.Equal(t, map[string]any{"node_id": "n1"}, got.Details)

	plain := FromAppError(errors.New("db password leaked"))
	assert.Equal(t, "internal", plain.Code)
	assert.NotContains(t, plain.Message, "password")

	assert.Nil(t, FromAppError(nil))
}
