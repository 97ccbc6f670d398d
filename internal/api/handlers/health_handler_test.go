package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthEndpoints(t *testing.T) {
	h := NewHealthHandler(pingFunc(func(context.Context) error { return nil }))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	h.Liveness(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr = httptest.NewRecorder()
	h.Readiness(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	down := NewHealthHandler(pingFunc(func(context.Context) error { return errors.New("closed") }))
	rr = httptest.NewRecorder()
	down.Readiness(rr, req)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
