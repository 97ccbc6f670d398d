package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outline-studio/engine/internal/services"
	"github.com/outline-studio/engine/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.InitNop()
	os.Exit(m.Run())
}

var secret = []byte("test-secret")

func sign(t *testing.T, method jwt.SigningMethod, key any, c Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, c).SignedString(key)
	require.NoError(t, err)
	return s
}

func claims(sub, name, role string, ttl time.Duration) Claims {
	return Claims{
		Name: name,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
}

func TestAuth(t *testing.T) {
	var got services.Actor
	h := Auth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetActor(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
		actor  services.Actor
	}{
		{"editor", "Bearer " + sign(t, jwt.SigningMethodHS256, secret, claims("u1", "Ada", "editor", time.Hour)), http.StatusNoContent, services.Actor{Author: "Ada", MayEdit: true}},
		{"owner without name", "Bearer " + sign(t, jwt.SigningMethodHS256, secret, claims("u2", "", "owner", time.Hour)), http.StatusNoContent, services.Actor{Author: "u2", MayEdit: true}},
		{"viewer", "Bearer " + sign(t, jwt.SigningMethodHS256, secret, claims("u3", "Bob", "viewer", time.Hour)), http.StatusNoContent, services.Actor{Author: "Bob"}},
		{"expired", "Bearer " + sign(t, jwt.SigningMethodHS256, secret, claims("u1", "Ada", "editor", -time.Hour)), http.StatusUnauthorized, services.Actor{}},
		{"wrong secret", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"), claims("u1", "Ada", "editor", time.Hour)), http.StatusUnauthorized, services.Actor{}},
		{"wrong algorithm", "Bearer " + sign(t, jwt.SigningMethodHS384, secret, claims("u1", "Ada", "editor", time.Hour)), http.StatusUnauthorized, services.Actor{}},
		{"missing", "", http.StatusUnauthorized, services.Actor{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = services.Actor{}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.actor, got)
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", rr.Header().Get("X-Request-ID"))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "abc", seen)
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(0.001, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	codes := make([]int, 3)
	for i := range codes {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes[i] = rr.Code
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") }))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), `"success":false`)
}
