package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/outline-studio/engine/internal/api/types"
	"github.com/outline-studio/engine/internal/services"
)

type actorKeyType string

const ActorKey actorKeyType = "actor"

// Claims are the token fields the engine reads. Role checks stay outside
// the engine; only owners and editors may edit.
type Claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) Actor() services.Actor {
	author := c.Name
	if author == "" {
		author = c.Subject
	}
	return services.Actor{Author: author, MayEdit: c.Role == "owner" || c.Role == "editor"}
}

// Auth validates a Bearer HS256 JWT using the provided secret and stores the
// resulting actor in the request context.
func Auth(hmacSecret []byte) func(http.Handler) http.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ah := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(ah), "bearer ") {
				unauthorized(w)
				return
			}
			tokenStr := strings.TrimSpace(ah[len("Bearer "):])
			claims := &Claims{}
			token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
				return hmacSecret, nil
			})
			if err != nil || !token.Valid || claims.Subject == "" {
				unauthorized(w)
				return
			}
			ctx := context.WithValue(r.Context(), ActorKey, claims.Actor())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetActor returns the actor stored by Auth. Requests without one get a
// read-only anonymous actor.
func GetActor(ctx context.Context) services.Actor {
	if a, ok := ctx.Value(ActorKey).(services.Actor); ok {
		return a
	}
	return services.Actor{}
}

func unauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "unauthorized", http.StatusText(http.StatusUnauthorized))
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.APIResponse{Success: false, Error: &types.APIError{Code: code, Message: msg}})
}
