package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const ctxParentKey contextKey = "parent_id"

// TokenValidator validates a bearer token and returns the parent it
// belongs to.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (uuid.UUID, error)
}

// ParentAuth authenticates requests by validating the Bearer JWT and
// putting the parent id into request context.
func ParentAuth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}
			parentID, err := tokens.ValidateToken(r.Context(), raw)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ctxParentKey, parentID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ParentFromCtx returns the authenticated parent id, or uuid.Nil.
func ParentFromCtx(ctx context.Context) uuid.UUID {
	if id, ok := ctx.Value(ctxParentKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

func extractBearer(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return ""
	}
	return strings.TrimSpace(authz[len(prefix):])
}
