package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/famquest/backend/internal/models"
)

const ctxChildKey contextKey = "child"

// ChildLookup resolves a child record for ownership checks.
type ChildLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Child, error)
}

// ChildScope parses the {childID} path value, verifies the child belongs
// to the authenticated parent, and puts the child into request context.
// It must run after ParentAuth.
func ChildScope(children ChildLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			parentID := ParentFromCtx(r.Context())
			if parentID == uuid.Nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			childID, err := uuid.Parse(r.PathValue("childID"))
			if err != nil {
				http.Error(w, `{"error":"invalid child id"}`, http.StatusBadRequest)
				return
			}
			child, err := children.Get(r.Context(), childID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					http.Error(w, `{"error":"child not found"}`, http.StatusNotFound)
					return
				}
				http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
				return
			}
			if child.ParentID != parentID {
				http.Error(w, `{"error":"child not found"}`, http.StatusNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), ctxChildKey, child)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ChildFromCtx returns the child resolved by ChildScope, or nil.
func ChildFromCtx(ctx context.Context) *models.Child {
	if c, ok := ctx.Value(ctxChildKey).(*models.Child); ok {
		return c
	}
	return nil
}
