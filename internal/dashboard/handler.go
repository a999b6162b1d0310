package dashboard

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/famquest/backend/internal/middleware"
	"github.com/famquest/backend/internal/models"
)

// ChildrenService lists the parent's children with ledger-derived
// balance and level.
type ChildrenService interface {
	ListByParent(ctx context.Context, parentID uuid.UUID) ([]*models.Child, error)
}

// SubmissionCounter counts mission submissions awaiting parental review.
type SubmissionCounter interface {
	CountPendingSubmissions(ctx context.Context, parentID uuid.UUID) (int, error)
}

// ClaimLister returns reward claims awaiting parental review.
type ClaimLister interface {
	ListPending(ctx context.Context, parentID uuid.UUID) ([]*models.RewardClaim, error)
}

// RestrictionLister returns a child's active punishment applications.
type RestrictionLister interface {
	ActiveRestrictions(ctx context.Context, childID uuid.UUID) ([]*models.PunishmentApplication, error)
}

type ChildOverview struct {
	ID                 string `json:"id"`
	DisplayName        string `json:"display_name"`
	AgeGroup           string `json:"age_group"`
	Balance            int    `json:"balance"`
	Level              int    `json:"level"`
	ActiveRestrictions int    `json:"active_restrictions"`
}

type Overview struct {
	Children           []ChildOverview       `json:"children"`
	PendingSubmissions int                   `json:"pending_submissions"`
	PendingClaims      []*models.RewardClaim `json:"pending_claims"`
}

type Handler struct {
	children     ChildrenService
	submissions  SubmissionCounter
	claims       ClaimLister
	restrictions RestrictionLister
	log          *slog.Logger
}

func NewHandler(children ChildrenService, submissions SubmissionCounter, claims ClaimLister, restrictions RestrictionLister, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		children:     children,
		submissions:  submissions,
		claims:       claims,
		restrictions: restrictions,
		log:          log,
	}
}

// GET /api/v1/dashboard
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())

	kids, err := h.children.ListByParent(r.Context(), parentID)
	if err != nil {
		h.log.Error("dashboard children failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out := Overview{Children: make([]ChildOverview, 0, len(kids))}
	for _, c := range kids {
		active, err := h.restrictions.ActiveRestrictions(r.Context(), c.ID)
		if err != nil {
			h.log.Error("dashboard restrictions failed", "child_id", c.ID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		out.Children = append(out.Children, ChildOverview{
			ID:                 c.ID.String(),
			DisplayName:        c.DisplayName,
			AgeGroup:           c.AgeGroup,
			Balance:            c.Balance,
			Level:              c.Level,
			ActiveRestrictions: len(active),
		})
	}

	out.PendingSubmissions, err = h.submissions.CountPendingSubmissions(r.Context(), parentID)
	if err != nil {
		h.log.Error("dashboard submissions failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out.PendingClaims, err = h.claims.ListPending(r.Context(), parentID)
	if err != nil {
		h.log.Error("dashboard claims failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if out.PendingClaims == nil {
		out.PendingClaims = []*models.RewardClaim{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
