package ledger

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/famquest/backend/internal/middleware"
	"github.com/famquest/backend/internal/session"
)

type AdjustRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

type BalanceResponse struct {
	ChildID        string `json:"child_id"`
	Balance        int    `json:"balance"`
	LifetimeEarned int    `json:"lifetime_earned"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	child := middleware.ChildFromCtx(r.Context())
	acc, err := h.svc.Account(r.Context(), child.ID)
	if err != nil {
		h.log.Error("get balance failed", "error", err)
		http.Error(w, "get balance failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(BalanceResponse{
		ChildID:        child.ID.String(),
		Balance:        acc.Balance,
		LifetimeEarned: acc.LifetimeEarned,
	})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	child := middleware.ChildFromCtx(r.Context())
	txs, err := h.svc.History(r.Context(), child.ID)
	if err != nil {
		h.log.Error("get history failed", "error", err)
		http.Error(w, "get history failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(txs)
}

// Adjust applies a grace-gated manual correction, positive or negative.
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	child := middleware.ChildFromCtx(r.Context())
	var req AdjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Delta == 0 || req.Reason == "" {
		http.Error(w, "delta and reason required", http.StatusBadRequest)
		return
	}
	tx, err := h.svc.Adjust(r.Context(), parentID, child.ID, req.Delta, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotAuthorized):
			http.Error(w, "pin verification required", http.StatusForbidden)
		case errors.Is(err, ErrInsufficientFunds):
			http.Error(w, "insufficient points", http.StatusConflict)
		default:
			h.log.Error("adjust failed", "error", err)
			http.Error(w, "adjust failed", http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(tx)
}
