package rewards

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/famquest/backend/internal/ledger"
	"github.com/famquest/backend/internal/middleware"
	"github.com/famquest/backend/internal/models"
	"github.com/famquest/backend/internal/services"
	"github.com/famquest/backend/internal/session"
)

type CreateItemRequest struct {
	Title             string  `json:"title"`
	PointsCost        int     `json:"points_cost"`
	QuantityRemaining *int    `json:"quantity_remaining,omitempty"`
	AgeRestriction    *string `json:"age_restriction,omitempty"`
}

type ClaimRequest struct {
	ItemID uuid.UUID `json:"item_id"`
}

type RejectClaimRequest struct {
	Reason string `json:"reason"`
}

type BatchApproveRequest struct {
	ClaimIDs []uuid.UUID `json:"claim_ids"`
}

type BatchResultResponse struct {
	ClaimID string  `json:"claim_id"`
	Ok      bool    `json:"ok"`
	Error   *string `json:"error,omitempty"`
}

type Handler struct {
	svc       Service
	validator *services.Validator
	log       *slog.Logger
}

func NewHandler(svc Service, validator *services.Validator, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, validator: validator, log: log}
}

func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body failed", http.StatusBadRequest)
		return
	}
	if err := h.validator.ValidatePayload(services.PayloadRewardItemCreate, body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req CreateItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	it := &models.RewardItem{
		Title:             req.Title,
		PointsCost:        req.PointsCost,
		QuantityRemaining: req.QuantityRemaining,
		AgeRestriction:    req.AgeRestriction,
	}
	created, err := h.svc.CreateItem(r.Context(), parentID, it)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(created)
}

func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	itemID, err := uuid.Parse(r.PathValue("itemID"))
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return
	}
	var req CreateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	it := &models.RewardItem{
		ID:                itemID,
		Title:             req.Title,
		PointsCost:        req.PointsCost,
		QuantityRemaining: req.QuantityRemaining,
		AgeRestriction:    req.AgeRestriction,
	}
	if err := h.svc.UpdateItem(r.Context(), parentID, it); err != nil {
		h.writeClaimError(w, err, "update item failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeactivateItem(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	itemID, err := uuid.Parse(r.PathValue("itemID"))
	if err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return
	}
	if err := h.svc.DeactivateItem(r.Context(), parentID, itemID); err != nil {
		h.writeClaimError(w, err, "deactivate item failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	list, err := h.svc.ListItems(r.Context(), parentID)
	if err != nil {
		h.log.Error("list items failed", "error", err)
		http.Error(w, "list items failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

// Claim debits the child immediately and parks the claim pending
// parental review.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	child := middleware.ChildFromCtx(r.Context())
	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	claim, err := h.svc.Claim(r.Context(), child.ID, req.ItemID)
	if err != nil {
		h.writeClaimError(w, err, "claim failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(claim)
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	claimID, err := uuid.Parse(r.PathValue("claimID"))
	if err != nil {
		http.Error(w, "invalid claim id", http.StatusBadRequest)
		return
	}
	claim, err := h.svc.Approve(r.Context(), parentID, claimID)
	if err != nil {
		h.writeClaimError(w, err, "approve failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(claim)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	claimID, err := uuid.Parse(r.PathValue("claimID"))
	if err != nil {
		http.Error(w, "invalid claim id", http.StatusBadRequest)
		return
	}
	var req RejectClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	claim, err := h.svc.Reject(r.Context(), parentID, claimID, req.Reason)
	if err != nil {
		h.writeClaimError(w, err, "reject failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(claim)
}

// BatchApprove resolves each claim independently and reports per-claim
// outcomes. One failed claim never rolls back its siblings.
func (h *Handler) BatchApprove(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	var req BatchApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if len(req.ClaimIDs) == 0 {
		http.Error(w, "claim_ids required", http.StatusBadRequest)
		return
	}
	results, err := h.svc.BatchApprove(r.Context(), parentID, req.ClaimIDs)
	if err != nil {
		h.writeClaimError(w, err, "batch approve failed")
		return
	}
	resp := make([]BatchResultResponse, 0, len(results))
	for _, res := range results {
		out := BatchResultResponse{ClaimID: res.ClaimID.String(), Ok: res.Err == nil}
		if res.Err != nil {
			msg := res.Err.Error()
			out.Error = &msg
		}
		resp = append(resp, out)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	child := middleware.ChildFromCtx(r.Context())
	list, err := h.svc.ListClaims(r.Context(), child.ID)
	if err != nil {
		h.log.Error("list claims failed", "error", err)
		http.Error(w, "list claims failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	list, err := h.svc.ListPending(r.Context(), parentID)
	if err != nil {
		h.log.Error("list pending claims failed", "error", err)
		http.Error(w, "list pending claims failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (h *Handler) writeClaimError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, session.ErrNotAuthorized):
		http.Error(w, "pin verification required", http.StatusForbidden)
	case errors.Is(err, pgx.ErrNoRows):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		http.Error(w, "insufficient points", http.StatusConflict)
	case errors.Is(err, ErrNotAvailable), errors.Is(err, ErrRestricted):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, ErrAlreadyResolved):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.log.Error(logMsg, "error", err)
		http.Error(w, logMsg, http.StatusInternalServerError)
	}
}
