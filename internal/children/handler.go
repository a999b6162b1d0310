package children

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/famquest/backend/internal/middleware"
	"github.com/famquest/backend/internal/models"
	"github.com/famquest/backend/internal/session"
)

type CreateRequest struct {
	DisplayName string `json:"display_name"`
	AgeGroup    string `json:"age_group"`
}

type ChildResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AgeGroup    string `json:"age_group"`
	Balance     int    `json:"balance"`
	Level       int    `json:"level"`
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

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	c, err := h.svc.Create(r.Context(), parentID, req.DisplayName, req.AgeGroup)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(childToResponse(c))
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	list, err := h.svc.ListByParent(r.Context(), parentID)
	if err != nil {
		h.log.Error("list children failed", "error", err)
		http.Error(w, "list children failed", http.StatusInternalServerError)
		return
	}
	resp := make([]ChildResponse, 0, len(list))
	for _, c := range list {
		resp = append(resp, childToResponse(c))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	child := middleware.ChildFromCtx(r.Context())
	c, err := h.svc.Get(r.Context(), child.ID)
	if err != nil {
		h.log.Error("get child failed", "error", err)
		http.Error(w, "get child failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(childToResponse(c))
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	childID, err := uuid.Parse(r.PathValue("childID"))
	if err != nil {
		http.Error(w, "invalid child id", http.StatusBadRequest)
		return
	}
	if err := h.svc.Delete(r.Context(), parentID, childID); err != nil {
		switch {
		case errors.Is(err, session.ErrNotAuthorized):
			http.Error(w, "pin verification required", http.StatusForbidden)
		case errors.Is(err, pgx.ErrNoRows):
			http.Error(w, "child not found", http.StatusNotFound)
		default:
			h.log.Error("delete child failed", "error", err)
			http.Error(w, "delete child failed", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func childToResponse(c *models.Child) ChildResponse {
	return ChildResponse{
		ID:          c.ID.String(),
		DisplayName: c.DisplayName,
		AgeGroup:    c.AgeGroup,
		Balance:     c.Balance,
		Level:       c.Level,
	}
}
