package missions

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/famquest/backend/internal/middleware"
	"github.com/famquest/backend/internal/models"
	"github.com/famquest/backend/internal/services"
	"github.com/famquest/backend/internal/session"
)

type CreateMissionRequest struct {
	Title              string      `json:"title"`
	Description        string      `json:"description"`
	PointsReward       int         `json:"points_reward"`
	Recurrence         string      `json:"recurrence"`
	DueDate            *time.Time  `json:"due_date,omitempty"`
	PhotoProofRequired bool        `json:"photo_proof_required"`
	ChildIDs           []uuid.UUID `json:"child_ids"`
}

type UpdateMissionRequest struct {
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	PointsReward       int        `json:"points_reward"`
	DueDate            *time.Time `json:"due_date,omitempty"`
	PhotoProofRequired bool       `json:"photo_proof_required"`
}

type SubmitRequest struct {
	ProofURL *string `json:"proof_url,omitempty"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
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

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body failed", http.StatusBadRequest)
		return
	}
	if err := h.validator.ValidatePayload(services.PayloadMissionCreate, body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req CreateMissionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	m := &models.Mission{
		Title:              req.Title,
		Description:        req.Description,
		PointsReward:       req.PointsReward,
		Recurrence:         req.Recurrence,
		DueDate:            req.DueDate,
		PhotoProofRequired: req.PhotoProofRequired,
	}
	created, err := h.svc.CreateMission(r.Context(), parentID, m, req.ChildIDs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(created)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	list, err := h.svc.ListByParent(r.Context(), parentID)
	if err != nil {
		h.log.Error("list missions failed", "error", err)
		http.Error(w, "list missions failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (h *Handler) ListForChild(w http.ResponseWriter, r *http.Request) {
	child := middleware.ChildFromCtx(r.Context())
	list, err := h.svc.ListForChild(r.Context(), child.ID)
	if err != nil {
		h.log.Error("list child missions failed", "error", err)
		http.Error(w, "list missions failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (h *Handler) ListInstances(w http.ResponseWriter, r *http.Request) {
	child := middleware.ChildFromCtx(r.Context())
	list, err := h.svc.ListInstances(r.Context(), child.ID)
	if err != nil {
		h.log.Error("list instances failed", "error", err)
		http.Error(w, "list instances failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

// CurrentInstance materializes the child's instance for the current
// period on first read.
func (h *Handler) CurrentInstance(w http.ResponseWriter, r *http.Request) {
	child := middleware.ChildFromCtx(r.Context())
	missionID, err := uuid.Parse(r.PathValue("missionID"))
	if err != nil {
		http.Error(w, "invalid mission id", http.StatusBadRequest)
		return
	}
	inst, err := h.svc.CurrentInstance(r.Context(), missionID, child.ID)
	if err != nil {
		h.writeMissionError(w, err, "current instance failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(inst)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	missionID, err := uuid.Parse(r.PathValue("missionID"))
	if err != nil {
		http.Error(w, "invalid mission id", http.StatusBadRequest)
		return
	}
	var req UpdateMissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	m := &models.Mission{
		ID:                 missionID,
		Title:              req.Title,
		Description:        req.Description,
		PointsReward:       req.PointsReward,
		DueDate:            req.DueDate,
		PhotoProofRequired: req.PhotoProofRequired,
	}
	if err := h.svc.UpdateMission(r.Context(), parentID, m); err != nil {
		h.writeMissionError(w, err, "update mission failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	missionID, err := uuid.Parse(r.PathValue("missionID"))
	if err != nil {
		http.Error(w, "invalid mission id", http.StatusBadRequest)
		return
	}
	if err := h.svc.DeactivateMission(r.Context(), parentID, missionID); err != nil {
		h.writeMissionError(w, err, "deactivate mission failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	child := middleware.ChildFromCtx(r.Context())
	instanceID, err := uuid.Parse(r.PathValue("instanceID"))
	if err != nil {
		http.Error(w, "invalid instance id", http.StatusBadRequest)
		return
	}
	var req SubmitRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
	}
	inst, err := h.svc.Submit(r.Context(), child.ID, instanceID, req.ProofURL)
	if err != nil {
		h.writeMissionError(w, err, "submit failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(inst)
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	instanceID, err := uuid.Parse(r.PathValue("instanceID"))
	if err != nil {
		http.Error(w, "invalid instance id", http.StatusBadRequest)
		return
	}
	inst, err := h.svc.Validate(r.Context(), parentID, instanceID)
	if err != nil {
		h.writeMissionError(w, err, "validate failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(inst)
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	instanceID, err := uuid.Parse(r.PathValue("instanceID"))
	if err != nil {
		http.Error(w, "invalid instance id", http.StatusBadRequest)
		return
	}
	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		http.Error(w, "reason required", http.StatusBadRequest)
		return
	}
	inst, err := h.svc.Reject(r.Context(), parentID, instanceID, req.Reason)
	if err != nil {
		h.writeMissionError(w, err, "reject failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(inst)
}

func (h *Handler) writeMissionError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, session.ErrNotAuthorized):
		http.Error(w, "pin verification required", http.StatusForbidden)
	case errors.Is(err, pgx.ErrNoRows):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, ErrProofRequired),
		errors.Is(err, ErrMissionInactive),
		errors.Is(err, ErrNotAssigned):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, ErrAlreadyResolved), errors.Is(err, ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.log.Error(logMsg, "error", err)
		http.Error(w, logMsg, http.StatusInternalServerError)
	}
}
