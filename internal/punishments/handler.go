package punishments

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/famquest/backend/internal/middleware"
	"github.com/famquest/backend/internal/models"
	"github.com/famquest/backend/internal/services"
	"github.com/famquest/backend/internal/session"
)

type CreateDefinitionRequest struct {
	Title            string                   `json:"title"`
	Description      string                   `json:"description"`
	EscalationLevels []models.EscalationLevel `json:"escalation_levels"`
}

type ApplyRequest struct {
	DefinitionID uuid.UUID `json:"definition_id"`
	Reason       string    `json:"reason"`
}

// LiftRequest carries an optional note recorded on the lifted application.
type LiftRequest struct {
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

func (h *Handler) CreateDefinition(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body failed", http.StatusBadRequest)
		return
	}
	if err := h.validator.ValidatePayload(services.PayloadPunishmentCreate, body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req CreateDefinitionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	d := &models.PunishmentDefinition{
		Title:            req.Title,
		Description:      req.Description,
		EscalationLevels: req.EscalationLevels,
	}
	created, err := h.svc.CreateDefinition(r.Context(), parentID, d)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(created)
}

func (h *Handler) ListDefinitions(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	list, err := h.svc.ListDefinitions(r.Context(), parentID)
	if err != nil {
		h.log.Error("list definitions failed", "error", err)
		http.Error(w, "list definitions failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

// Apply escalates an unresolved application of the same definition
// instead of stacking a duplicate.
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	child := middleware.ChildFromCtx(r.Context())
	var req ApplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	app, err := h.svc.Apply(r.Context(), parentID, req.DefinitionID, child.ID, req.Reason)
	if err != nil {
		h.writeError(w, err, "apply punishment failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(app)
}

func (h *Handler) Lift(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	applicationID, err := uuid.Parse(r.PathValue("applicationID"))
	if err != nil {
		http.Error(w, "invalid application id", http.StatusBadRequest)
		return
	}
	var req LiftRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	app, err := h.svc.Lift(r.Context(), parentID, applicationID, req.Reason)
	if err != nil {
		h.writeError(w, err, "lift punishment failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(app)
}

func (h *Handler) ActiveRestrictions(w http.ResponseWriter, r *http.Request) {
	child := middleware.ChildFromCtx(r.Context())
	list, err := h.svc.ActiveRestrictions(r.Context(), child.ID)
	if err != nil {
		h.log.Error("list restrictions failed", "error", err)
		http.Error(w, "list restrictions failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (h *Handler) writeError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, session.ErrNotAuthorized):
		http.Error(w, "pin verification required", http.StatusForbidden)
	case errors.Is(err, pgx.ErrNoRows):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, ErrNoLevels):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrAlreadyResolved):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.log.Error(logMsg, "error", err)
		http.Error(w, logMsg, http.StatusInternalServerError)
	}
}
