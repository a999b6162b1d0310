package pin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/famquest/backend/internal/middleware"
	"github.com/famquest/backend/internal/session"
)

type SetupRequest struct {
	Pin string `json:"pin"`
}

type ChangeRequest struct {
	OldPin string `json:"old_pin"`
	NewPin string `json:"new_pin"`
}

type VerifyRequest struct {
	Pin string `json:"pin"`
}

// VerifyResponse reports the gateway decision. On success a grace
// session has been started and its expiry is returned.
type VerifyResponse struct {
	Granted           bool       `json:"granted"`
	SessionExpiresAt  *time.Time `json:"session_expires_at,omitempty"`
	RemainingAttempts *int       `json:"remaining_attempts,omitempty"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
}

type Handler struct {
	svc      Service
	sessions *session.Manager
	log      *slog.Logger
}

func NewHandler(svc Service, sessions *session.Manager, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, sessions: sessions, log: log}
}

func (h *Handler) Setup(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	var req SetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := h.svc.SetupPin(r.Context(), parentID, req.Pin); err != nil {
		switch {
		case errors.Is(err, ErrInvalidPin):
			http.Error(w, "pin has invalid format", http.StatusBadRequest)
		case errors.Is(err, ErrAlreadyConfigured):
			http.Error(w, "pin already configured", http.StatusConflict)
		default:
			h.log.Error("pin setup failed", "error", err)
			http.Error(w, "pin setup failed", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Change(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	var req ChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := h.svc.ChangePin(r.Context(), parentID, req.OldPin, req.NewPin); err != nil {
		var lockedErr *LockedError
		var incorrectErr *IncorrectPinError
		switch {
		case errors.Is(err, ErrInvalidPin), errors.Is(err, ErrSamePin):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrNotConfigured):
			http.Error(w, "pin not configured", http.StatusConflict)
		case errors.As(err, &lockedErr), errors.As(err, &incorrectErr):
			http.Error(w, err.Error(), http.StatusForbidden)
		default:
			h.log.Error("pin change failed", "error", err)
			http.Error(w, "pin change failed", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Verify drives the authorize-then-execute flow: on a granted PIN it
// begins the grace session that gated workflows check.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	err := h.svc.VerifyPin(r.Context(), parentID, req.Pin)
	if err == nil {
		s := h.sessions.Begin(parentID)
		writeJSON(w, http.StatusOK, VerifyResponse{Granted: true, SessionExpiresAt: &s.ExpiresAt})
		return
	}

	var lockedErr *LockedError
	var incorrectErr *IncorrectPinError
	switch {
	case errors.As(err, &lockedErr):
		writeJSON(w, http.StatusForbidden, VerifyResponse{Granted: false, LockedUntil: &lockedErr.Until})
	case errors.As(err, &incorrectErr):
		writeJSON(w, http.StatusForbidden, VerifyResponse{Granted: false, RemainingAttempts: &incorrectErr.RemainingAttempts})
	case errors.Is(err, ErrInvalidPin):
		http.Error(w, "pin has invalid format", http.StatusBadRequest)
	case errors.Is(err, ErrNotConfigured):
		http.Error(w, "pin not configured", http.StatusConflict)
	default:
		h.log.Error("pin verify failed", "error", err)
		http.Error(w, "pin verify failed", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
