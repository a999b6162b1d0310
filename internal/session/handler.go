package session

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/famquest/backend/internal/middleware"
)

type StatusResponse struct {
	Active    bool       `json:"active"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type BackgroundRequest struct {
	Since time.Time `json:"since"`
}

type Handler struct {
	sessions *Manager
}

func NewHandler(sessions *Manager) *Handler {
	return &Handler{sessions: sessions}
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	s, ok := h.sessions.Get(parentID)
	resp := StatusResponse{Active: ok}
	if ok {
		resp.ExpiresAt = &s.ExpiresAt
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) End(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	h.sessions.Invalidate(parentID)
	w.WriteHeader(http.StatusNoContent)
}

// Background lets the client report when the app went to the
// background, so long absences end the grace window early.
func (h *Handler) Background(w http.ResponseWriter, r *http.Request) {
	parentID := middleware.ParentFromCtx(r.Context())
	var req BackgroundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	h.sessions.NoteBackground(parentID, req.Since)
	w.WriteHeader(http.StatusNoContent)
}
