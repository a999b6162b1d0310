package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotAuthorized is returned by gated workflows when no grace session
// is active for the acting parent.
var ErrNotAuthorized = errors.New("no active grace session")

// GraceSession means "the parent was recently authorized": sensitive
// actions inside the window skip re-prompting for the PIN.
type GraceSession struct {
	ParentID  uuid.UUID `json:"parent_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager tracks at most one grace session per parent. Sessions are
// advisory: they waive PIN re-prompting but do not serialize mutations.
type Manager struct {
	graceWindow         time.Duration
	backgroundThreshold time.Duration
	now                 func() time.Time

	mu       sync.RWMutex
	sessions map[uuid.UUID]GraceSession
}

// NewManager creates a session manager. now is the clock; pass time.Now
// outside tests.
func NewManager(graceWindow, backgroundThreshold time.Duration, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		graceWindow:         graceWindow,
		backgroundThreshold: backgroundThreshold,
		now:                 now,
		sessions:            make(map[uuid.UUID]GraceSession),
	}
}

// Begin issues a fresh grace session, replacing any existing one. Callers
// must only invoke it after a successful PIN verification.
func (m *Manager) Begin(parentID uuid.UUID) GraceSession {
	now := m.now()
	s := GraceSession{
		ParentID:  parentID,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.graceWindow),
	}
	m.mu.Lock()
	m.sessions[parentID] = s
	m.mu.Unlock()
	return s
}

// HasActive reports whether the parent holds an unexpired session.
func (m *Manager) HasActive(parentID uuid.UUID) bool {
	m.mu.RLock()
	s, ok := m.sessions[parentID]
	m.mu.RUnlock()
	return ok && m.now().Before(s.ExpiresAt)
}

// Get returns the current session if active.
func (m *Manager) Get(parentID uuid.UUID) (GraceSession, bool) {
	m.mu.RLock()
	s, ok := m.sessions[parentID]
	m.mu.RUnlock()
	if !ok || !m.now().Before(s.ExpiresAt) {
		return GraceSession{}, false
	}
	return s, true
}

// Invalidate drops the parent's session (explicit logout or lock).
func (m *Manager) Invalidate(parentID uuid.UUID) {
	m.mu.Lock()
	delete(m.sessions, parentID)
	m.mu.Unlock()
}

// NoteBackground records that the app was backgrounded at since. When the
// time away exceeds the threshold the session is invalidated, a stricter
// expiry than the grace window.
func (m *Manager) NoteBackground(parentID uuid.UUID, since time.Time) {
	if m.now().Sub(since) > m.backgroundThreshold {
		m.Invalidate(parentID)
	}
}

// Require returns ErrNotAuthorized unless the parent holds an active
// session. Gated workflows call this before touching any state.
func (m *Manager) Require(parentID uuid.UUID) error {
	if !m.HasActive(parentID) {
		return ErrNotAuthorized
	}
	return nil
}
