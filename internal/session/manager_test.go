package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestManager() (*Manager, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewManager(5*time.Minute, 30*time.Second, clock.now), clock
}

func TestBeginAndRequire(t *testing.T) {
	m, _ := newTestManager()
	parent := uuid.New()

	if err := m.Require(parent); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("before begin: got %v, want ErrNotAuthorized", err)
	}

	s := m.Begin(parent)
	if !s.ExpiresAt.Equal(s.IssuedAt.Add(5 * time.Minute)) {
		t.Errorf("expiry: got %v, want issued+5m", s.ExpiresAt)
	}
	if err := m.Require(parent); err != nil {
		t.Errorf("after begin: %v", err)
	}

	// Sessions are per parent.
	if err := m.Require(uuid.New()); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("other parent: got %v, want ErrNotAuthorized", err)
	}
}

func TestSessionExpires(t *testing.T) {
	m, clock := newTestManager()
	parent := uuid.New()
	m.Begin(parent)

	clock.advance(5*time.Minute - time.Second)
	if !m.HasActive(parent) {
		t.Fatal("session should still be active just before the window ends")
	}

	clock.advance(2 * time.Second)
	if m.HasActive(parent) {
		t.Fatal("session should have expired")
	}
	if err := m.Require(parent); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("got %v, want ErrNotAuthorized", err)
	}
}

func TestBeginReplacesSession(t *testing.T) {
	m, clock := newTestManager()
	parent := uuid.New()

	first := m.Begin(parent)
	clock.advance(3 * time.Minute)
	second := m.Begin(parent)

	if !second.ExpiresAt.After(first.ExpiresAt) {
		t.Error("re-verification should extend the window")
	}
	got, ok := m.Get(parent)
	if !ok || !got.IssuedAt.Equal(second.IssuedAt) {
		t.Error("Get should return the replacement session")
	}
}

func TestInvalidate(t *testing.T) {
	m, _ := newTestManager()
	parent := uuid.New()
	m.Begin(parent)
	m.Invalidate(parent)
	if m.HasActive(parent) {
		t.Fatal("invalidated session should not be active")
	}
}

func TestNoteBackground(t *testing.T) {
	m, clock := newTestManager()
	parent := uuid.New()

	m.Begin(parent)
	since := clock.now()
	clock.advance(10 * time.Second)
	m.NoteBackground(parent, since)
	if !m.HasActive(parent) {
		t.Fatal("short background stint should keep the session")
	}

	since = clock.now()
	clock.advance(31 * time.Second)
	m.NoteBackground(parent, since)
	if m.HasActive(parent) {
		t.Fatal("long background stint should invalidate the session")
	}
}
