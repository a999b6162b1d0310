package punishments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/famquest/backend/internal/models"
	"github.com/famquest/backend/internal/session"
)

// ---------------------------------------------------------------------------
// In-memory mocks. fakeTx satisfies pgx.Tx; only Commit and Rollback are
// ever called.
// ---------------------------------------------------------------------------

type fakeTx struct {
	pgx.Tx
}

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type mockStore struct {
	mu           sync.Mutex
	definitions  map[uuid.UUID]*models.PunishmentDefinition
	applications map[uuid.UUID]*models.PunishmentApplication
}

func newMockStore() *mockStore {
	return &mockStore{
		definitions:  make(map[uuid.UUID]*models.PunishmentDefinition),
		applications: make(map[uuid.UUID]*models.PunishmentApplication),
	}
}

func (m *mockStore) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

func (m *mockStore) CreateDefinition(_ context.Context, d *models.PunishmentDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.definitions[d.ID] = &cp
	return nil
}

func (m *mockStore) GetDefinition(_ context.Context, id uuid.UUID) (*models.PunishmentDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.definitions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (m *mockStore) ListDefinitionsByParent(_ context.Context, parentID uuid.UUID) ([]*models.PunishmentDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PunishmentDefinition
	for _, d := range m.definitions {
		if d.ParentID == parentID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockStore) CreateApplicationTx(_ context.Context, _ pgx.Tx, a *models.PunishmentApplication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.applications[a.ID] = &cp
	return nil
}

func (m *mockStore) GetApplication(_ context.Context, id uuid.UUID) (*models.PunishmentApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.applications[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (m *mockStore) UnresolvedApplication(_ context.Context, definitionID, childID uuid.UUID, now time.Time) (*models.PunishmentApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.applications {
		if a.DefinitionID == definitionID && a.ChildID == childID && a.Unresolved(now) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockStore) EscalateTx(_ context.Context, _ pgx.Tx, id uuid.UUID, levelIndex int, expiresAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.applications[id]
	if !ok || a.LiftedAt != nil {
		return false, nil
	}
	a.LevelIndex = levelIndex
	a.ExpiresAt = expiresAt
	return true, nil
}

func (m *mockStore) MarkLifted(_ context.Context, id uuid.UUID, now time.Time, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.applications[id]
	if !ok || a.LiftedAt != nil {
		return false, nil
	}
	a.LiftedAt = &now
	a.LiftReason = &reason
	return true, nil
}

func (m *mockStore) ListUnresolvedByChild(_ context.Context, childID uuid.UUID, now time.Time) ([]*models.PunishmentApplication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PunishmentApplication
	for _, a := range m.applications {
		if a.ChildID == childID && a.Unresolved(now) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// mockLedger records clamped deductions against a balance.
type mockLedger struct {
	mu       sync.Mutex
	balances map[uuid.UUID]int
	debits   []int
}

func newMockLedger() *mockLedger {
	return &mockLedger{balances: make(map[uuid.UUID]int)}
}

func (m *mockLedger) DebitUpTo(_ context.Context, _ pgx.Tx, childID uuid.UUID, amount int, _, _ string, _ *uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if amount <= 0 {
		return 0, nil
	}
	take := amount
	if m.balances[childID] < take {
		take = m.balances[childID]
	}
	m.balances[childID] -= take
	if take > 0 {
		m.debits = append(m.debits, take)
	}
	return take, nil
}

func (m *mockLedger) balance(childID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[childID]
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

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

type fixture struct {
	svc      Service
	store    *mockStore
	ledger   *mockLedger
	clock    *fakeClock
	sessions *session.Manager
	parent   uuid.UUID
	child    uuid.UUID
	def      *models.PunishmentDefinition
}

func newFixture(t *testing.T, levels []models.EscalationLevel, balance int) *fixture {
	t.Helper()
	store := newMockStore()
	led := newMockLedger()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	parent := uuid.New()
	child := uuid.New()
	led.balances[child] = balance

	sessions := session.NewManager(5*time.Minute, 30*time.Second, clock.now)
	sessions.Begin(parent)
	svc := NewService(store, led, sessions, clock.now)

	def, err := svc.CreateDefinition(context.Background(), parent, &models.PunishmentDefinition{
		Title:            "screen time ban",
		EscalationLevels: levels,
	})
	if err != nil {
		t.Fatalf("CreateDefinition: %v", err)
	}
	return &fixture{svc: svc, store: store, ledger: led, clock: clock, sessions: sessions, parent: parent, child: child, def: def}
}

func defaultLevels() []models.EscalationLevel {
	return []models.EscalationLevel{
		{PointsDeduction: 5, DurationMinutes: 60},
		{PointsDeduction: 10, DurationMinutes: 120},
		{PointsDeduction: 20, DurationMinutes: 240},
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCreateDefinition_RequiresLevels(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, newMockLedger(), session.NewManager(time.Minute, time.Second, nil), nil)

	if _, err := svc.CreateDefinition(context.Background(), uuid.New(), &models.PunishmentDefinition{Title: "x"}); !errors.Is(err, ErrNoLevels) {
		t.Fatalf("got %v, want ErrNoLevels", err)
	}
	if _, err := svc.CreateDefinition(context.Background(), uuid.New(), &models.PunishmentDefinition{
		Title:            "x",
		EscalationLevels: []models.EscalationLevel{{PointsDeduction: -1}},
	}); err == nil {
		t.Error("negative deduction should be rejected")
	}
}

func TestApply_FirstApplicationAtLevelZero(t *testing.T) {
	f := newFixture(t, defaultLevels(), 100)

	app, err := f.svc.Apply(context.Background(), f.parent, f.def.ID, f.child, "hit sibling")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if app.LevelIndex != 0 {
		t.Errorf("level: got %d, want 0", app.LevelIndex)
	}
	if app.ExpiresAt == nil || !app.ExpiresAt.Equal(f.clock.now().Add(60*time.Minute)) {
		t.Errorf("expiry: got %v", app.ExpiresAt)
	}
	if got := f.ledger.balance(f.child); got != 95 {
		t.Errorf("balance: got %d, want 95", got)
	}

	restricted, _ := f.svc.IsChildRestricted(context.Background(), f.child)
	if !restricted {
		t.Error("child should be restricted while the application is in force")
	}
}

func TestApply_EscalatesInsteadOfDuplicating(t *testing.T) {
	f := newFixture(t, defaultLevels(), 100)
	ctx := context.Background()

	first, err := f.svc.Apply(ctx, f.parent, f.def.ID, f.child, "again")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	second, err := f.svc.Apply(ctx, f.parent, f.def.ID, f.child, "again")
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if second.ID != first.ID {
		t.Fatal("re-application must escalate the existing record, not create a duplicate")
	}
	if second.LevelIndex != 1 {
		t.Errorf("level: got %d, want 1", second.LevelIndex)
	}
	// 5 at level 0, then 10 at level 1.
	if got := f.ledger.balance(f.child); got != 85 {
		t.Errorf("balance: got %d, want 85", got)
	}
	if len(f.store.applications) != 1 {
		t.Errorf("applications: got %d, want 1", len(f.store.applications))
	}
}

func TestApply_EscalationCapsAtLastLevel(t *testing.T) {
	f := newFixture(t, defaultLevels(), 1000)
	ctx := context.Background()

	var app *models.PunishmentApplication
	var err error
	for i := 0; i < 5; i++ {
		app, err = f.svc.Apply(ctx, f.parent, f.def.ID, f.child, "again")
		if err != nil {
			t.Fatalf("Apply %d: %v", i, err)
		}
	}
	if app.LevelIndex != 2 {
		t.Errorf("level: got %d, want 2 (capped)", app.LevelIndex)
	}
	// 5 + 10 + 20 + 20 + 20.
	if got := f.ledger.balance(f.child); got != 1000-75 {
		t.Errorf("balance: got %d, want %d", got, 1000-75)
	}
}

func TestApply_DeductionClampsAtZero(t *testing.T) {
	f := newFixture(t, []models.EscalationLevel{{PointsDeduction: 50, DurationMinutes: 0}}, 30)

	if _, err := f.svc.Apply(context.Background(), f.parent, f.def.ID, f.child, "big one"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := f.ledger.balance(f.child); got != 0 {
		t.Errorf("balance: got %d, want 0", got)
	}
}

func TestApply_RequiresGraceSessionAndOwnership(t *testing.T) {
	f := newFixture(t, defaultLevels(), 100)
	ctx := context.Background()

	stranger := uuid.New()
	if _, err := f.svc.Apply(ctx, stranger, f.def.ID, f.child, "x"); !errors.Is(err, session.ErrNotAuthorized) {
		t.Errorf("got %v, want ErrNotAuthorized", err)
	}

	other := uuid.New()
	sessions := session.NewManager(5*time.Minute, 30*time.Second, f.clock.now)
	sessions.Begin(other)
	otherSvc := NewService(f.store, f.ledger, sessions, f.clock.now)
	if _, err := otherSvc.Apply(ctx, other, f.def.ID, f.child, "x"); !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("foreign definition: got %v, want pgx.ErrNoRows", err)
	}
}

func TestLift_EndsRestrictionWithoutRefund(t *testing.T) {
	f := newFixture(t, defaultLevels(), 100)
	ctx := context.Background()

	app, err := f.svc.Apply(ctx, f.parent, f.def.ID, f.child, "x")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	lifted, err := f.svc.Lift(ctx, f.parent, app.ID, "served enough")
	if err != nil {
		t.Fatalf("Lift: %v", err)
	}
	if lifted.LiftedAt == nil {
		t.Fatal("lifted application should carry a lift timestamp")
	}
	if got := f.ledger.balance(f.child); got != 95 {
		t.Errorf("lift must not refund the deduction: got %d, want 95", got)
	}

	restricted, _ := f.svc.IsChildRestricted(ctx, f.child)
	if restricted {
		t.Error("child should no longer be restricted")
	}

	if _, err := f.svc.Lift(ctx, f.parent, app.ID, "again"); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("double lift: got %v, want ErrAlreadyResolved", err)
	}
}

func TestRestriction_ExpiresPassively(t *testing.T) {
	f := newFixture(t, defaultLevels(), 100)
	ctx := context.Background()

	if _, err := f.svc.Apply(ctx, f.parent, f.def.ID, f.child, "x"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	restricted, _ := f.svc.IsChildRestricted(ctx, f.child)
	if !restricted {
		t.Fatal("should be restricted inside the window")
	}

	f.clock.advance(61 * time.Minute)
	restricted, _ = f.svc.IsChildRestricted(ctx, f.child)
	if restricted {
		t.Fatal("restriction should expire with the level's duration")
	}

	// An expired application is resolved; a fresh Apply starts over at
	// level zero rather than escalating it.
	f.sessions.Begin(f.parent)
	app, err := f.svc.Apply(ctx, f.parent, f.def.ID, f.child, "new offense")
	if err != nil {
		t.Fatalf("Apply after expiry: %v", err)
	}
	if app.LevelIndex != 0 {
		t.Errorf("level after expiry: got %d, want 0", app.LevelIndex)
	}
}

func TestLift_ExpiredApplicationIsResolved(t *testing.T) {
	f := newFixture(t, defaultLevels(), 100)
	ctx := context.Background()

	app, err := f.svc.Apply(ctx, f.parent, f.def.ID, f.child, "x")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	f.clock.advance(61 * time.Minute)
	f.sessions.Begin(f.parent)

	if _, err := f.svc.Lift(ctx, f.parent, app.ID, "late"); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("lift after expiry: got %v, want ErrAlreadyResolved", err)
	}
}

func TestApply_NoExpiryLevelLastsUntilLifted(t *testing.T) {
	f := newFixture(t, []models.EscalationLevel{{PointsDeduction: 0, DurationMinutes: 0}}, 100)
	ctx := context.Background()

	app, err := f.svc.Apply(ctx, f.parent, f.def.ID, f.child, "x")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if app.ExpiresAt != nil {
		t.Errorf("zero duration should mean no expiry, got %v", app.ExpiresAt)
	}
	if got := f.ledger.balance(f.child); got != 100 {
		t.Errorf("zero deduction must not move points: got %d", got)
	}

	f.clock.advance(1000 * time.Hour)
	restricted, _ := f.svc.IsChildRestricted(ctx, f.child)
	if !restricted {
		t.Fatal("no-expiry application should persist until lifted")
	}

	f.sessions.Begin(f.parent)
	if _, err := f.svc.Lift(ctx, f.parent, app.ID, "release"); err != nil {
		t.Fatalf("Lift: %v", err)
	}
	restricted, _ = f.svc.IsChildRestricted(ctx, f.child)
	if restricted {
		t.Error("lift should end the restriction")
	}
}
