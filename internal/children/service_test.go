package children

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

type mockStore struct {
	mu       sync.Mutex
	children map[uuid.UUID]*models.Child
}

func newMockStore() *mockStore {
	return &mockStore{children: make(map[uuid.UUID]*models.Child)}
}

func (m *mockStore) Create(_ context.Context, c *models.Child) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.children[c.ID] = &cp
	return nil
}

func (m *mockStore) Get(_ context.Context, id uuid.UUID) (*models.Child, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.children[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (m *mockStore) ListByParent(_ context.Context, parentID uuid.UUID) ([]*models.Child, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Child
	for _, c := range m.children {
		if c.ParentID == parentID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.children, id)
	return nil
}

type mockAccounts struct {
	accounts map[uuid.UUID]*models.PointsAccount
}

func (m *mockAccounts) Account(_ context.Context, childID uuid.UUID) (*models.PointsAccount, error) {
	if a, ok := m.accounts[childID]; ok {
		return a, nil
	}
	return &models.PointsAccount{ChildID: childID}, nil
}

func TestCreate_Validation(t *testing.T) {
	svc := NewService(newMockStore(), &mockAccounts{}, nil)
	ctx := context.Background()
	parent := uuid.New()

	if _, err := svc.Create(ctx, parent, "", models.AgeGroupKid); err == nil {
		t.Error("empty name should be rejected")
	}
	if _, err := svc.Create(ctx, parent, "Sam", "adult"); err == nil {
		t.Error("unknown age group should be rejected")
	}
	c, err := svc.Create(ctx, parent, "Sam", models.AgeGroupKid)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.ParentID != parent || c.AgeGroup != models.AgeGroupKid {
		t.Errorf("child: got %+v", c)
	}
}

func TestGet_DerivesBalanceAndLevel(t *testing.T) {
	store := newMockStore()
	parent := uuid.New()
	child := &models.Child{ID: uuid.New(), ParentID: parent, DisplayName: "Sam", AgeGroup: models.AgeGroupKid}
	_ = store.Create(context.Background(), child)

	accounts := &mockAccounts{accounts: map[uuid.UUID]*models.PointsAccount{
		child.ID: {ChildID: child.ID, Balance: 40, LifetimeEarned: 250},
	}}
	svc := NewService(store, accounts, nil)

	got, err := svc.Get(context.Background(), child.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Balance != 40 {
		t.Errorf("balance: got %d, want 40", got.Balance)
	}
	// 250 lifetime at 100 points per level.
	if got.Level != 2 {
		t.Errorf("level: got %d, want 2", got.Level)
	}
}

func TestDelete_GatedAndOwned(t *testing.T) {
	store := newMockStore()
	parent := uuid.New()
	child := &models.Child{ID: uuid.New(), ParentID: parent, DisplayName: "Sam", AgeGroup: models.AgeGroupKid}
	_ = store.Create(context.Background(), child)

	sessions := session.NewManager(5*time.Minute, 30*time.Second, nil)
	svc := NewService(store, &mockAccounts{}, sessions)
	ctx := context.Background()

	if err := svc.Delete(ctx, parent, child.ID); !errors.Is(err, session.ErrNotAuthorized) {
		t.Fatalf("ungated delete: got %v, want ErrNotAuthorized", err)
	}

	sessions.Begin(parent)
	other := uuid.New()
	sessions.Begin(other)
	if err := svc.Delete(ctx, other, child.ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Errorf("foreign delete: got %v, want pgx.ErrNoRows", err)
	}

	if err := svc.Delete(ctx, parent, child.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, child.ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Error("child should be gone")
	}
}
