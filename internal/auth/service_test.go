package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/famquest/backend/internal/models"
)

type mockStore struct {
	mu      sync.Mutex
	parents map[string]*models.Parent
}

func newMockStore() *mockStore {
	return &mockStore{parents: make(map[string]*models.Parent)}
}

func (m *mockStore) Create(_ context.Context, p *models.Parent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(p.Email)
	if _, ok := m.parents[key]; ok {
		return &pgconn.PgError{Code: "23505"}
	}
	cp := *p
	m.parents[key] = &cp
	return nil
}

func (m *mockStore) GetByEmail(_ context.Context, email string) (*models.Parent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.parents[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func TestRegisterAndLogin(t *testing.T) {
	svc := NewService(newMockStore(), "test-secret")
	ctx := context.Background()

	p, err := svc.Register(ctx, "jo@example.com", "hunter22", "Jo")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if p.PasswordHash == "hunter22" {
		t.Error("password must not be stored in the clear")
	}

	if _, err := svc.Register(ctx, "jo@example.com", "other", "Jo"); !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("duplicate email: got %v, want ErrDuplicateEmail", err)
	}

	token, err := svc.Login(ctx, "jo@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	parentID, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if parentID != p.ID {
		t.Errorf("token subject: got %s, want %s", parentID, p.ID)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := NewService(newMockStore(), "test-secret")
	ctx := context.Background()

	if _, err := svc.Register(ctx, "jo@example.com", "hunter22", "Jo"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Login(ctx, "jo@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: got %v, want ErrInvalidCredentials", err)
	}
}

func TestValidateToken_Tampered(t *testing.T) {
	svc := NewService(newMockStore(), "test-secret")
	other := NewService(newMockStore(), "other-secret")
	ctx := context.Background()

	if _, err := svc.Register(ctx, "jo@example.com", "hunter22", "Jo"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	token, err := svc.Login(ctx, "jo@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, err := other.ValidateToken(ctx, token); err == nil {
		t.Error("token signed with another secret should fail validation")
	}
	if _, err := svc.ValidateToken(ctx, token+"x"); err == nil {
		t.Error("tampered token should fail validation")
	}
	if _, err := svc.ValidateToken(ctx, "not-a-jwt"); err == nil {
		t.Error("garbage should fail validation")
	}
}

func TestValidateToken_SubjectIsParent(t *testing.T) {
	svc := NewService(newMockStore(), "test-secret")
	ctx := context.Background()

	a, _ := svc.Register(ctx, "a@example.com", "pw-aaaa", "A")
	b, _ := svc.Register(ctx, "b@example.com", "pw-bbbb", "B")

	ta, _ := svc.Login(ctx, "a@example.com", "pw-aaaa")
	tb, _ := svc.Login(ctx, "b@example.com", "pw-bbbb")

	ida, _ := svc.ValidateToken(ctx, ta)
	idb, _ := svc.ValidateToken(ctx, tb)
	if ida != a.ID || idb != b.ID || ida == idb {
		t.Errorf("subjects: got %s/%s, want %s/%s", ida, idb, a.ID, b.ID)
	}
}
