package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/famquest/backend/internal/models"
	"github.com/famquest/backend/internal/session"
)

// ---------------------------------------------------------------------------
// In-memory mocks. fakeTx satisfies pgx.Tx for services that own their
// transaction; only Commit and Rollback are ever called.
// ---------------------------------------------------------------------------

type fakeTx struct {
	pgx.Tx
}

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakeDB struct{}

func (fakeDB) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

type mockAccounts struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.PointsAccount
}

func newMockAccounts() *mockAccounts {
	return &mockAccounts{accounts: make(map[uuid.UUID]*models.PointsAccount)}
}

func (m *mockAccounts) get(childID uuid.UUID) *models.PointsAccount {
	a, ok := m.accounts[childID]
	if !ok {
		a = &models.PointsAccount{ChildID: childID}
		m.accounts[childID] = a
	}
	return a
}

func (m *mockAccounts) GetForUpdate(_ context.Context, _ pgx.Tx, childID uuid.UUID) (*models.PointsAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.get(childID)
	return &cp, nil
}

func (m *mockAccounts) ApplyDelta(_ context.Context, _ pgx.Tx, childID uuid.UUID, delta, lifetimeInc int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.get(childID)
	if a.Balance+delta < 0 {
		return 0, fmt.Errorf("balance constraint violated for child %s", childID)
	}
	a.Balance += delta
	a.LifetimeEarned += lifetimeInc
	return a.Balance, nil
}

func (m *mockAccounts) Account(_ context.Context, childID uuid.UUID) (*models.PointsAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.get(childID)
	return &cp, nil
}

type mockEntries struct {
	mu      sync.Mutex
	entries []*models.PointsTransaction
}

func (m *mockEntries) CreateTx(_ context.Context, _ pgx.Tx, t *models.PointsTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *mockEntries) ListByChild(_ context.Context, childID uuid.UUID) ([]*models.PointsTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PointsTransaction
	for _, e := range m.entries {
		if e.ChildID == childID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEntries) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func activeSessions(parentID uuid.UUID) *session.Manager {
	mgr := session.NewManager(5*time.Minute, 30*time.Second, nil)
	mgr.Begin(parentID)
	return mgr
}

func newTestLedger(sessions *session.Manager) (Service, *mockAccounts, *mockEntries) {
	accounts := newMockAccounts()
	entries := &mockEntries{}
	return NewService(accounts, entries, fakeDB{}, sessions), accounts, entries
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCreditAppendsTransaction(t *testing.T) {
	svc, _, entries := newTestLedger(nil)
	child := uuid.New()
	ctx := context.Background()

	entry, err := svc.Credit(ctx, nil, child, 50, "dishes", models.PointsSourceMission, nil)
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if entry.Delta != 50 || entry.BalanceAfter != 50 {
		t.Errorf("entry: got delta=%d balanceAfter=%d, want 50/50", entry.Delta, entry.BalanceAfter)
	}
	if entries.count() != 1 {
		t.Fatalf("entries: got %d, want 1", entries.count())
	}

	acc, _ := svc.Account(ctx, child)
	if acc.Balance != 50 || acc.LifetimeEarned != 50 {
		t.Errorf("account: got balance=%d lifetime=%d, want 50/50", acc.Balance, acc.LifetimeEarned)
	}
}

func TestDebitInsufficientFunds(t *testing.T) {
	svc, _, entries := newTestLedger(nil)
	child := uuid.New()
	ctx := context.Background()

	if _, err := svc.Credit(ctx, nil, child, 30, "setup", models.PointsSourceManual, nil); err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if _, err := svc.Debit(ctx, nil, child, 31, "toy", models.PointsSourceClaim, nil); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}

	// The failed debit must not append anything.
	if entries.count() != 1 {
		t.Errorf("entries after failed debit: got %d, want 1", entries.count())
	}
	if b, _ := svc.Balance(ctx, child); b != 30 {
		t.Errorf("balance: got %d, want 30", b)
	}
}

func TestDebitDoesNotTouchLifetime(t *testing.T) {
	svc, _, _ := newTestLedger(nil)
	child := uuid.New()
	ctx := context.Background()

	_, _ = svc.Credit(ctx, nil, child, 100, "setup", models.PointsSourceManual, nil)
	if _, err := svc.Debit(ctx, nil, child, 40, "toy", models.PointsSourceClaim, nil); err != nil {
		t.Fatalf("Debit: %v", err)
	}

	acc, _ := svc.Account(ctx, child)
	if acc.Balance != 60 {
		t.Errorf("balance: got %d, want 60", acc.Balance)
	}
	if acc.LifetimeEarned != 100 {
		t.Errorf("lifetime should only grow on credits: got %d, want 100", acc.LifetimeEarned)
	}
}

func TestDebitUpToClampsAtZero(t *testing.T) {
	svc, _, entries := newTestLedger(nil)
	child := uuid.New()
	ctx := context.Background()

	_, _ = svc.Credit(ctx, nil, child, 10, "setup", models.PointsSourceManual, nil)

	debited, err := svc.DebitUpTo(ctx, nil, child, 25, "penalty", models.PointsSourcePunishment, nil)
	if err != nil {
		t.Fatalf("DebitUpTo: %v", err)
	}
	if debited != 10 {
		t.Errorf("debited: got %d, want 10", debited)
	}
	if b, _ := svc.Balance(ctx, child); b != 0 {
		t.Errorf("balance: got %d, want 0", b)
	}

	// Zero balance: nothing to take, nothing written.
	before := entries.count()
	debited, err = svc.DebitUpTo(ctx, nil, child, 25, "penalty", models.PointsSourcePunishment, nil)
	if err != nil || debited != 0 {
		t.Fatalf("second DebitUpTo: got debited=%d err=%v, want 0/nil", debited, err)
	}
	if entries.count() != before {
		t.Error("clamped-to-zero debit must not append a transaction")
	}
}

func TestAdjustRequiresGraceSession(t *testing.T) {
	parent := uuid.New()
	sessions := session.NewManager(5*time.Minute, 30*time.Second, nil)
	svc, _, _ := newTestLedger(sessions)

	if _, err := svc.Adjust(context.Background(), parent, uuid.New(), 10, "bonus"); !errors.Is(err, session.ErrNotAuthorized) {
		t.Fatalf("got %v, want ErrNotAuthorized", err)
	}
}

func TestAdjustCreditsAndDebits(t *testing.T) {
	parent := uuid.New()
	svc, _, _ := newTestLedger(activeSessions(parent))
	child := uuid.New()
	ctx := context.Background()

	entry, err := svc.Adjust(ctx, parent, child, 20, "bonus")
	if err != nil {
		t.Fatalf("Adjust credit: %v", err)
	}
	if entry.SourceType != models.PointsSourceManual || entry.Delta != 20 {
		t.Errorf("entry: got %s/%d, want manual/20", entry.SourceType, entry.Delta)
	}

	entry, err = svc.Adjust(ctx, parent, child, -5, "correction")
	if err != nil {
		t.Fatalf("Adjust debit: %v", err)
	}
	if entry.Delta != -5 || entry.BalanceAfter != 15 {
		t.Errorf("entry: got delta=%d balanceAfter=%d, want -5/15", entry.Delta, entry.BalanceAfter)
	}

	if _, err := svc.Adjust(ctx, parent, child, -100, "overdraw"); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("got %v, want ErrInsufficientFunds", err)
	}
}

func TestHistoryIsAppendOnly(t *testing.T) {
	parent := uuid.New()
	svc, _, _ := newTestLedger(activeSessions(parent))
	child := uuid.New()
	ctx := context.Background()

	_, _ = svc.Adjust(ctx, parent, child, 40, "a")
	_, _ = svc.Adjust(ctx, parent, child, -15, "b")
	_, _ = svc.Adjust(ctx, parent, child, 5, "c")

	history, err := svc.History(ctx, child)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history length: got %d, want 3", len(history))
	}

	// The balance is the fold of the log.
	sum := 0
	for _, e := range history {
		sum += e.Delta
	}
	b, _ := svc.Balance(ctx, child)
	if sum != b {
		t.Errorf("fold of deltas %d != balance %d", sum, b)
	}
}
