package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/famquest/backend/internal/models"
	"github.com/famquest/backend/internal/session"
)

// ErrInsufficientFunds is returned when a debit exceeds the child's
// balance. No transaction is written.
var ErrInsufficientFunds = errors.New("insufficient points")

// AccountStore is the minimal points-account interface for the ledger.
type AccountStore interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, childID uuid.UUID) (*models.PointsAccount, error)
	ApplyDelta(ctx context.Context, tx pgx.Tx, childID uuid.UUID, delta, lifetimeInc int) (newBalance int, err error)
	Account(ctx context.Context, childID uuid.UUID) (*models.PointsAccount, error)
}

// EntryStore is the minimal transaction-log interface for the ledger.
type EntryStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.PointsTransaction) error
	ListByChild(ctx context.Context, childID uuid.UUID) ([]*models.PointsTransaction, error)
}

// TxBeginner starts a database transaction for service-owned units of work.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service is the Points Ledger. Every balance change appends exactly one
// transaction in the same unit of work that moves the cached balance, so
// the balance is always the fold of the log.
type Service interface {
	Balance(ctx context.Context, childID uuid.UUID) (int, error)
	Account(ctx context.Context, childID uuid.UUID) (*models.PointsAccount, error)
	History(ctx context.Context, childID uuid.UUID) ([]*models.PointsTransaction, error)
	Credit(ctx context.Context, tx pgx.Tx, childID uuid.UUID, amount int, reason, sourceType string, sourceID *uuid.UUID) (*models.PointsTransaction, error)
	Debit(ctx context.Context, tx pgx.Tx, childID uuid.UUID, amount int, reason, sourceType string, sourceID *uuid.UUID) (*models.PointsTransaction, error)
	DebitUpTo(ctx context.Context, tx pgx.Tx, childID uuid.UUID, amount int, reason, sourceType string, sourceID *uuid.UUID) (debited int, err error)
	Adjust(ctx context.Context, parentID, childID uuid.UUID, delta int, reason string) (*models.PointsTransaction, error)
}

type service struct {
	accounts AccountStore
	entries  EntryStore
	db       TxBeginner
	sessions *session.Manager
}

func NewService(accounts AccountStore, entries EntryStore, db TxBeginner, sessions *session.Manager) Service {
	return &service{accounts: accounts, entries: entries, db: db, sessions: sessions}
}

var _ Service = (*service)(nil)

func (s *service) Balance(ctx context.Context, childID uuid.UUID) (int, error) {
	a, err := s.accounts.Account(ctx, childID)
	if err != nil {
		return 0, err
	}
	return a.Balance, nil
}

func (s *service) Account(ctx context.Context, childID uuid.UUID) (*models.PointsAccount, error) {
	return s.accounts.Account(ctx, childID)
}

func (s *service) History(ctx context.Context, childID uuid.UUID) ([]*models.PointsTransaction, error) {
	return s.entries.ListByChild(ctx, childID)
}

// Credit locks the child's account, adds amount, and appends the
// transaction. Positive deltas also accumulate lifetime earnings, which
// drive the child's level. Call within the workflow's transaction.
func (s *service) Credit(ctx context.Context, tx pgx.Tx, childID uuid.UUID, amount int, reason, sourceType string, sourceID *uuid.UUID) (*models.PointsTransaction, error) {
	if amount <= 0 {
		return nil, errors.New("credit amount must be positive")
	}
	if _, err := s.accounts.GetForUpdate(ctx, tx, childID); err != nil {
		return nil, err
	}
	newBalance, err := s.accounts.ApplyDelta(ctx, tx, childID, amount, amount)
	if err != nil {
		return nil, err
	}
	return s.append(ctx, tx, childID, amount, newBalance, reason, sourceType, sourceID)
}

// Debit locks the child's account and checks the balance before writing,
// so a concurrent debit for the same child can never observe an
// intermediate state. Fails with ErrInsufficientFunds when amount exceeds
// the balance.
func (s *service) Debit(ctx context.Context, tx pgx.Tx, childID uuid.UUID, amount int, reason, sourceType string, sourceID *uuid.UUID) (*models.PointsTransaction, error) {
	if amount <= 0 {
		return nil, errors.New("debit amount must be positive")
	}
	acc, err := s.accounts.GetForUpdate(ctx, tx, childID)
	if err != nil {
		return nil, err
	}
	if acc.Balance < amount {
		return nil, ErrInsufficientFunds
	}
	newBalance, err := s.accounts.ApplyDelta(ctx, tx, childID, -amount, 0)
	if err != nil {
		return nil, err
	}
	return s.append(ctx, tx, childID, -amount, newBalance, reason, sourceType, sourceID)
}

// DebitUpTo debits min(amount, balance): the balance may be driven to
// zero but never below. Returns the amount actually debited; zero means
// nothing was written.
func (s *service) DebitUpTo(ctx context.Context, tx pgx.Tx, childID uuid.UUID, amount int, reason, sourceType string, sourceID *uuid.UUID) (int, error) {
	if amount <= 0 {
		return 0, nil
	}
	acc, err := s.accounts.GetForUpdate(ctx, tx, childID)
	if err != nil {
		return 0, err
	}
	take := amount
	if acc.Balance < take {
		take = acc.Balance
	}
	if take == 0 {
		return 0, nil
	}
	newBalance, err := s.accounts.ApplyDelta(ctx, tx, childID, -take, 0)
	if err != nil {
		return 0, err
	}
	if _, err := s.append(ctx, tx, childID, -take, newBalance, reason, sourceType, sourceID); err != nil {
		return 0, err
	}
	return take, nil
}

// Adjust is the parent's manual correction, gated on an active grace
// session. It runs in its own transaction.
func (s *service) Adjust(ctx context.Context, parentID, childID uuid.UUID, delta int, reason string) (*models.PointsTransaction, error) {
	if err := s.sessions.Require(parentID); err != nil {
		return nil, err
	}
	if delta == 0 {
		return nil, errors.New("adjustment delta must be non-zero")
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var entry *models.PointsTransaction
	if delta > 0 {
		entry, err = s.Credit(ctx, tx, childID, delta, reason, models.PointsSourceManual, nil)
	} else {
		entry, err = s.Debit(ctx, tx, childID, -delta, reason, models.PointsSourceManual, nil)
	}
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) append(ctx context.Context, tx pgx.Tx, childID uuid.UUID, delta, balanceAfter int, reason, sourceType string, sourceID *uuid.UUID) (*models.PointsTransaction, error) {
	entry := &models.PointsTransaction{
		ID:           uuid.New(),
		ChildID:      childID,
		Delta:        delta,
		Reason:       reason,
		SourceType:   sourceType,
		SourceID:     sourceID,
		BalanceAfter: balanceAfter,
	}
	if err := s.entries.CreateTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}
