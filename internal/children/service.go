package children

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/famquest/backend/internal/models"
	"github.com/famquest/backend/internal/session"
)

// Store is the child persistence interface.
type Store interface {
	Create(ctx context.Context, c *models.Child) error
	Get(ctx context.Context, id uuid.UUID) (*models.Child, error)
	ListByParent(ctx context.Context, parentID uuid.UUID) ([]*models.Child, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// AccountReader resolves the derived balance and level for a child.
type AccountReader interface {
	Account(ctx context.Context, childID uuid.UUID) (*models.PointsAccount, error)
}

type Service interface {
	Create(ctx context.Context, parentID uuid.UUID, displayName, ageGroup string) (*models.Child, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Child, error)
	ListByParent(ctx context.Context, parentID uuid.UUID) ([]*models.Child, error)
	Delete(ctx context.Context, parentID, childID uuid.UUID) error
}

type service struct {
	store    Store
	accounts AccountReader
	sessions *session.Manager
}

func NewService(store Store, accounts AccountReader, sessions *session.Manager) Service {
	return &service{store: store, accounts: accounts, sessions: sessions}
}

var _ Service = (*service)(nil)

func (s *service) Create(ctx context.Context, parentID uuid.UUID, displayName, ageGroup string) (*models.Child, error) {
	if displayName == "" {
		return nil, errors.New("display name required")
	}
	switch ageGroup {
	case models.AgeGroupToddler, models.AgeGroupKid, models.AgeGroupTeen:
	default:
		return nil, errors.New("unknown age group")
	}
	c := &models.Child{
		ID:          uuid.New(),
		ParentID:    parentID,
		DisplayName: displayName,
		AgeGroup:    ageGroup,
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get returns the child with balance and level filled in from the ledger.
func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Child, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	acc, err := s.accounts.Account(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Balance = acc.Balance
	c.Level = models.LevelForLifetime(acc.LifetimeEarned)
	return c, nil
}

func (s *service) ListByParent(ctx context.Context, parentID uuid.UUID) ([]*models.Child, error) {
	list, err := s.store.ListByParent(ctx, parentID)
	if err != nil {
		return nil, err
	}
	for _, c := range list {
		acc, err := s.accounts.Account(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		c.Balance = acc.Balance
		c.Level = models.LevelForLifetime(acc.LifetimeEarned)
	}
	return list, nil
}

// Delete is grace-gated: removing a child cascades its whole history.
func (s *service) Delete(ctx context.Context, parentID, childID uuid.UUID) error {
	if err := s.sessions.Require(parentID); err != nil {
		return err
	}
	c, err := s.store.Get(ctx, childID)
	if err != nil {
		return err
	}
	if c.ParentID != parentID {
		return pgx.ErrNoRows
	}
	return s.store.Delete(ctx, childID)
}
