package rewards

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/famquest/backend/internal/models"
	"github.com/famquest/backend/internal/session"
)

var (
	// ErrNotAvailable is returned when the item is inactive, out of
	// stock, or age-restricted against the child.
	ErrNotAvailable = errors.New("reward not available")

	// ErrRestricted is returned when an unresolved punishment blocks
	// the child from claiming rewards.
	ErrRestricted = errors.New("child is currently restricted")

	// ErrAlreadyResolved is returned when approving or rejecting a
	// claim that is no longer pending.
	ErrAlreadyResolved = errors.New("claim already resolved")
)

// Store is the persistence interface for the claim workflow.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)

	CreateItem(ctx context.Context, it *models.RewardItem) error
	GetItem(ctx context.Context, id uuid.UUID) (*models.RewardItem, error)
	UpdateItem(ctx context.Context, it *models.RewardItem) error
	ListItemsByParent(ctx context.Context, parentID uuid.UUID) ([]*models.RewardItem, error)
	DecrementStockTx(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (bool, error)
	RestoreStockTx(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) error

	CreateClaimTx(ctx context.Context, tx pgx.Tx, c *models.RewardClaim) error
	GetClaim(ctx context.Context, id uuid.UUID) (*models.RewardClaim, error)
	MarkApproved(ctx context.Context, id uuid.UUID) (bool, error)
	MarkRejectedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string) (bool, error)
	ListClaimsByChild(ctx context.Context, childID uuid.UUID) ([]*models.RewardClaim, error)
	ListPendingByParent(ctx context.Context, parentID uuid.UUID) ([]*models.RewardClaim, error)
}

// LedgerService is the slice of the points ledger the workflow uses.
type LedgerService interface {
	Debit(ctx context.Context, tx pgx.Tx, childID uuid.UUID, amount int, reason, sourceType string, sourceID *uuid.UUID) (*models.PointsTransaction, error)
	Credit(ctx context.Context, tx pgx.Tx, childID uuid.UUID, amount int, reason, sourceType string, sourceID *uuid.UUID) (*models.PointsTransaction, error)
}

// ChildStore resolves the claiming child for age-restriction checks.
type ChildStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Child, error)
}

// RestrictionChecker is the read-only view of the punishment engine the
// claim workflow consumes as a precondition.
type RestrictionChecker interface {
	IsChildRestricted(ctx context.Context, childID uuid.UUID) (bool, error)
}

// BatchResult reports the outcome of one claim in a batch approval.
type BatchResult struct {
	ClaimID uuid.UUID `json:"claim_id"`
	Err     error     `json:"-"`
}

type Service interface {
	CreateItem(ctx context.Context, parentID uuid.UUID, it *models.RewardItem) (*models.RewardItem, error)
	UpdateItem(ctx context.Context, parentID uuid.UUID, it *models.RewardItem) error
	DeactivateItem(ctx context.Context, parentID, itemID uuid.UUID) error
	ListItems(ctx context.Context, parentID uuid.UUID) ([]*models.RewardItem, error)

	Claim(ctx context.Context, childID, itemID uuid.UUID) (*models.RewardClaim, error)
	Approve(ctx context.Context, parentID, claimID uuid.UUID) (*models.RewardClaim, error)
	Reject(ctx context.Context, parentID, claimID uuid.UUID, reason string) (*models.RewardClaim, error)
	BatchApprove(ctx context.Context, parentID uuid.UUID, claimIDs []uuid.UUID) ([]BatchResult, error)
	ListClaims(ctx context.Context, childID uuid.UUID) ([]*models.RewardClaim, error)
	ListPending(ctx context.Context, parentID uuid.UUID) ([]*models.RewardClaim, error)
}

type service struct {
	store        Store
	ledger       LedgerService
	children     ChildStore
	restrictions RestrictionChecker
	sessions     *session.Manager
}

func NewService(store Store, ledger LedgerService, children ChildStore, restrictions RestrictionChecker, sessions *session.Manager) Service {
	return &service{store: store, ledger: ledger, children: children, restrictions: restrictions, sessions: sessions}
}

var _ Service = (*service)(nil)

func (s *service) CreateItem(ctx context.Context, parentID uuid.UUID, it *models.RewardItem) (*models.RewardItem, error) {
	if it.PointsCost <= 0 {
		return nil, errors.New("points cost must be positive")
	}
	it.ID = uuid.New()
	it.ParentID = parentID
	it.Active = true
	if err := s.store.CreateItem(ctx, it); err != nil {
		return nil, err
	}
	return it, nil
}

func (s *service) UpdateItem(ctx context.Context, parentID uuid.UUID, it *models.RewardItem) error {
	existing, err := s.store.GetItem(ctx, it.ID)
	if err != nil {
		return err
	}
	if existing.ParentID != parentID {
		return pgx.ErrNoRows
	}
	if it.PointsCost <= 0 {
		return errors.New("points cost must be positive")
	}
	it.ParentID = existing.ParentID
	it.Active = existing.Active
	return s.store.UpdateItem(ctx, it)
}

func (s *service) DeactivateItem(ctx context.Context, parentID, itemID uuid.UUID) error {
	existing, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if existing.ParentID != parentID {
		return pgx.ErrNoRows
	}
	existing.Active = false
	return s.store.UpdateItem(ctx, existing)
}

func (s *service) ListItems(ctx context.Context, parentID uuid.UUID) ([]*models.RewardItem, error) {
	return s.store.ListItemsByParent(ctx, parentID)
}

// Claim is child-initiated. The debit and the pending claim record commit
// atomically; an insufficient balance leaves no claim behind. The cost is
// snapshotted so later price changes never change the refund.
func (s *service) Claim(ctx context.Context, childID, itemID uuid.UUID) (*models.RewardClaim, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	child, err := s.children.Get(ctx, childID)
	if err != nil {
		return nil, err
	}
	if !item.Active {
		return nil, ErrNotAvailable
	}
	if item.AgeRestriction != nil && !models.AgeGroupAtLeast(child.AgeGroup, *item.AgeRestriction) {
		return nil, ErrNotAvailable
	}
	if item.QuantityRemaining != nil && *item.QuantityRemaining <= 0 {
		return nil, ErrNotAvailable
	}
	restricted, err := s.restrictions.IsChildRestricted(ctx, childID)
	if err != nil {
		return nil, err
	}
	if restricted {
		return nil, ErrRestricted
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ok, err := s.store.DecrementStockTx(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAvailable
	}

	claim := &models.RewardClaim{
		ID:         uuid.New(),
		ItemID:     itemID,
		ChildID:    childID,
		PointsCost: item.PointsCost,
		State:      models.ClaimStatePending,
	}
	claimID := claim.ID
	if _, err := s.ledger.Debit(ctx, tx, childID, item.PointsCost, item.Title, models.PointsSourceClaim, &claimID); err != nil {
		return nil, err
	}
	if err := s.store.CreateClaimTx(ctx, tx, claim); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return claim, nil
}

// Approve is parent-initiated and grace-gated. Points were already taken
// at claim time, so there is no further ledger effect.
func (s *service) Approve(ctx context.Context, parentID, claimID uuid.UUID) (*models.RewardClaim, error) {
	if err := s.sessions.Require(parentID); err != nil {
		return nil, err
	}
	return s.approveOne(ctx, parentID, claimID)
}

func (s *service) approveOne(ctx context.Context, parentID, claimID uuid.UUID) (*models.RewardClaim, error) {
	claim, err := s.store.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if err := s.checkOwnership(ctx, parentID, claim); err != nil {
		return nil, err
	}
	ok, err := s.store.MarkApproved(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyResolved
	}
	return s.store.GetClaim(ctx, claimID)
}

// Reject is parent-initiated and grace-gated. The state change, the
// refund of the snapshotted cost, and the stock restore commit together.
func (s *service) Reject(ctx context.Context, parentID, claimID uuid.UUID, reason string) (*models.RewardClaim, error) {
	if err := s.sessions.Require(parentID); err != nil {
		return nil, err
	}
	claim, err := s.store.GetClaim(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if err := s.checkOwnership(ctx, parentID, claim); err != nil {
		return nil, err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ok, err := s.store.MarkRejectedTx(ctx, tx, claimID, reason)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyResolved
	}
	id := claim.ID
	if _, err := s.ledger.Credit(ctx, tx, claim.ChildID, claim.PointsCost, "refund", models.PointsSourceRefund, &id); err != nil {
		return nil, err
	}
	if err := s.store.RestoreStockTx(ctx, tx, claim.ItemID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s.store.GetClaim(ctx, claimID)
}

// BatchApprove applies one authorization to a set of pending claims and
// reports per-claim outcomes.
func (s *service) BatchApprove(ctx context.Context, parentID uuid.UUID, claimIDs []uuid.UUID) ([]BatchResult, error) {
	if err := s.sessions.Require(parentID); err != nil {
		return nil, err
	}
	results := make([]BatchResult, 0, len(claimIDs))
	for _, id := range claimIDs {
		_, err := s.approveOne(ctx, parentID, id)
		results = append(results, BatchResult{ClaimID: id, Err: err})
	}
	return results, nil
}

func (s *service) ListClaims(ctx context.Context, childID uuid.UUID) ([]*models.RewardClaim, error) {
	return s.store.ListClaimsByChild(ctx, childID)
}

func (s *service) ListPending(ctx context.Context, parentID uuid.UUID) ([]*models.RewardClaim, error) {
	return s.store.ListPendingByParent(ctx, parentID)
}

func (s *service) checkOwnership(ctx context.Context, parentID uuid.UUID, claim *models.RewardClaim) error {
	item, err := s.store.GetItem(ctx, claim.ItemID)
	if err != nil {
		return err
	}
	if item.ParentID != parentID {
		return pgx.ErrNoRows
	}
	return nil
}
