package rewards

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/famquest/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *Repository) CreateItem(ctx context.Context, it *models.RewardItem) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO reward_items (id, parent_id, title, points_cost, quantity_remaining, active, age_restriction)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, it.ID, it.ParentID, it.Title, it.PointsCost, it.QuantityRemaining, it.Active, it.AgeRestriction).Scan(&it.CreatedAt)
}

func (r *Repository) GetItem(ctx context.Context, id uuid.UUID) (*models.RewardItem, error) {
	var it models.RewardItem
	err := r.pool.QueryRow(ctx, `
		SELECT id, parent_id, title, points_cost, quantity_remaining, active, age_restriction, created_at
		FROM reward_items WHERE id = $1
	`, id).Scan(&it.ID, &it.ParentID, &it.Title, &it.PointsCost, &it.QuantityRemaining, &it.Active, &it.AgeRestriction, &it.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *Repository) UpdateItem(ctx context.Context, it *models.RewardItem) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE reward_items
		SET title = $2, points_cost = $3, quantity_remaining = $4, active = $5, age_restriction = $6
		WHERE id = $1
	`, it.ID, it.Title, it.PointsCost, it.QuantityRemaining, it.Active, it.AgeRestriction)
	return err
}

func (r *Repository) ListItemsByParent(ctx context.Context, parentID uuid.UUID) ([]*models.RewardItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, parent_id, title, points_cost, quantity_remaining, active, age_restriction, created_at
		FROM reward_items WHERE parent_id = $1 ORDER BY created_at DESC
	`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.RewardItem
	for rows.Next() {
		var it models.RewardItem
		if err := rows.Scan(&it.ID, &it.ParentID, &it.Title, &it.PointsCost, &it.QuantityRemaining, &it.Active, &it.AgeRestriction, &it.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &it)
	}
	return list, rows.Err()
}

// DecrementStockTx takes one unit of finite stock. Unlimited items
// (NULL quantity) always succeed; finite items succeed only while stock
// remains, atomically.
func (r *Repository) DecrementStockTx(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) (bool, error) {
	res, err := tx.Exec(ctx, `
		UPDATE reward_items
		SET quantity_remaining = quantity_remaining - 1
		WHERE id = $1 AND quantity_remaining IS NOT NULL AND quantity_remaining > 0
	`, itemID)
	if err != nil {
		return false, err
	}
	if res.RowsAffected() > 0 {
		return true, nil
	}
	var unlimited bool
	if err := tx.QueryRow(ctx, `
		SELECT quantity_remaining IS NULL FROM reward_items WHERE id = $1
	`, itemID).Scan(&unlimited); err != nil {
		return false, err
	}
	return unlimited, nil
}

// RestoreStockTx puts one unit back on claim rejection.
func (r *Repository) RestoreStockTx(ctx context.Context, tx pgx.Tx, itemID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE reward_items
		SET quantity_remaining = quantity_remaining + 1
		WHERE id = $1 AND quantity_remaining IS NOT NULL
	`, itemID)
	return err
}

func (r *Repository) CreateClaimTx(ctx context.Context, tx pgx.Tx, c *models.RewardClaim) error {
	return tx.QueryRow(ctx, `
		INSERT INTO reward_claims (id, item_id, child_id, points_cost, state)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, c.ID, c.ItemID, c.ChildID, c.PointsCost, c.State).Scan(&c.CreatedAt)
}

func (r *Repository) GetClaim(ctx context.Context, id uuid.UUID) (*models.RewardClaim, error) {
	var c models.RewardClaim
	err := r.pool.QueryRow(ctx, `
		SELECT id, item_id, child_id, points_cost, state, reject_reason, created_at, resolved_at
		FROM reward_claims WHERE id = $1
	`, id).Scan(&c.ID, &c.ItemID, &c.ChildID, &c.PointsCost, &c.State, &c.RejectReason, &c.CreatedAt, &c.ResolvedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// MarkApproved performs pending -> approved atomically.
func (r *Repository) MarkApproved(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE reward_claims SET state = $2, resolved_at = now()
		WHERE id = $1 AND state = $3
	`, id, models.ClaimStateApproved, models.ClaimStatePending)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// MarkRejectedTx performs pending -> rejected inside the caller's
// transaction, alongside the refund credit.
func (r *Repository) MarkRejectedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string) (bool, error) {
	res, err := tx.Exec(ctx, `
		UPDATE reward_claims SET state = $2, reject_reason = $3, resolved_at = now()
		WHERE id = $1 AND state = $4
	`, id, models.ClaimStateRejected, reason, models.ClaimStatePending)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (r *Repository) ListClaimsByChild(ctx context.Context, childID uuid.UUID) ([]*models.RewardClaim, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, item_id, child_id, points_cost, state, reject_reason, created_at, resolved_at
		FROM reward_claims WHERE child_id = $1 ORDER BY created_at DESC
	`, childID)
	if err != nil {
		return nil, err
	}
	return scanClaims(rows)
}

// ListPendingByParent returns pending claims across the parent's catalog,
// for the review screen and batch approval.
func (r *Repository) ListPendingByParent(ctx context.Context, parentID uuid.UUID) ([]*models.RewardClaim, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.item_id, c.child_id, c.points_cost, c.state, c.reject_reason, c.created_at, c.resolved_at
		FROM reward_claims c
		JOIN reward_items i ON i.id = c.item_id
		WHERE i.parent_id = $1 AND c.state = $2
		ORDER BY c.created_at ASC
	`, parentID, models.ClaimStatePending)
	if err != nil {
		return nil, err
	}
	return scanClaims(rows)
}

func scanClaims(rows pgx.Rows) ([]*models.RewardClaim, error) {
	defer rows.Close()
	var list []*models.RewardClaim
	for rows.Next() {
		var c models.RewardClaim
		if err := rows.Scan(&c.ID, &c.ItemID, &c.ChildID, &c.PointsCost, &c.State, &c.RejectReason, &c.CreatedAt, &c.ResolvedAt); err != nil {
			return nil, err
		}
		list = append(list, &c)
	}
	return list, rows.Err()
}
