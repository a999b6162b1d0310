package ledger

import (
	"context"
	"errors"

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

// GetForUpdate locks the child's points account row, creating it lazily
// on first use. All debits and credits for one child serialize on this
// row lock. Call within a transaction.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, childID uuid.UUID) (*models.PointsAccount, error) {
	if _, err := tx.Exec(ctx, `
		INSERT INTO points_accounts (child_id) VALUES ($1) ON CONFLICT DO NOTHING
	`, childID); err != nil {
		return nil, err
	}
	var a models.PointsAccount
	err := tx.QueryRow(ctx, `
		SELECT child_id, balance, lifetime_earned, updated_at
		FROM points_accounts WHERE child_id = $1 FOR UPDATE
	`, childID).Scan(&a.ChildID, &a.Balance, &a.LifetimeEarned, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ApplyDelta adjusts the cached balance. The WHERE clause is a second
// guard against driving the balance negative; the service checks first.
func (r *Repository) ApplyDelta(ctx context.Context, tx pgx.Tx, childID uuid.UUID, delta, lifetimeInc int) (newBalance int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE points_accounts
		SET balance = balance + $1, lifetime_earned = lifetime_earned + $2, updated_at = now()
		WHERE child_id = $3 AND balance + $1 >= 0
		RETURNING balance
	`, delta, lifetimeInc, childID).Scan(&newBalance)
	return newBalance, err
}

// CreateTx appends a ledger transaction inside the given transaction.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, t *models.PointsTransaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO points_transactions (id, child_id, delta, reason, source_type, source_id, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, t.ID, t.ChildID, t.Delta, t.Reason, t.SourceType, t.SourceID, t.BalanceAfter).Scan(&t.CreatedAt)
}

// Account returns the cached account, or a zero-balance account if the
// child has no ledger activity yet.
func (r *Repository) Account(ctx context.Context, childID uuid.UUID) (*models.PointsAccount, error) {
	var a models.PointsAccount
	err := r.pool.QueryRow(ctx, `
		SELECT child_id, balance, lifetime_earned, updated_at
		FROM points_accounts WHERE child_id = $1
	`, childID).Scan(&a.ChildID, &a.Balance, &a.LifetimeEarned, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.PointsAccount{ChildID: childID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) ListByChild(ctx context.Context, childID uuid.UUID) ([]*models.PointsTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, child_id, delta, reason, source_type, source_id, balance_after, created_at
		FROM points_transactions WHERE child_id = $1 ORDER BY created_at DESC
	`, childID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PointsTransaction
	for rows.Next() {
		var t models.PointsTransaction
		if err := rows.Scan(&t.ID, &t.ChildID, &t.Delta, &t.Reason, &t.SourceType, &t.SourceID, &t.BalanceAfter, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}
