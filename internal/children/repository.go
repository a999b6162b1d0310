package children

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/famquest/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, c *models.Child) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO children (id, parent_id, display_name, age_group)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, c.ID, c.ParentID, c.DisplayName, c.AgeGroup).Scan(&c.CreatedAt)
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Child, error) {
	var c models.Child
	err := r.pool.QueryRow(ctx, `
		SELECT id, parent_id, display_name, age_group, created_at
		FROM children WHERE id = $1
	`, id).Scan(&c.ID, &c.ParentID, &c.DisplayName, &c.AgeGroup, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) ListByParent(ctx context.Context, parentID uuid.UUID) ([]*models.Child, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, parent_id, display_name, age_group, created_at
		FROM children WHERE parent_id = $1 ORDER BY created_at ASC
	`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Child
	for rows.Next() {
		var c models.Child
		if err := rows.Scan(&c.ID, &c.ParentID, &c.DisplayName, &c.AgeGroup, &c.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &c)
	}
	return list, rows.Err()
}

// Delete removes the child. Missions, instances, claims, punishment
// applications, and ledger rows cascade via foreign keys.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM children WHERE id = $1`, id)
	return err
}
