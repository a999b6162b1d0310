package pin

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

// Get returns the parent's credential, or nil if none is configured.
func (r *Repository) Get(ctx context.Context, parentID uuid.UUID) (*models.PinCredential, error) {
	var c models.PinCredential
	err := r.pool.QueryRow(ctx, `
		SELECT parent_id, pin_hash, version, updated_at
		FROM pin_credentials WHERE parent_id = $1
	`, parentID).Scan(&c.ParentID, &c.PinHash, &c.Version, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) Create(ctx context.Context, parentID uuid.UUID, pinHash string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO pin_credentials (parent_id, pin_hash, version)
		VALUES ($1, $2, 1)
	`, parentID, pinHash)
	return err
}

// Rotate replaces the stored hash and bumps the version.
func (r *Repository) Rotate(ctx context.Context, parentID uuid.UUID, pinHash string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE pin_credentials
		SET pin_hash = $2, version = version + 1, updated_at = now()
		WHERE parent_id = $1
	`, parentID, pinHash)
	return err
}
