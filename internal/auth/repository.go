package auth

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

func (r *Repository) Create(ctx context.Context, p *models.Parent) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO parents (id, email, display_name, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, p.ID, p.Email, p.DisplayName, p.PasswordHash).Scan(&p.CreatedAt)
}

// GetByEmail returns nil when no parent has the email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Parent, error) {
	var p models.Parent
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, password_hash, created_at
		FROM parents WHERE email = $1
	`, email).Scan(&p.ID, &p.Email, &p.DisplayName, &p.PasswordHash, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Parent, error) {
	var p models.Parent
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, password_hash, created_at
		FROM parents WHERE id = $1
	`, id).Scan(&p.ID, &p.Email, &p.DisplayName, &p.PasswordHash, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
