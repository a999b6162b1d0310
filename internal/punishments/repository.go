package punishments

import (
	"context"
	"errors"
	"time"

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

func (r *Repository) CreateDefinition(ctx context.Context, d *models.PunishmentDefinition) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO punishment_definitions (id, parent_id, title, description, escalation_levels)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, d.ID, d.ParentID, d.Title, d.Description, d.EscalationLevels).Scan(&d.CreatedAt)
}

func (r *Repository) GetDefinition(ctx context.Context, id uuid.UUID) (*models.PunishmentDefinition, error) {
	var d models.PunishmentDefinition
	err := r.pool.QueryRow(ctx, `
		SELECT id, parent_id, title, description, escalation_levels, created_at
		FROM punishment_definitions WHERE id = $1
	`, id).Scan(&d.ID, &d.ParentID, &d.Title, &d.Description, &d.EscalationLevels, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *Repository) ListDefinitionsByParent(ctx context.Context, parentID uuid.UUID) ([]*models.PunishmentDefinition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, parent_id, title, description, escalation_levels, created_at
		FROM punishment_definitions WHERE parent_id = $1 ORDER BY created_at DESC
	`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PunishmentDefinition
	for rows.Next() {
		var d models.PunishmentDefinition
		if err := rows.Scan(&d.ID, &d.ParentID, &d.Title, &d.Description, &d.EscalationLevels, &d.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &d)
	}
	return list, rows.Err()
}

func (r *Repository) CreateApplicationTx(ctx context.Context, tx pgx.Tx, a *models.PunishmentApplication) error {
	return tx.QueryRow(ctx, `
		INSERT INTO punishment_applications (id, definition_id, child_id, level_index, reason, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING applied_at
	`, a.ID, a.DefinitionID, a.ChildID, a.LevelIndex, a.Reason, a.ExpiresAt).Scan(&a.AppliedAt)
}

func (r *Repository) GetApplication(ctx context.Context, id uuid.UUID) (*models.PunishmentApplication, error) {
	var a models.PunishmentApplication
	err := r.pool.QueryRow(ctx, `
		SELECT id, definition_id, child_id, level_index, reason, applied_at, expires_at, lifted_at, lift_reason
		FROM punishment_applications WHERE id = $1
	`, id).Scan(&a.ID, &a.DefinitionID, &a.ChildID, &a.LevelIndex, &a.Reason, &a.AppliedAt, &a.ExpiresAt, &a.LiftedAt, &a.LiftReason)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UnresolvedApplication returns the single in-force application for the
// (definition, child) pair, or nil. Expiry is passive: it is derived by
// comparing timestamps, never by a timer.
func (r *Repository) UnresolvedApplication(ctx context.Context, definitionID, childID uuid.UUID, now time.Time) (*models.PunishmentApplication, error) {
	var a models.PunishmentApplication
	err := r.pool.QueryRow(ctx, `
		SELECT id, definition_id, child_id, level_index, reason, applied_at, expires_at, lifted_at
		FROM punishment_applications
		WHERE definition_id = $1 AND child_id = $2
		  AND lifted_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY applied_at DESC LIMIT 1
	`, definitionID, childID, now).Scan(&a.ID, &a.DefinitionID, &a.ChildID, &a.LevelIndex, &a.Reason, &a.AppliedAt, &a.ExpiresAt, &a.LiftedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// EscalateTx advances an application to the given level and re-arms its
// expiry, guarded against concurrent lifts.
func (r *Repository) EscalateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, levelIndex int, expiresAt *time.Time) (bool, error) {
	res, err := tx.Exec(ctx, `
		UPDATE punishment_applications
		SET level_index = $2, expires_at = $3
		WHERE id = $1 AND lifted_at IS NULL
	`, id, levelIndex, expiresAt)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// MarkLifted sets lifted_at once; a second lift affects zero rows.
func (r *Repository) MarkLifted(ctx context.Context, id uuid.UUID, now time.Time, reason string) (bool, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE punishment_applications SET lifted_at = $2, lift_reason = $3
		WHERE id = $1 AND lifted_at IS NULL
	`, id, now, reason)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// ListUnresolvedByChild returns all in-force applications for the child.
func (r *Repository) ListUnresolvedByChild(ctx context.Context, childID uuid.UUID, now time.Time) ([]*models.PunishmentApplication, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, definition_id, child_id, level_index, reason, applied_at, expires_at, lifted_at
		FROM punishment_applications
		WHERE child_id = $1
		  AND lifted_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY applied_at DESC
	`, childID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PunishmentApplication
	for rows.Next() {
		var a models.PunishmentApplication
		if err := rows.Scan(&a.ID, &a.DefinitionID, &a.ChildID, &a.LevelIndex, &a.Reason, &a.AppliedAt, &a.ExpiresAt, &a.LiftedAt); err != nil {
			return nil, err
		}
		list = append(list, &a)
	}
	return list, rows.Err()
}
