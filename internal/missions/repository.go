package missions

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

func (r *Repository) CreateMission(ctx context.Context, m *models.Mission) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO missions (id, parent_id, title, description, points_reward, recurrence, active, due_date, photo_proof_required)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, m.ID, m.ParentID, m.Title, m.Description, m.PointsReward, m.Recurrence, m.Active, m.DueDate, m.PhotoProofRequired).Scan(&m.CreatedAt, &m.UpdatedAt)
}

func (r *Repository) GetMission(ctx context.Context, id uuid.UUID) (*models.Mission, error) {
	var m models.Mission
	err := r.pool.QueryRow(ctx, `
		SELECT id, parent_id, title, description, points_reward, recurrence, active, due_date, photo_proof_required, created_at, updated_at
		FROM missions WHERE id = $1
	`, id).Scan(&m.ID, &m.ParentID, &m.Title, &m.Description, &m.PointsReward, &m.Recurrence, &m.Active, &m.DueDate, &m.PhotoProofRequired, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repository) UpdateMission(ctx context.Context, m *models.Mission) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE missions
		SET title = $2, description = $3, points_reward = $4, due_date = $5, photo_proof_required = $6, updated_at = now()
		WHERE id = $1
	`, m.ID, m.Title, m.Description, m.PointsReward, m.DueDate, m.PhotoProofRequired)
	return err
}

// SetMissionActive soft-activates or soft-deactivates. Missions are never
// hard-deleted once assigned: historical ledger entries keep referencing
// their instances.
func (r *Repository) SetMissionActive(ctx context.Context, id uuid.UUID, active bool) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE missions SET active = $2, updated_at = now() WHERE id = $1
	`, id, active)
	return err
}

func (r *Repository) ListMissionsByParent(ctx context.Context, parentID uuid.UUID) ([]*models.Mission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, parent_id, title, description, points_reward, recurrence, active, due_date, photo_proof_required, created_at, updated_at
		FROM missions WHERE parent_id = $1 ORDER BY created_at DESC
	`, parentID)
	if err != nil {
		return nil, err
	}
	return scanMissions(rows)
}

func (r *Repository) ListMissionsByChild(ctx context.Context, childID uuid.UUID) ([]*models.Mission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.id, m.parent_id, m.title, m.description, m.points_reward, m.recurrence, m.active, m.due_date, m.photo_proof_required, m.created_at, m.updated_at
		FROM missions m
		JOIN mission_assignments a ON a.mission_id = m.id
		WHERE a.child_id = $1 AND m.active
		ORDER BY m.created_at DESC
	`, childID)
	if err != nil {
		return nil, err
	}
	return scanMissions(rows)
}

func scanMissions(rows pgx.Rows) ([]*models.Mission, error) {
	defer rows.Close()
	var list []*models.Mission
	for rows.Next() {
		var m models.Mission
		if err := rows.Scan(&m.ID, &m.ParentID, &m.Title, &m.Description, &m.PointsReward, &m.Recurrence, &m.Active, &m.DueDate, &m.PhotoProofRequired, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &m)
	}
	return list, rows.Err()
}

func (r *Repository) Assign(ctx context.Context, missionID, childID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO mission_assignments (mission_id, child_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, missionID, childID)
	return err
}

// GetAssignment returns nil when the mission is not assigned to the child.
func (r *Repository) GetAssignment(ctx context.Context, missionID, childID uuid.UUID) (*models.MissionAssignment, error) {
	var a models.MissionAssignment
	err := r.pool.QueryRow(ctx, `
		SELECT mission_id, child_id, streak FROM mission_assignments
		WHERE mission_id = $1 AND child_id = $2
	`, missionID, childID).Scan(&a.MissionID, &a.ChildID, &a.Streak)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *Repository) SetStreak(ctx context.Context, missionID, childID uuid.UUID, streak int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE mission_assignments SET streak = $3 WHERE mission_id = $1 AND child_id = $2
	`, missionID, childID, streak)
	return err
}

// IncrementStreakTx bumps the streak inside a transaction and returns the
// new value.
func (r *Repository) IncrementStreakTx(ctx context.Context, tx pgx.Tx, missionID, childID uuid.UUID) (int, error) {
	var streak int
	err := tx.QueryRow(ctx, `
		UPDATE mission_assignments SET streak = streak + 1
		WHERE mission_id = $1 AND child_id = $2
		RETURNING streak
	`, missionID, childID).Scan(&streak)
	return streak, err
}

func (r *Repository) CreateInstance(ctx context.Context, inst *models.MissionInstance) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO mission_instances (id, mission_id, child_id, period_key, state, streak_at_creation)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, inst.ID, inst.MissionID, inst.ChildID, inst.PeriodKey, inst.State, inst.StreakAtCreation).Scan(&inst.CreatedAt)
}

func (r *Repository) GetInstance(ctx context.Context, id uuid.UUID) (*models.MissionInstance, error) {
	return r.scanInstance(r.pool.QueryRow(ctx, `
		SELECT id, mission_id, child_id, period_key, state, streak_at_creation, proof_url, reject_reason, created_at, resolved_at
		FROM mission_instances WHERE id = $1
	`, id))
}

// InstanceForPeriod returns nil when no instance exists for the period.
func (r *Repository) InstanceForPeriod(ctx context.Context, missionID, childID uuid.UUID, periodKey string) (*models.MissionInstance, error) {
	inst, err := r.scanInstance(r.pool.QueryRow(ctx, `
		SELECT id, mission_id, child_id, period_key, state, streak_at_creation, proof_url, reject_reason, created_at, resolved_at
		FROM mission_instances WHERE mission_id = $1 AND child_id = $2 AND period_key = $3
	`, missionID, childID, periodKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return inst, err
}

// LatestInstance returns the most recently created instance for the
// (mission, child) pair, or nil when none exists.
func (r *Repository) LatestInstance(ctx context.Context, missionID, childID uuid.UUID) (*models.MissionInstance, error) {
	inst, err := r.scanInstance(r.pool.QueryRow(ctx, `
		SELECT id, mission_id, child_id, period_key, state, streak_at_creation, proof_url, reject_reason, created_at, resolved_at
		FROM mission_instances WHERE mission_id = $1 AND child_id = $2
		ORDER BY created_at DESC LIMIT 1
	`, missionID, childID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return inst, err
}

func (r *Repository) ListInstancesByChild(ctx context.Context, childID uuid.UUID) ([]*models.MissionInstance, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, mission_id, child_id, period_key, state, streak_at_creation, proof_url, reject_reason, created_at, resolved_at
		FROM mission_instances WHERE child_id = $1 ORDER BY created_at DESC
	`, childID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.MissionInstance
	for rows.Next() {
		var i models.MissionInstance
		if err := rows.Scan(&i.ID, &i.MissionID, &i.ChildID, &i.PeriodKey, &i.State, &i.StreakAtCreation, &i.ProofURL, &i.RejectReason, &i.CreatedAt, &i.ResolvedAt); err != nil {
			return nil, err
		}
		list = append(list, &i)
	}
	return list, rows.Err()
}

func (r *Repository) scanInstance(row pgx.Row) (*models.MissionInstance, error) {
	var i models.MissionInstance
	err := row.Scan(&i.ID, &i.MissionID, &i.ChildID, &i.PeriodKey, &i.State, &i.StreakAtCreation, &i.ProofURL, &i.RejectReason, &i.CreatedAt, &i.ResolvedAt)
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// ActivateInstance performs the pending -> active transition. Returns
// false when the instance was not pending.
func (r *Repository) ActivateInstance(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE mission_instances SET state = $2 WHERE id = $1 AND state = $3
	`, id, models.InstanceStateActive, models.InstanceStatePending)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// MarkSubmitted performs active/rejected -> submitted atomically; a
// rejected instance may be resubmitted while the mission stays eligible.
func (r *Repository) MarkSubmitted(ctx context.Context, id uuid.UUID, proofURL *string) (bool, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE mission_instances SET state = $2, proof_url = $3, reject_reason = NULL
		WHERE id = $1 AND state IN ($4, $5)
	`, id, models.InstanceStateSubmitted, proofURL, models.InstanceStateActive, models.InstanceStateRejected)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// MarkValidatedTx performs submitted -> validated inside the caller's
// transaction. The conditional UPDATE is what makes double validation a
// no-op: the second caller sees zero rows affected.
func (r *Repository) MarkValidatedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	res, err := tx.Exec(ctx, `
		UPDATE mission_instances SET state = $2, resolved_at = now()
		WHERE id = $1 AND state = $3
	`, id, models.InstanceStateValidated, models.InstanceStateSubmitted)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (r *Repository) MarkRejected(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE mission_instances SET state = $2, reject_reason = $3, resolved_at = now()
		WHERE id = $1 AND state = $4
	`, id, models.InstanceStateRejected, reason, models.InstanceStateSubmitted)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (r *Repository) MarkExpired(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE mission_instances SET state = $2, resolved_at = now()
		WHERE id = $1 AND state IN ($3, $4, $5)
	`, id, models.InstanceStateExpired, models.InstanceStatePending, models.InstanceStateActive, models.InstanceStateSubmitted)
	return err
}

// ExpireOverdue marks unresolved instances of elapsed periods expired.
// Period keys are zero-padded, so lexical comparison is chronological.
func (r *Repository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.pool.Exec(ctx, `
		UPDATE mission_instances mi SET state = $1, resolved_at = now()
		FROM missions m
		WHERE m.id = mi.mission_id
		  AND mi.state IN ($2, $3, $4)
		  AND ((m.recurrence = 'daily'   AND mi.period_key < $5)
		    OR (m.recurrence = 'weekly'  AND mi.period_key < $6)
		    OR (m.recurrence = 'monthly' AND mi.period_key < $7))
	`, models.InstanceStateExpired,
		models.InstanceStatePending, models.InstanceStateActive, models.InstanceStateSubmitted,
		PeriodKey(models.RecurrenceDaily, now),
		PeriodKey(models.RecurrenceWeekly, now),
		PeriodKey(models.RecurrenceMonthly, now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}

// CountPendingSubmissions counts submitted instances awaiting parent
// review across all of a parent's missions.
func (r *Repository) CountPendingSubmissions(ctx context.Context, parentID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM mission_instances mi
		JOIN missions m ON m.id = mi.mission_id
		WHERE m.parent_id = $1 AND mi.state = $2
	`, parentID, models.InstanceStateSubmitted).Scan(&n)
	return n, err
}
