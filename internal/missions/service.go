package missions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/famquest/backend/internal/models"
	"github.com/famquest/backend/internal/session"
)

var (
	// ErrProofRequired is returned by Submit when the mission requires
	// photo proof and none was attached.
	ErrProofRequired = errors.New("photo proof required")

	// ErrAlreadyResolved is returned when validating or rejecting an
	// instance that was already resolved. The ledger is never credited
	// twice.
	ErrAlreadyResolved = errors.New("instance already resolved")

	// ErrInvalidTransition is returned when an operation finds the
	// instance outside its required source state.
	ErrInvalidTransition = errors.New("invalid instance state transition")

	// ErrMissionInactive is returned for child actions on a
	// deactivated mission.
	ErrMissionInactive = errors.New("mission is not active")

	// ErrNotAssigned is returned when the mission is not assigned to
	// the child.
	ErrNotAssigned = errors.New("mission not assigned to child")
)

// Store is the persistence interface the mission state machine needs.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)

	CreateMission(ctx context.Context, m *models.Mission) error
	GetMission(ctx context.Context, id uuid.UUID) (*models.Mission, error)
	UpdateMission(ctx context.Context, m *models.Mission) error
	SetMissionActive(ctx context.Context, id uuid.UUID, active bool) error
	ListMissionsByParent(ctx context.Context, parentID uuid.UUID) ([]*models.Mission, error)
	ListMissionsByChild(ctx context.Context, childID uuid.UUID) ([]*models.Mission, error)

	Assign(ctx context.Context, missionID, childID uuid.UUID) error
	GetAssignment(ctx context.Context, missionID, childID uuid.UUID) (*models.MissionAssignment, error)
	SetStreak(ctx context.Context, missionID, childID uuid.UUID, streak int) error
	IncrementStreakTx(ctx context.Context, tx pgx.Tx, missionID, childID uuid.UUID) (int, error)

	CreateInstance(ctx context.Context, inst *models.MissionInstance) error
	GetInstance(ctx context.Context, id uuid.UUID) (*models.MissionInstance, error)
	InstanceForPeriod(ctx context.Context, missionID, childID uuid.UUID, periodKey string) (*models.MissionInstance, error)
	LatestInstance(ctx context.Context, missionID, childID uuid.UUID) (*models.MissionInstance, error)
	ListInstancesByChild(ctx context.Context, childID uuid.UUID) ([]*models.MissionInstance, error)

	ActivateInstance(ctx context.Context, id uuid.UUID) (bool, error)
	MarkSubmitted(ctx context.Context, id uuid.UUID, proofURL *string) (bool, error)
	MarkValidatedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
	MarkRejected(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	MarkExpired(ctx context.Context, id uuid.UUID) error
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// LedgerService is the slice of the points ledger the state machine uses.
type LedgerService interface {
	Credit(ctx context.Context, tx pgx.Tx, childID uuid.UUID, amount int, reason, sourceType string, sourceID *uuid.UUID) (*models.PointsTransaction, error)
}

type Service interface {
	CreateMission(ctx context.Context, parentID uuid.UUID, m *models.Mission, childIDs []uuid.UUID) (*models.Mission, error)
	UpdateMission(ctx context.Context, parentID uuid.UUID, m *models.Mission) error
	DeactivateMission(ctx context.Context, parentID, missionID uuid.UUID) error
	ListByParent(ctx context.Context, parentID uuid.UUID) ([]*models.Mission, error)
	ListForChild(ctx context.Context, childID uuid.UUID) ([]*models.Mission, error)
	ListInstances(ctx context.Context, childID uuid.UUID) ([]*models.MissionInstance, error)

	CurrentInstance(ctx context.Context, missionID, childID uuid.UUID) (*models.MissionInstance, error)
	Submit(ctx context.Context, childID, instanceID uuid.UUID, proofURL *string) (*models.MissionInstance, error)
	Validate(ctx context.Context, parentID, instanceID uuid.UUID) (*models.MissionInstance, error)
	Reject(ctx context.Context, parentID, instanceID uuid.UUID, reason string) (*models.MissionInstance, error)

	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

type service struct {
	store    Store
	ledger   LedgerService
	sessions *session.Manager
	now      func() time.Time
}

// NewService creates the mission lifecycle service. now is the clock;
// pass time.Now outside tests.
func NewService(store Store, ledger LedgerService, sessions *session.Manager, now func() time.Time) Service {
	if now == nil {
		now = time.Now
	}
	return &service{store: store, ledger: ledger, sessions: sessions, now: now}
}

var _ Service = (*service)(nil)

func (s *service) CreateMission(ctx context.Context, parentID uuid.UUID, m *models.Mission, childIDs []uuid.UUID) (*models.Mission, error) {
	if m.PointsReward <= 0 {
		return nil, errors.New("points reward must be positive")
	}
	switch m.Recurrence {
	case models.RecurrenceNone, models.RecurrenceDaily, models.RecurrenceWeekly, models.RecurrenceMonthly:
	default:
		return nil, errors.New("unknown recurrence")
	}
	m.ID = uuid.New()
	m.ParentID = parentID
	m.Active = true
	if err := s.store.CreateMission(ctx, m); err != nil {
		return nil, err
	}
	for _, childID := range childIDs {
		if err := s.store.Assign(ctx, m.ID, childID); err != nil {
			return nil, err
		}
		// One-shot missions get their single instance at assignment
		// time; recurring missions create instances lazily per period.
		if m.Recurrence == models.RecurrenceNone {
			inst := &models.MissionInstance{
				ID:        uuid.New(),
				MissionID: m.ID,
				ChildID:   childID,
				PeriodKey: "",
				State:     models.InstanceStatePending,
			}
			if err := s.store.CreateInstance(ctx, inst); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (s *service) UpdateMission(ctx context.Context, parentID uuid.UUID, m *models.Mission) error {
	existing, err := s.store.GetMission(ctx, m.ID)
	if err != nil {
		return err
	}
	if existing.ParentID != parentID {
		return pgx.ErrNoRows
	}
	if m.PointsReward <= 0 {
		return errors.New("points reward must be positive")
	}
	return s.store.UpdateMission(ctx, m)
}

// DeactivateMission soft-deletes: the mission stops producing instances
// but its history and ledger provenance stay intact.
func (s *service) DeactivateMission(ctx context.Context, parentID, missionID uuid.UUID) error {
	m, err := s.store.GetMission(ctx, missionID)
	if err != nil {
		return err
	}
	if m.ParentID != parentID {
		return pgx.ErrNoRows
	}
	return s.store.SetMissionActive(ctx, missionID, false)
}

func (s *service) ListByParent(ctx context.Context, parentID uuid.UUID) ([]*models.Mission, error) {
	return s.store.ListMissionsByParent(ctx, parentID)
}

// ListForChild returns the child's active missions, materializing the
// current period's instance for each as a side effect so streak and
// expiry bookkeeping happen on view.
func (s *service) ListForChild(ctx context.Context, childID uuid.UUID) ([]*models.Mission, error) {
	list, err := s.store.ListMissionsByChild(ctx, childID)
	if err != nil {
		return nil, err
	}
	for _, m := range list {
		if _, err := s.ensureInstance(ctx, m, childID); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (s *service) ListInstances(ctx context.Context, childID uuid.UUID) ([]*models.MissionInstance, error) {
	return s.store.ListInstancesByChild(ctx, childID)
}

// CurrentInstance returns the instance for the current period, creating
// it lazily for recurring missions.
func (s *service) CurrentInstance(ctx context.Context, missionID, childID uuid.UUID) (*models.MissionInstance, error) {
	m, err := s.store.GetMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	return s.ensureInstance(ctx, m, childID)
}

// ensureInstance implements lazy per-period instance creation and the
// streak rules: a new period whose predecessor was validated continues
// the streak; a predecessor left unresolved (or expired) resets it.
func (s *service) ensureInstance(ctx context.Context, m *models.Mission, childID uuid.UUID) (*models.MissionInstance, error) {
	assignment, err := s.store.GetAssignment(ctx, m.ID, childID)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, ErrNotAssigned
	}

	if m.Recurrence == models.RecurrenceNone {
		inst, err := s.store.LatestInstance(ctx, m.ID, childID)
		if err != nil {
			return nil, err
		}
		if inst == nil {
			inst = &models.MissionInstance{
				ID:        uuid.New(),
				MissionID: m.ID,
				ChildID:   childID,
				State:     models.InstanceStatePending,
			}
			if err := s.store.CreateInstance(ctx, inst); err != nil {
				return nil, err
			}
		}
		if inst.State == models.InstanceStatePending && m.Active {
			if ok, err := s.store.ActivateInstance(ctx, inst.ID); err != nil {
				return nil, err
			} else if ok {
				inst.State = models.InstanceStateActive
			}
		}
		return inst, nil
	}

	now := s.now()
	pk := PeriodKey(m.Recurrence, now)
	inst, err := s.store.InstanceForPeriod(ctx, m.ID, childID, pk)
	if err != nil {
		return nil, err
	}
	if inst != nil {
		return inst, nil
	}
	if !m.Active {
		return nil, ErrMissionInactive
	}

	prev, err := s.store.LatestInstance(ctx, m.ID, childID)
	if err != nil {
		return nil, err
	}
	streak := assignment.Streak
	if prev != nil {
		unresolved := prev.State == models.InstanceStatePending ||
			prev.State == models.InstanceStateActive ||
			prev.State == models.InstanceStateSubmitted
		if unresolved {
			if err := s.store.MarkExpired(ctx, prev.ID); err != nil {
				return nil, err
			}
		}
		contiguous := prev.State == models.InstanceStateValidated &&
			prev.PeriodKey == PreviousPeriodKey(m.Recurrence, now)
		if !contiguous {
			streak = 0
			if err := s.store.SetStreak(ctx, m.ID, childID, 0); err != nil {
				return nil, err
			}
		}
	}

	inst = &models.MissionInstance{
		ID:               uuid.New(),
		MissionID:        m.ID,
		ChildID:          childID,
		PeriodKey:        pk,
		State:            models.InstanceStateActive,
		StreakAtCreation: streak,
	}
	if err := s.store.CreateInstance(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// Submit is child-initiated: active (or rejected, for a retry) moves to
// submitted. Photo-proof missions require an attachment.
func (s *service) Submit(ctx context.Context, childID, instanceID uuid.UUID, proofURL *string) (*models.MissionInstance, error) {
	inst, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.ChildID != childID {
		return nil, pgx.ErrNoRows
	}
	m, err := s.store.GetMission(ctx, inst.MissionID)
	if err != nil {
		return nil, err
	}
	if !m.Active {
		return nil, ErrMissionInactive
	}
	if m.PhotoProofRequired && (proofURL == nil || *proofURL == "") {
		return nil, ErrProofRequired
	}
	if inst.State == models.InstanceStatePending {
		if _, err := s.store.ActivateInstance(ctx, inst.ID); err != nil {
			return nil, err
		}
	}
	ok, err := s.store.MarkSubmitted(ctx, inst.ID, proofURL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.classifyTransition(ctx, inst.ID)
	}
	return s.store.GetInstance(ctx, inst.ID)
}

// Validate is parent-initiated and grace-gated. The submitted ->
// validated transition and the ledger credit commit atomically; a second
// validate sees zero rows affected and never credits twice.
func (s *service) Validate(ctx context.Context, parentID, instanceID uuid.UUID) (*models.MissionInstance, error) {
	if err := s.sessions.Require(parentID); err != nil {
		return nil, err
	}
	inst, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	m, err := s.store.GetMission(ctx, inst.MissionID)
	if err != nil {
		return nil, err
	}
	if m.ParentID != parentID {
		return nil, pgx.ErrNoRows
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ok, err := s.store.MarkValidatedTx(ctx, tx, inst.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.classifyTransition(ctx, inst.ID)
	}
	instID := inst.ID
	if _, err := s.ledger.Credit(ctx, tx, inst.ChildID, m.PointsReward, m.Title, models.PointsSourceMission, &instID); err != nil {
		return nil, err
	}
	if _, err := s.store.IncrementStreakTx(ctx, tx, m.ID, inst.ChildID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s.store.GetInstance(ctx, inst.ID)
}

// Reject is parent-initiated and grace-gated. No ledger effect.
func (s *service) Reject(ctx context.Context, parentID, instanceID uuid.UUID, reason string) (*models.MissionInstance, error) {
	if err := s.sessions.Require(parentID); err != nil {
		return nil, err
	}
	inst, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	m, err := s.store.GetMission(ctx, inst.MissionID)
	if err != nil {
		return nil, err
	}
	if m.ParentID != parentID {
		return nil, pgx.ErrNoRows
	}
	ok, err := s.store.MarkRejected(ctx, inst.ID, reason)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.classifyTransition(ctx, inst.ID)
	}
	return s.store.GetInstance(ctx, inst.ID)
}

func (s *service) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	return s.store.ExpireOverdue(ctx, now)
}

// classifyTransition distinguishes "already resolved" from other illegal
// source states after a conditional update affected zero rows.
func (s *service) classifyTransition(ctx context.Context, instanceID uuid.UUID) error {
	inst, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return ErrInvalidTransition
	}
	switch inst.State {
	case models.InstanceStateValidated, models.InstanceStateRejected, models.InstanceStateExpired:
		return ErrAlreadyResolved
	default:
		return ErrInvalidTransition
	}
}
