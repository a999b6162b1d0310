package punishments

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
	// ErrNoLevels is returned when a definition carries an empty
	// escalation ladder.
	ErrNoLevels = errors.New("punishment definition has no escalation levels")

	// ErrAlreadyResolved is returned when lifting an application that
	// is already lifted or expired.
	ErrAlreadyResolved = errors.New("application already resolved")
)

// Store is the persistence interface for the punishment engine.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)

	CreateDefinition(ctx context.Context, d *models.PunishmentDefinition) error
	GetDefinition(ctx context.Context, id uuid.UUID) (*models.PunishmentDefinition, error)
	ListDefinitionsByParent(ctx context.Context, parentID uuid.UUID) ([]*models.PunishmentDefinition, error)

	CreateApplicationTx(ctx context.Context, tx pgx.Tx, a *models.PunishmentApplication) error
	GetApplication(ctx context.Context, id uuid.UUID) (*models.PunishmentApplication, error)
	UnresolvedApplication(ctx context.Context, definitionID, childID uuid.UUID, now time.Time) (*models.PunishmentApplication, error)
	EscalateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, levelIndex int, expiresAt *time.Time) (bool, error)
	MarkLifted(ctx context.Context, id uuid.UUID, now time.Time, reason string) (bool, error)
	ListUnresolvedByChild(ctx context.Context, childID uuid.UUID, now time.Time) ([]*models.PunishmentApplication, error)
}

// LedgerService is the slice of the points ledger the engine uses.
// Deductions are clamped: a punishment may drive the balance to zero but
// never below, and never fails for lack of points.
type LedgerService interface {
	DebitUpTo(ctx context.Context, tx pgx.Tx, childID uuid.UUID, amount int, reason, sourceType string, sourceID *uuid.UUID) (int, error)
}

type Service interface {
	CreateDefinition(ctx context.Context, parentID uuid.UUID, d *models.PunishmentDefinition) (*models.PunishmentDefinition, error)
	ListDefinitions(ctx context.Context, parentID uuid.UUID) ([]*models.PunishmentDefinition, error)

	Apply(ctx context.Context, parentID, definitionID, childID uuid.UUID, reason string) (*models.PunishmentApplication, error)
	Lift(ctx context.Context, parentID, applicationID uuid.UUID, reason string) (*models.PunishmentApplication, error)

	IsChildRestricted(ctx context.Context, childID uuid.UUID) (bool, error)
	ActiveRestrictions(ctx context.Context, childID uuid.UUID) ([]*models.PunishmentApplication, error)
}

type service struct {
	store    Store
	ledger   LedgerService
	sessions *session.Manager
	now      func() time.Time
}

// NewService creates the punishment engine. now is the clock; pass
// time.Now outside tests.
func NewService(store Store, ledger LedgerService, sessions *session.Manager, now func() time.Time) Service {
	if now == nil {
		now = time.Now
	}
	return &service{store: store, ledger: ledger, sessions: sessions, now: now}
}

var _ Service = (*service)(nil)

func (s *service) CreateDefinition(ctx context.Context, parentID uuid.UUID, d *models.PunishmentDefinition) (*models.PunishmentDefinition, error) {
	if len(d.EscalationLevels) == 0 {
		return nil, ErrNoLevels
	}
	for _, lvl := range d.EscalationLevels {
		if lvl.PointsDeduction < 0 || lvl.DurationMinutes < 0 {
			return nil, errors.New("escalation level values must be non-negative")
		}
	}
	d.ID = uuid.New()
	d.ParentID = parentID
	if err := s.store.CreateDefinition(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *service) ListDefinitions(ctx context.Context, parentID uuid.UUID) ([]*models.PunishmentDefinition, error) {
	return s.store.ListDefinitionsByParent(ctx, parentID)
}

// Apply is parent-initiated and grace-gated. When an unresolved
// application already exists for the (definition, child) pair the call
// escalates it one level (capped at the last) instead of creating a
// duplicate; the new level's deduction and duration are (re)applied.
func (s *service) Apply(ctx context.Context, parentID, definitionID, childID uuid.UUID, reason string) (*models.PunishmentApplication, error) {
	if err := s.sessions.Require(parentID); err != nil {
		return nil, err
	}
	def, err := s.store.GetDefinition(ctx, definitionID)
	if err != nil {
		return nil, err
	}
	if def.ParentID != parentID {
		return nil, pgx.ErrNoRows
	}
	if len(def.EscalationLevels) == 0 {
		return nil, ErrNoLevels
	}

	now := s.now()
	existing, err := s.store.UnresolvedApplication(ctx, definitionID, childID, now)
	if err != nil {
		return nil, err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var app *models.PunishmentApplication
	if existing != nil {
		levelIndex := existing.LevelIndex + 1
		if levelIndex > len(def.EscalationLevels)-1 {
			levelIndex = len(def.EscalationLevels) - 1
		}
		level := def.EscalationLevels[levelIndex]
		expiresAt := expiryFor(now, level)
		ok, err := s.store.EscalateTx(ctx, tx, existing.ID, levelIndex, expiresAt)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrAlreadyResolved
		}
		id := existing.ID
		if _, err := s.ledger.DebitUpTo(ctx, tx, childID, level.PointsDeduction, def.Title, models.PointsSourcePunishment, &id); err != nil {
			return nil, err
		}
		existing.LevelIndex = levelIndex
		existing.ExpiresAt = expiresAt
		app = existing
	} else {
		level := def.EscalationLevels[0]
		app = &models.PunishmentApplication{
			ID:           uuid.New(),
			DefinitionID: definitionID,
			ChildID:      childID,
			LevelIndex:   0,
			Reason:       reason,
			ExpiresAt:    expiryFor(now, level),
		}
		if err := s.store.CreateApplicationTx(ctx, tx, app); err != nil {
			return nil, err
		}
		id := app.ID
		if _, err := s.ledger.DebitUpTo(ctx, tx, childID, level.PointsDeduction, def.Title, models.PointsSourcePunishment, &id); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return app, nil
}

// Lift is parent-initiated and grace-gated. The deduction already served
// is not refunded.
func (s *service) Lift(ctx context.Context, parentID, applicationID uuid.UUID, reason string) (*models.PunishmentApplication, error) {
	if err := s.sessions.Require(parentID); err != nil {
		return nil, err
	}
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	def, err := s.store.GetDefinition(ctx, app.DefinitionID)
	if err != nil {
		return nil, err
	}
	if def.ParentID != parentID {
		return nil, pgx.ErrNoRows
	}
	now := s.now()
	if !app.Unresolved(now) {
		return nil, ErrAlreadyResolved
	}
	ok, err := s.store.MarkLifted(ctx, applicationID, now, reason)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyResolved
	}
	return s.store.GetApplication(ctx, applicationID)
}

func (s *service) IsChildRestricted(ctx context.Context, childID uuid.UUID) (bool, error) {
	list, err := s.store.ListUnresolvedByChild(ctx, childID, s.now())
	if err != nil {
		return false, err
	}
	return len(list) > 0, nil
}

func (s *service) ActiveRestrictions(ctx context.Context, childID uuid.UUID) ([]*models.PunishmentApplication, error) {
	return s.store.ListUnresolvedByChild(ctx, childID, s.now())
}

func expiryFor(now time.Time, level models.EscalationLevel) *time.Time {
	if level.DurationMinutes <= 0 {
		return nil
	}
	t := now.Add(time.Duration(level.DurationMinutes) * time.Minute)
	return &t
}
