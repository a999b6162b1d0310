package models

import (
	"time"

	"github.com/google/uuid"
)

// EscalationLevel is one step in a punishment's severity ladder.
// DurationMinutes 0 means the application never expires on its own.
type EscalationLevel struct {
	PointsDeduction int `json:"points_deduction"`
	DurationMinutes int `json:"duration_minutes"`
}

type PunishmentDefinition struct {
	ID               uuid.UUID         `json:"id"`
	ParentID         uuid.UUID         `json:"parent_id"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	EscalationLevels []EscalationLevel `json:"escalation_levels"`
	CreatedAt        time.Time         `json:"created_at"`
}

type PunishmentApplication struct {
	ID           uuid.UUID  `json:"id"`
	DefinitionID uuid.UUID  `json:"definition_id"`
	ChildID      uuid.UUID  `json:"child_id"`
	LevelIndex   int        `json:"level_index"`
	Reason       string     `json:"reason"`
	AppliedAt    time.Time  `json:"applied_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	LiftedAt     *time.Time `json:"lifted_at,omitempty"`
	LiftReason   *string    `json:"lift_reason,omitempty"`
}

// Unresolved reports whether the application is still in force at now:
// not lifted and not past its expiry.
func (a *PunishmentApplication) Unresolved(now time.Time) bool {
	if a.LiftedAt != nil {
		return false
	}
	if a.ExpiresAt != nil && !now.Before(*a.ExpiresAt) {
		return false
	}
	return true
}
