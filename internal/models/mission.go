package models

import (
	"time"

	"github.com/google/uuid"
)

// Mission recurrence enums.
const (
	RecurrenceNone    = "none"
	RecurrenceDaily   = "daily"
	RecurrenceWeekly  = "weekly"
	RecurrenceMonthly = "monthly"
)

// Mission instance state enums.
const (
	InstanceStatePending   = "pending"
	InstanceStateActive    = "active"
	InstanceStateSubmitted = "submitted"
	InstanceStateValidated = "validated"
	InstanceStateRejected  = "rejected"
	InstanceStateExpired   = "expired"
)

type Mission struct {
	ID                 uuid.UUID  `json:"id"`
	ParentID           uuid.UUID  `json:"parent_id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	PointsReward       int        `json:"points_reward"`
	Recurrence         string     `json:"recurrence"`
	Active             bool       `json:"active"`
	DueDate            *time.Time `json:"due_date,omitempty"`
	PhotoProofRequired bool       `json:"photo_proof_required"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// MissionAssignment links a mission to a child and carries the child's
// current streak for that mission.
type MissionAssignment struct {
	MissionID uuid.UUID `json:"mission_id"`
	ChildID   uuid.UUID `json:"child_id"`
	Streak    int       `json:"streak"`
}

// MissionInstance is one occurrence of a mission for one child in one
// period. recurrence=none missions have exactly one instance with an
// empty period key.
type MissionInstance struct {
	ID               uuid.UUID  `json:"id"`
	MissionID        uuid.UUID  `json:"mission_id"`
	ChildID          uuid.UUID  `json:"child_id"`
	PeriodKey        string     `json:"period_key"`
	State            string     `json:"state"`
	StreakAtCreation int        `json:"streak_at_creation"`
	ProofURL         *string    `json:"proof_url,omitempty"`
	RejectReason     *string    `json:"reject_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}
