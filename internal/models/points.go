package models

import (
	"time"

	"github.com/google/uuid"
)

// Points transaction source_type enums.
const (
	PointsSourceMission    = "mission"
	PointsSourceClaim      = "claim"
	PointsSourceManual     = "manual"
	PointsSourcePunishment = "punishment"
	PointsSourceRefund     = "refund"
)

// PointsAccount caches the fold of all transactions for one child.
// Balance never goes below zero.
type PointsAccount struct {
	ChildID        uuid.UUID `json:"child_id"`
	Balance        int       `json:"balance"`
	LifetimeEarned int       `json:"lifetime_earned"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PointsTransaction is append-only. Corrections are new offsetting
// transactions, never edits or deletes.
type PointsTransaction struct {
	ID           uuid.UUID  `json:"id"`
	ChildID      uuid.UUID  `json:"child_id"`
	Delta        int        `json:"delta"`
	Reason       string     `json:"reason"`
	SourceType   string     `json:"source_type"`
	SourceID     *uuid.UUID `json:"source_id,omitempty"`
	BalanceAfter int        `json:"balance_after"`
	CreatedAt    time.Time  `json:"created_at"`
}
