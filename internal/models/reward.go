package models

import (
	"time"

	"github.com/google/uuid"
)

// Reward claim state enums.
const (
	ClaimStatePending  = "pending"
	ClaimStateApproved = "approved"
	ClaimStateRejected = "rejected"
)

// RewardItem is a catalog entry. QuantityRemaining nil means unlimited
// stock. AgeRestriction, when set, is the minimum age group.
type RewardItem struct {
	ID                uuid.UUID `json:"id"`
	ParentID          uuid.UUID `json:"parent_id"`
	Title             string    `json:"title"`
	PointsCost        int       `json:"points_cost"`
	QuantityRemaining *int      `json:"quantity_remaining,omitempty"`
	Active            bool      `json:"active"`
	AgeRestriction    *string   `json:"age_restriction,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// RewardClaim snapshots the item's cost at claim time so a later price
// change never alters the refund.
type RewardClaim struct {
	ID           uuid.UUID  `json:"id"`
	ItemID       uuid.UUID  `json:"item_id"`
	ChildID      uuid.UUID  `json:"child_id"`
	PointsCost   int        `json:"points_cost"`
	State        string     `json:"state"`
	RejectReason *string    `json:"reject_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}
