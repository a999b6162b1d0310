package models

import (
	"time"

	"github.com/google/uuid"
)

// Age group enum, youngest first. Reward items may carry a minimum group.
const (
	AgeGroupToddler = "toddler"
	AgeGroupKid     = "kid"
	AgeGroupTeen    = "teen"
)

// ageGroupRank orders age groups for restriction checks. Unknown groups
// rank lowest.
var ageGroupRank = map[string]int{
	AgeGroupToddler: 0,
	AgeGroupKid:     1,
	AgeGroupTeen:    2,
}

// AgeGroupAtLeast reports whether group meets the minimum group.
func AgeGroupAtLeast(group, minimum string) bool {
	return ageGroupRank[group] >= ageGroupRank[minimum]
}

type Child struct {
	ID          uuid.UUID `json:"id"`
	ParentID    uuid.UUID `json:"parent_id"`
	DisplayName string    `json:"display_name"`
	AgeGroup    string    `json:"age_group"`
	CreatedAt   time.Time `json:"created_at"`

	// Derived from the points ledger, not stored on the child row.
	Balance int `json:"balance"`
	Level   int `json:"level"`
}

// PointsPerLevel converts lifetime earned points into a level.
const PointsPerLevel = 100

func LevelForLifetime(lifetimeEarned int) int {
	if lifetimeEarned < 0 {
		return 0
	}
	return lifetimeEarned / PointsPerLevel
}
