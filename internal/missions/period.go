package missions

import (
	"fmt"
	"time"

	"github.com/famquest/backend/internal/models"
)

// PeriodKey identifies one occurrence window of a recurring mission.
// Keys are zero-padded so lexical order matches chronological order:
// daily "2006-01-02", weekly "2006-W02", monthly "2006-01". One-shot
// missions use the empty key.
func PeriodKey(recurrence string, at time.Time) string {
	switch recurrence {
	case models.RecurrenceDaily:
		return at.Format("2006-01-02")
	case models.RecurrenceWeekly:
		year, week := at.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case models.RecurrenceMonthly:
		return at.Format("2006-01")
	default:
		return ""
	}
}

// PreviousPeriodKey returns the key of the period immediately before at.
func PreviousPeriodKey(recurrence string, at time.Time) string {
	switch recurrence {
	case models.RecurrenceDaily:
		return PeriodKey(recurrence, at.AddDate(0, 0, -1))
	case models.RecurrenceWeekly:
		return PeriodKey(recurrence, at.AddDate(0, 0, -7))
	case models.RecurrenceMonthly:
		return PeriodKey(recurrence, at.AddDate(0, -1, 0))
	default:
		return ""
	}
}
