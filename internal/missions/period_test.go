package missions

import (
	"testing"
	"time"

	"github.com/famquest/backend/internal/models"
)

func TestPeriodKey(t *testing.T) {
	at := time.Date(2025, 1, 5, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		recurrence string
		want       string
	}{
		{models.RecurrenceDaily, "2025-01-05"},
		{models.RecurrenceWeekly, "2025-W01"},
		{models.RecurrenceMonthly, "2025-01"},
		{models.RecurrenceNone, ""},
	}
	for _, c := range cases {
		if got := PeriodKey(c.recurrence, at); got != c.want {
			t.Errorf("PeriodKey(%s): got %q, want %q", c.recurrence, got, c.want)
		}
	}
}

func TestPeriodKey_LexicalOrderIsChronological(t *testing.T) {
	// Zero padding matters around single-digit weeks and months.
	early := time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC)
	late := time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC)

	for _, rec := range []string{models.RecurrenceDaily, models.RecurrenceWeekly, models.RecurrenceMonthly} {
		a, b := PeriodKey(rec, early), PeriodKey(rec, late)
		if !(a < b) {
			t.Errorf("%s: %q should sort before %q", rec, a, b)
		}
	}
}

func TestPreviousPeriodKey(t *testing.T) {
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	if got := PreviousPeriodKey(models.RecurrenceDaily, at); got != "2025-02-28" {
		t.Errorf("daily: got %q", got)
	}
	if got := PreviousPeriodKey(models.RecurrenceMonthly, at); got != "2025-02" {
		t.Errorf("monthly: got %q", got)
	}

	// Week boundaries roll over the ISO year.
	jan1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := PreviousPeriodKey(models.RecurrenceWeekly, jan1); got != PeriodKey(models.RecurrenceWeekly, jan1.AddDate(0, 0, -7)) {
		t.Errorf("weekly: got %q", got)
	}
}
