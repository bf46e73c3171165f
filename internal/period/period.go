// Package period derives the active billing window for a group from its
// policy and the current time. Periods are never persisted; every caller
// recomputes them, so they cannot drift when a policy changes.
package period

import (
	"time"

	policydomain "github.com/duekeeper/duekeeper/internal/policy/domain"
)

const day = 24 * time.Hour

// Period is the active billing window. Start and End are inclusive; End is
// also the due instant (end of the due day, UTC).
type Period struct {
	Start   time.Time
	End     time.Time
	DueAt   time.Time
	Overdue bool

	// DaysUntilDue is whole days until DueAt; 0 when due today or overdue.
	DaysUntilDue int
	// DaysOverdue is whole days past DueAt, at least 1 once overdue.
	DaysOverdue int
}

// Key identifies the period for ledger bookkeeping and reminder markers.
func (p Period) Key() string {
	return p.Start.UTC().Format("2006-01-02")
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(p.Start) && !t.After(p.End)
}

// Compute derives the active period for policy at now. It is pure and
// deterministic: the same (policy, now) always yields the same period, so it
// is safe to call on every tick. Unknown cycle kinds fall back to monthly;
// policy validation rejects them before they are stored.
func Compute(policy policydomain.BillingPolicy, now time.Time) Period {
	now = now.UTC()

	var dueDay, prevDueDay time.Time
	switch policy.CycleKind {
	case policydomain.CycleKindWeekly:
		dueDay = weeklyDueDay(now, policy.DueWeekday)
		prevDueDay = dueDay.AddDate(0, 0, -7)
	default:
		dueDay = monthlyDueDay(now.Year(), now.Month(), policy.DueDayOfMonth)
		prevYear, prevMonth := previousMonth(now.Year(), now.Month())
		prevDueDay = monthlyDueDay(prevYear, prevMonth, policy.DueDayOfMonth)
	}

	dueAt := endOfDay(dueDay)
	p := Period{
		Start: startOfDay(prevDueDay.AddDate(0, 0, 1)),
		End:   dueAt,
		DueAt: dueAt,
	}

	if now.After(dueAt) {
		p.Overdue = true
		overdue := int(now.Sub(dueAt) / day)
		if overdue < 1 {
			overdue = 1
		}
		p.DaysOverdue = overdue
		return p
	}

	until := int(dueAt.Sub(now) / day)
	if until < 0 {
		until = 0
	}
	p.DaysUntilDue = until
	return p
}

// monthlyDueDay resolves the due date inside (year, month), clamping the
// configured day to the month's length: due day 31 in February is the 28th,
// never an invalid date or a spill into the next month.
func monthlyDueDay(year int, month time.Month, dueDay int) time.Time {
	if dueDay < 1 {
		dueDay = 1
	}
	if last := daysInMonth(year, month); dueDay > last {
		dueDay = last
	}
	return time.Date(year, month, dueDay, 0, 0, 0, 0, time.UTC)
}

// weeklyDueDay resolves the due date inside the ISO week containing now.
func weeklyDueDay(now time.Time, isoWeekday int) time.Time {
	if isoWeekday < 1 {
		isoWeekday = 1
	}
	if isoWeekday > 7 {
		isoWeekday = 7
	}
	current := int(now.Weekday())
	if current == 0 {
		current = 7 // Sunday
	}
	base := startOfDay(now)
	return base.AddDate(0, 0, isoWeekday-current)
}

func previousMonth(year int, month time.Month) (int, time.Month) {
	if month == time.January {
		return year - 1, time.December
	}
	return year, month - 1
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func endOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
}
