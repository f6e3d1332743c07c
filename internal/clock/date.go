package clock

import "time"

// AbsoluteDayForDate parses a "YYYY-MM-DD" date string and returns its
// absolute day number (year*366 + day-of-year), the same scale as
// Calendar.AbsoluteDay. Returns ok=false if dateStr is empty or malformed.
func AbsoluteDayForDate(dateStr string) (day int, ok bool) {
	if dateStr == "" {
		return 0, false
	}
	t, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
	if err != nil {
		return 0, false
	}
	return t.Year()*366 + t.YearDay(), true
}

// NeverRunDay is the sentinel absolute-day value for a program with no
// last_run_date, preserved from the source's own resolution rather than
// invented here. It is deliberately small (not a large negative "-inf") so
// every due-today subtraction against it yields a huge positive gap and
// falls out "due" by the same arithmetic as a real date, with no special
// case required in the recurrence rule.
const NeverRunDay = -1

// AbsoluteDayForDateOrNever is AbsoluteDayForDate with NeverRunDay as the
// fallback for an empty or malformed date, matching the scheduler's
// "−∞ if unset" due-today rule (§4.5).
func AbsoluteDayForDateOrNever(dateStr string) int {
	day, ok := AbsoluteDayForDate(dateStr)
	if !ok {
		return NeverRunDay
	}
	return day
}
