package calendar

import (
	"fmt"
	"strings"
	"time"
)

// GridSize is the number of cells in a month view: 6 rows of 7 days.
// Short months are still padded to six rows so the view never reflows.
const GridSize = 42

// Day is one cell of the month grid.
type Day struct {
	Date         time.Time `json:"date"`
	CurrentMonth bool      `json:"current_month"`
}

// BuildMonthGrid returns the 42 days shown for the month containing ref.
// The first cell falls on weekStart; days before the 1st come from the
// previous month and the tail is padded with the next month.
func BuildMonthGrid(ref time.Time, weekStart time.Weekday) []Day {
	first := FirstOfMonth(ref)
	loc := first.Location()
	y, m, _ := first.Date()

	lead := (int(first.Weekday()) - int(weekStart) + 7) % 7
	total := DaysIn(y, m)

	days := make([]Day, 0, GridSize)
	for i := lead; i > 0; i-- {
		days = append(days, Day{Date: time.Date(y, m, 1-i, 0, 0, 0, 0, loc)})
	}
	for d := 1; d <= total; d++ {
		days = append(days, Day{Date: time.Date(y, m, d, 0, 0, 0, 0, loc), CurrentMonth: true})
	}
	for d := 1; len(days) < GridSize; d++ {
		days = append(days, Day{Date: time.Date(y, m+1, d, 0, 0, 0, 0, loc)})
	}

	return days
}

// FirstOfMonth truncates t to midnight of the first day of its month.
func FirstOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// DaysIn reports the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// NextMonth moves ref one calendar month forward. The day of month is
// clamped so Jan 31 becomes Feb 28/29 instead of overflowing into March.
func NextMonth(ref time.Time) time.Time {
	return addMonths(ref, 1)
}

// PreviousMonth moves ref one calendar month back, clamping the day.
func PreviousMonth(ref time.Time) time.Time {
	return addMonths(ref, -1)
}

func addMonths(ref time.Time, n int) time.Time {
	y, m, d := ref.Date()
	target := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, ref.Location())
	ty, tm, _ := target.Date()
	if last := DaysIn(ty, tm); d > last {
		d = last
	}
	return time.Date(ty, tm, d, ref.Hour(), ref.Minute(), ref.Second(), ref.Nanosecond(), ref.Location())
}

// SameDay reports whether a and b fall on the same wall-clock calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// StartOfDay truncates t to local midnight.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ParseWeekday accepts full or three letter English weekday names.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

// Rows splits a grid into weeks of seven days.
func Rows(days []Day) [][]Day {
	var rows [][]Day
	for i := 0; i < len(days); i += 7 {
		end := i + 7
		if end > len(days) {
			end = len(days)
		}
		rows = append(rows, days[i:end])
	}
	return rows
}
