// Package dates holds the ISO calendar helpers shared by the store, the
// engines and the command executor. All dates are "YYYY-MM-DD" strings in the
// location of the reference time.
package dates

import "time"

// Layout is the ISO-8601 calendar date layout used for every record key.
const Layout = "2006-01-02"

// Format renders t as an ISO date.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// Parse reads an ISO date in the location of ref.
func Parse(date string, ref time.Time) (time.Time, error) {
	return time.ParseInLocation(Layout, date, ref.Location())
}

// Valid reports whether date is a well-formed ISO date.
func Valid(date string) bool {
	_, err := time.Parse(Layout, date)
	return err == nil
}

// StartOfDay truncates t to local midnight.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Today returns the ISO date of now.
func Today(now time.Time) string {
	return Format(now)
}

// WeekStart returns the ISO date of the Monday of the week containing t.
func WeekStart(t time.Time) string {
	day := StartOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return Format(day.AddDate(0, 0, -offset))
}

// Cutoff returns midnight of the day that is days before now.
func Cutoff(now time.Time, days int) time.Time {
	return StartOfDay(now).AddDate(0, 0, -days)
}

// Within reports whether date falls on or after the day that is days before
// now. Unparseable dates are never within a window.
func Within(date string, now time.Time, days int) bool {
	t, err := Parse(date, now)
	if err != nil {
		return false
	}
	return !t.Before(Cutoff(now, days))
}
