// Package dates provides calendar-day helpers for the "YYYY-MM-DD" keys used
// throughout Daybook. Date strings are calendar days, never UTC instants, so
// all arithmetic works on day components and is immune to timezone and DST
// boundaries.
package dates

import (
	"fmt"
	"time"
)

// Layout is the canonical date key format.
const Layout = "2006-01-02"

// Parse validates a date key and returns its calendar day anchored at UTC
// midnight. The UTC anchor is an arithmetic convenience only.
func Parse(s string) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("dates: invalid date %q: %w", s, err)
	}
	return t, nil
}

// Valid reports whether s is a well-formed date key.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Format returns the date key for t's calendar day in t's location.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// Today returns today's date key in the given location.
func Today(loc *time.Location) string {
	return time.Now().In(loc).Format(Layout)
}

// DayDistance returns the absolute distance in calendar days between two
// date keys. Invalid inputs return an error.
func DayDistance(a, b string) (int, error) {
	ta, err := Parse(a)
	if err != nil {
		return 0, err
	}
	tb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	d := int(ta.Sub(tb) / (24 * time.Hour))
	if d < 0 {
		d = -d
	}
	return d, nil
}

// NearestDate returns the candidate closest to target by absolute day
// distance. Ties keep the first-encountered candidate. Malformed candidates
// are skipped; an empty or fully malformed set returns ok=false.
func NearestDate(target string, candidates []string) (string, bool) {
	tt, err := Parse(target)
	if err != nil {
		return "", false
	}
	var (
		best     string
		bestDiff time.Duration
		found    bool
	)
	for _, c := range candidates {
		ct, err := Parse(c)
		if err != nil {
			continue
		}
		diff := tt.Sub(ct)
		if diff < 0 {
			diff = -diff
		}
		if !found || diff < bestDiff {
			best, bestDiff, found = c, diff, true
		}
	}
	return best, found
}
