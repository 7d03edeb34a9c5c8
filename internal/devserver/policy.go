package devserver

import (
	"time"

	"github.com/perch/daybook/internal/dates"
)

// EditPolicy controls when a date's diary stops accepting writes.
type EditPolicy string

// Edit policies, from most to least restrictive.
const (
	// EditPolicyTodayOnly allows writing today's diary once, before it is
	// submitted.
	EditPolicyTodayOnly EditPolicy = "today-only"
	// EditPolicyUntilMidnight allows writing and rewriting today's diary
	// until local midnight closes the day.
	EditPolicyUntilMidnight EditPolicy = "until-midnight"
	// EditPolicyUntilSubmitted keeps any unsubmitted day open, today
	// included, and closes a day only once its diary is submitted.
	EditPolicyUntilSubmitted EditPolicy = "until-submitted"
)

// Valid reports whether p names a known policy.
func (p EditPolicy) Valid() bool {
	switch p {
	case EditPolicyTodayOnly, EditPolicyUntilMidnight, EditPolicyUntilSubmitted:
		return true
	}
	return false
}

// Editable reports whether the diary for date accepts writes at the given
// local time. date must be a calendar-day string; a malformed date is never
// editable.
func (p EditPolicy) Editable(date string, submitted bool, now time.Time) bool {
	if !dates.Valid(date) {
		return false
	}
	today := dates.Format(now)
	switch p {
	case EditPolicyTodayOnly:
		return date == today && !submitted
	case EditPolicyUntilMidnight:
		return date == today
	case EditPolicyUntilSubmitted:
		return !submitted && date <= today
	}
	return false
}
