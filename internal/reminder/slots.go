package reminder

import (
	"fmt"
	"sort"
	"time"
)

// ParseSlot validates an "HH:MM" time-of-day slot.
func ParseSlot(slot string) (hour, minute int, err error) {
	var h, m int
	if _, err := fmt.Sscanf(slot, "%2d:%2d", &h, &m); err != nil {
		return 0, 0, fmt.Errorf("reminder: invalid slot %q", slot)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || fmt.Sprintf("%02d:%02d", h, m) != slot {
		return 0, 0, fmt.Errorf("reminder: invalid slot %q", slot)
	}
	return h, m, nil
}

// NormalizeSlots validates, de-duplicates, and sorts a slot list.
func NormalizeSlots(slots []string) ([]string, error) {
	if len(slots) == 0 {
		return nil, fmt.Errorf("reminder: at least one slot is required")
	}
	seen := make(map[string]struct{}, len(slots))
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		if _, _, err := ParseSlot(s); err != nil {
			return nil, err
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// NextSlot returns the slot that fires strictly after now, wrapping to the
// following day when every slot today has passed, and the instant it fires.
// Slots must already be normalized.
func NextSlot(now time.Time, slots []string) (string, time.Time) {
	var (
		bestSlot string
		bestAt   time.Time
	)
	for _, s := range slots {
		h, m, err := ParseSlot(s)
		if err != nil {
			continue
		}
		at := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		if bestAt.IsZero() || at.Before(bestAt) {
			bestSlot, bestAt = s, at
		}
	}
	return bestSlot, bestAt
}
