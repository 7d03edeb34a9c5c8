// Package localstate persists the small client-side state the portal keeps in
// browser storage: the selected date, per-slot reminder markers, and the push
// subscription id. It is backed by a diskv key-value directory so state
// survives restarts.
package localstate

import (
	"fmt"
	"os"
	"strings"

	"github.com/peterbourgon/diskv/v3"
)

const (
	keySelectedDate   = "selected_date"
	keySubscriptionID = "web_push_subscription_id"
)

// Store is a small persistent key-value store. Values are plain strings.
type Store struct {
	d *diskv.Diskv
}

// Open creates a store rooted at the given directory, creating it if needed.
func Open(basePath string) (*Store, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("localstate: ensure base path: %w", err)
	}
	return &Store{d: diskv.New(diskv.Options{
		BasePath:     basePath,
		CacheSizeMax: 64 * 1024,
	})}, nil
}

func (s *Store) read(key string) string {
	val, err := s.d.Read(key)
	if err != nil {
		return ""
	}
	return string(val)
}

// SelectedDate returns the persisted date preference, or "" when unset.
func (s *Store) SelectedDate() string {
	return s.read(keySelectedDate)
}

// SetSelectedDate persists the date preference.
func (s *Store) SetSelectedDate(date string) error {
	return s.d.Write(keySelectedDate, []byte(date))
}

// SubscriptionID returns the stored push subscription id, or "" when unset.
func (s *Store) SubscriptionID() string {
	return s.read(keySubscriptionID)
}

// SetSubscriptionID persists the push subscription id. Empty ids are ignored.
func (s *Store) SetSubscriptionID(id string) error {
	if id == "" {
		return nil
	}
	return s.d.Write(keySubscriptionID, []byte(id))
}

// ClearSubscriptionID removes a stale subscription id.
func (s *Store) ClearSubscriptionID() error {
	if !s.d.Has(keySubscriptionID) {
		return nil
	}
	return s.d.Erase(keySubscriptionID)
}

// reminderKey builds the per-date-per-slot marker key. Slot colons are
// stripped so the key stays a plain file name.
func reminderKey(date, slot string) string {
	return "reminder_sent_" + date + "_" + strings.ReplaceAll(slot, ":", "")
}

// ReminderSent reports whether the slot already fired on the given date.
func (s *Store) ReminderSent(date, slot string) bool {
	return s.read(reminderKey(date, slot)) == "1"
}

// MarkReminderSent records that the slot fired on the given date.
func (s *Store) MarkReminderSent(date, slot string) error {
	return s.d.Write(reminderKey(date, slot), []byte("1"))
}
