package localstate

import "testing"

func TestSelectedDateRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if got := s.SelectedDate(); got != "" {
		t.Errorf("fresh store selected date = %q", got)
	}
	if err := s.SetSelectedDate("2024-03-01"); err != nil {
		t.Fatal(err)
	}
	if got := s.SelectedDate(); got != "2024-03-01" {
		t.Errorf("selected date = %q", got)
	}
}

func TestSubscriptionIDLifecycle(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	// Empty ids are never stored.
	if err := s.SetSubscriptionID(""); err != nil {
		t.Fatal(err)
	}
	if got := s.SubscriptionID(); got != "" {
		t.Errorf("id after empty set = %q", got)
	}

	if err := s.SetSubscriptionID("sub-42"); err != nil {
		t.Fatal(err)
	}
	if got := s.SubscriptionID(); got != "sub-42" {
		t.Errorf("id = %q", got)
	}

	if err := s.ClearSubscriptionID(); err != nil {
		t.Fatal(err)
	}
	if got := s.SubscriptionID(); got != "" {
		t.Errorf("id after clear = %q", got)
	}
	// Clearing twice is a no-op.
	if err := s.ClearSubscriptionID(); err != nil {
		t.Fatal(err)
	}
}

func TestReminderMarkers(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if s.ReminderSent("2024-03-01", "18:00") {
		t.Error("fresh marker should be unset")
	}
	if err := s.MarkReminderSent("2024-03-01", "18:00"); err != nil {
		t.Fatal(err)
	}
	if !s.ReminderSent("2024-03-01", "18:00") {
		t.Error("marker should persist")
	}
	// Other slots and dates stay independent.
	if s.ReminderSent("2024-03-01", "21:00") || s.ReminderSent("2024-03-02", "18:00") {
		t.Error("markers leaked across slot or date")
	}
}

func TestReopenKeepsState(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.MarkReminderSent("2024-03-01", "21:00"); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !s2.ReminderSent("2024-03-01", "21:00") {
		t.Error("marker lost across reopen")
	}
}
