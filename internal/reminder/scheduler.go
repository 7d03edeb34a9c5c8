// Package reminder delivers the daily diary reminders. A gocron scheduler
// fires at fixed time-of-day slots; each firing is suppressed when
// notifications are not permitted, the slot already fired today, or today's
// diary is already submitted. Failures are logged and degrade to "no
// reminder this cycle"; they never crash the host.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/perch/daybook/internal/apperr"
	"github.com/perch/daybook/internal/dates"
	"github.com/perch/daybook/internal/localstate"
	"github.com/perch/daybook/internal/recordstore"
)

// PermissionFunc reports whether the caregiver granted notification
// permission. The zero value (nil) means granted.
type PermissionFunc func() bool

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the scheduler clock. Tests pass a clockwork fake.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// WithPermission installs the notification permission source.
func WithPermission(fn PermissionFunc) Option {
	return func(s *Scheduler) { s.permission = fn }
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// Scheduler owns the reminder timer loop.
type Scheduler struct {
	store      recordstore.Store
	state      *localstate.Store
	notifier   Notifier
	slots      []string
	loc        *time.Location
	clock      clockwork.Clock
	permission PermissionFunc
	logger     *slog.Logger

	mu    sync.Mutex
	sched gocron.Scheduler
}

// New creates a stopped scheduler for the given daily slots.
func New(store recordstore.Store, state *localstate.Store, notifier Notifier, slots []string, loc *time.Location, opts ...Option) (*Scheduler, error) {
	normalized, err := NormalizeSlots(slots)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		store:    store,
		state:    state,
		notifier: notifier,
		slots:    normalized,
		loc:      loc,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start registers one daily job per slot and starts the timer loop. Calling
// Start on a running scheduler is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched != nil {
		return nil
	}

	sched, err := gocron.NewScheduler(
		gocron.WithClock(s.clock),
		gocron.WithLocation(s.loc),
	)
	if err != nil {
		return fmt.Errorf("reminder: new scheduler: %w", err)
	}

	for _, slot := range s.slots {
		h, m, _ := ParseSlot(slot)
		slot := slot
		_, err := sched.NewJob(
			gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(h), uint(m), 0))),
			gocron.NewTask(func() { s.runSlot(context.Background(), slot) }),
		)
		if err != nil {
			_ = sched.Shutdown()
			return fmt.Errorf("reminder: register slot %s: %w", slot, err)
		}
	}

	sched.Start()
	s.sched = sched

	nextSlot, nextAt := NextSlot(s.clock.Now().In(s.loc), s.slots)
	s.logger.Info("reminder scheduler started",
		slog.String("slots", fmt.Sprint(s.slots)),
		slog.String("next_slot", nextSlot),
		slog.Time("next_at", nextAt))
	return nil
}

// Stop shuts the timer loop down, releasing the pending wake-up. Safe to
// call on a stopped scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched == nil {
		return nil
	}
	err := s.sched.Shutdown()
	s.sched = nil
	s.logger.Info("reminder scheduler stopped")
	return err
}

// Running reports whether the timer loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched != nil
}

// runSlot is one firing of a slot: apply the suppression checks, deliver,
// and record the marker.
func (s *Scheduler) runSlot(ctx context.Context, slot string) {
	if s.permission != nil && !s.permission() {
		s.logger.Debug("reminder skipped: permission not granted", slog.String("slot", slot))
		return
	}

	today := dates.Format(s.clock.Now().In(s.loc))
	if s.state.ReminderSent(today, slot) {
		s.logger.Debug("reminder skipped: already sent",
			slog.String("slot", slot), slog.String("date", today))
		return
	}

	submitted, err := s.todaySubmitted(ctx, today)
	if err != nil {
		s.logger.Warn("reminder skipped: submission check failed",
			slog.String("slot", slot), slog.String("error", err.Error()))
		return
	}
	if submitted {
		s.logger.Debug("reminder skipped: diary already submitted",
			slog.String("slot", slot), slog.String("date", today))
		return
	}

	n := Notification{
		Title: "Diary Reminder",
		Body:  "Please complete today's Parent Diary questionnaire.",
		Link:  "/parent-diary",
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("reminder delivery failed",
			slog.String("slot", slot), slog.String("error", err.Error()))
		return
	}
	if err := s.state.MarkReminderSent(today, slot); err != nil {
		s.logger.Warn("reminder marker write failed",
			slog.String("slot", slot), slog.String("error", err.Error()))
	}
}

// recordInvalidator is implemented by the caching record store.
type recordInvalidator interface {
	InvalidateRecord(date string)
}

// todaySubmitted checks the record store; a missing record means not
// submitted. The diary may have been submitted elsewhere since the previous
// slot, so a caching store is told to re-fetch.
func (s *Scheduler) todaySubmitted(ctx context.Context, today string) (bool, error) {
	if inv, ok := s.store.(recordInvalidator); ok {
		inv.InvalidateRecord(today)
	}
	rec, err := s.store.GetByDate(ctx, today)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return rec.Diary.Submitted, nil
}
