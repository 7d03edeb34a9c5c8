// Package diaryform owns the Parent Diary questionnaire state for the
// currently selected date: the draft response map, dirtiness against the last
// persisted values, conditional follow-up visibility, the editability-derived
// save guard, and submit orchestration against the record store.
package diaryform

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/perch/daybook/internal/apperr"
	"github.com/perch/daybook/internal/dates"
	"github.com/perch/daybook/internal/models"
	"github.com/perch/daybook/internal/recordstore"
)

// Phase is the form lifecycle state for the active date.
type Phase int

const (
	// PhaseIdle means no date is selected.
	PhaseIdle Phase = iota
	// PhaseLoading means a record fetch is in flight.
	PhaseLoading
	// PhaseLoaded means a record (or synthesized template) is displayed.
	PhaseLoaded
	// PhaseSaving means a submit is in flight.
	PhaseSaving
)

// ErrCancelled is returned when the user declines to discard unsaved changes.
var ErrCancelled = errors.New("diaryform: navigation cancelled")

// ErrNotSubmittable is returned by Save when the guard conditions fail.
var ErrNotSubmittable = errors.New("diaryform: nothing to submit")

// ConfirmFunc asks the user to confirm discarding unsaved changes before
// moving to target (a date or a route). Returning false cancels the move.
type ConfirmFunc func(target string) bool

// Option configures a Form.
type Option func(*Form)

// WithConfirm installs the unsaved-changes confirmation prompt.
func WithConfirm(fn ConfirmFunc) Option {
	return func(f *Form) { f.confirm = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(f *Form) { f.now = now }
}

// WithLocation sets the location used to decide what "today" means.
func WithLocation(loc *time.Location) Option {
	return func(f *Form) { f.loc = loc }
}

// WithOnSaved installs a hook that runs after every successful save, once the
// summary cache has been invalidated.
func WithOnSaved(fn func()) Option {
	return func(f *Form) { f.onSaved = fn }
}

// summaryInvalidator is implemented by the caching record store.
type summaryInvalidator interface {
	InvalidateSummaries()
}

// Form is the diary state machine. Methods are safe for concurrent use; the
// lock is released around network calls and a load sequence number discards
// responses that were superseded by a later date selection.
type Form struct {
	store   recordstore.Store
	loc     *time.Location
	now     func() time.Time
	confirm ConfirmFunc
	onSaved func()

	mu       sync.Mutex
	seq      uint64
	phase    Phase
	date     string
	record   *models.DailyRecord
	draft    models.Responses
	saved    models.Responses
	editable bool
	lastErr  error
}

// New creates an idle form backed by the given store.
func New(store recordstore.Store, opts ...Option) *Form {
	f := &Form{
		store: store,
		loc:   time.Local,
		now:   time.Now,
		phase: PhaseIdle,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Phase returns the current lifecycle phase.
func (f *Form) Phase() Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

// Date returns the active date, or "" when idle.
func (f *Form) Date() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.date
}

// Record returns a copy of the loaded record, or nil.
func (f *Form) Record() *models.DailyRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record.Clone()
}

// Draft returns a copy of the current draft responses.
func (f *Form) Draft() models.Responses {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft.Clone()
}

// Err returns the retained error from the last failed load or save.
func (f *Form) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

// Editable reports whether the active date accepts edits. The flag comes from
// the server-side summary; the form never computes the policy itself.
func (f *Form) Editable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.editable
}

// Dirty reports whether the draft structurally differs from the last
// persisted values, follow-ups included.
func (f *Form) Dirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirtyLocked()
}

func (f *Form) dirtyLocked() bool {
	return !f.draft.Equal(f.saved)
}

// CanSubmit reports whether Save would be accepted: the date is editable and
// at least one answer among questions and visible follow-ups is non-empty.
func (f *Form) CanSubmit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.editable || f.phase != PhaseLoaded || f.record == nil {
		return false
	}
	return Sanitize(f.record.Diary.Questions, f.draft).HasContent()
}

// SelectDate switches the form to the given date, loading its record. While
// the draft is dirty and editable, the confirm prompt must approve; declining
// returns ErrCancelled and the form stays on the current date. A selection
// that is overtaken by a newer one discards its response silently.
func (f *Form) SelectDate(ctx context.Context, date string) error {
	f.mu.Lock()
	if f.date == date && f.phase != PhaseIdle {
		f.mu.Unlock()
		return nil
	}
	if f.dirtyLocked() && f.editable {
		confirm := f.confirm
		if confirm != nil {
			f.mu.Unlock()
			if !confirm(date) {
				return ErrCancelled
			}
			f.mu.Lock()
		}
	}
	f.seq++
	seq := f.seq
	f.phase = PhaseLoading
	f.date = date
	f.mu.Unlock()

	rec, editable, err := f.load(ctx, date)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seq != seq {
		// A newer selection (or teardown) superseded this load.
		return nil
	}
	if err != nil {
		f.applyLocked(rec, false, err)
		return err
	}
	f.applyLocked(rec, editable, nil)
	return nil
}

// applyLocked installs a loaded record. rec may be a synthesized template.
func (f *Form) applyLocked(rec *models.DailyRecord, editable bool, err error) {
	f.phase = PhaseLoaded
	f.record = rec
	f.editable = editable
	f.lastErr = err
	if rec != nil {
		f.draft = rec.Diary.Responses.Clone()
	} else {
		f.draft = models.Responses{}
	}
	f.saved = f.draft.Clone()
}

// load fetches the record and resolves its editability from the summaries.
// A missing record for today synthesizes an editable empty template; any
// other failure synthesizes a read-only fallback so the question list stays
// renderable.
func (f *Form) load(ctx context.Context, date string) (*models.DailyRecord, bool, error) {
	summaries, sumErr := f.store.ListSummaries(ctx)
	today := dates.Format(f.now().In(f.loc))

	rec, err := f.store.GetByDate(ctx, date)
	if err == nil {
		return rec, editableFor(summaries, date), nil
	}

	if errors.Is(err, apperr.ErrNotFound) && date == today {
		// First visit of a new day: seed the form from the nearest prior
		// record's question set so there is always something to render.
		tpl := f.synthesize(ctx, date, summaries)
		return tpl, true, nil
	}
	if sumErr != nil {
		err = sumErr
	}
	return f.synthesize(ctx, date, summaries), false, err
}

// synthesize builds an empty record for date, cloning instructions and
// questions from the nearest prior record when one exists.
func (f *Form) synthesize(ctx context.Context, date string, summaries []models.DailySummary) *models.DailyRecord {
	tpl := &models.DailyRecord{
		Date:  date,
		Diary: models.Diary{Responses: models.Responses{}},
	}
	var prior []string
	for _, s := range summaries {
		if s.Date < date {
			prior = append(prior, s.Date)
		}
	}
	nearest, ok := dates.NearestDate(date, prior)
	if !ok {
		return tpl
	}
	src, err := f.store.GetByDate(ctx, nearest)
	if err != nil {
		return tpl
	}
	d := src.Diary.Clone()
	tpl.Diary.Instructions = d.Instructions
	tpl.Diary.Questions = d.Questions
	return tpl
}

func editableFor(summaries []models.DailySummary, date string) bool {
	for _, s := range summaries {
		if s.Date == date {
			return s.DiaryEditable
		}
	}
	return false
}

// SetAnswer replaces a question's primary answer and strips answers of
// follow-ups that the change hid. No-op while the date is not editable.
func (f *Form) SetAnswer(questionID string, answer models.Answer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.editableLocked() {
		return
	}
	f.draft[questionID] = answer
	f.draft = Sanitize(f.record.Diary.Questions, f.draft)
}

// SetFollowup sets a follow-up's text answer. Ignored while the follow-up is
// hidden or the date is not editable.
func (f *Form) SetFollowup(responseKey, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.editableLocked() {
		return
	}
	f.draft[responseKey] = models.TextAnswer(text)
	f.draft = Sanitize(f.record.Diary.Questions, f.draft)
}

// ToggleOption flips one checkbox option on a question's answer, then
// recomputes follow-up visibility.
func (f *Form) ToggleOption(questionID, option string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.editableLocked() {
		return
	}
	f.draft[questionID] = f.draft[questionID].Toggle(option)
	f.draft = Sanitize(f.record.Diary.Questions, f.draft)
}

func (f *Form) editableLocked() bool {
	return f.editable && f.phase == PhaseLoaded && f.record != nil
}

// VisibleFollowups returns the follow-ups of a question whose conditions
// currently hold against the draft.
func (f *Form) VisibleFollowups(questionID string) []models.Followup {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.record == nil {
		return nil
	}
	for _, q := range f.record.Diary.Questions {
		if q.ID != questionID {
			continue
		}
		var out []models.Followup
		parent := f.draft[q.ID]
		for _, fu := range q.Followups {
			if fu.ShowWhen.Matches(parent) {
				out = append(out, fu)
			}
		}
		return out
	}
	return nil
}

// Save sanitizes the draft and pushes it through the record store. On success
// the record's submission state is updated, savedValues reconcile to the
// sanitized draft, and the summary refresh hook fires. On failure the draft
// is left exactly as edited and the error is retained, classified by kind.
func (f *Form) Save(ctx context.Context) error {
	f.mu.Lock()
	if f.phase == PhaseSaving {
		f.mu.Unlock()
		return ErrNotSubmittable
	}
	if !f.editableLocked() || !Sanitize(f.record.Diary.Questions, f.draft).HasContent() {
		f.mu.Unlock()
		return ErrNotSubmittable
	}
	seq := f.seq
	date := f.date
	sanitized := Sanitize(f.record.Diary.Questions, f.draft)
	f.phase = PhaseSaving
	f.mu.Unlock()

	submitted := true
	rec, err := f.store.UpdateByDate(ctx, date, models.DiaryUpdate{
		Responses: sanitized,
		Submitted: &submitted,
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seq != seq {
		return nil
	}
	f.phase = PhaseLoaded
	if err != nil {
		f.lastErr = err
		return err
	}

	now := f.now()
	if f.record != nil && rec != nil {
		rec.Diary.Submitted = true
		if rec.Diary.SubmittedAt == nil {
			if prev := f.record.Diary.SubmittedAt; prev != nil {
				rec.Diary.SubmittedAt = prev
			} else {
				rec.Diary.SubmittedAt = &now
			}
		}
		if rec.Diary.UpdatedAt == nil {
			rec.Diary.UpdatedAt = &now
		}
		f.record = rec
	}
	f.draft = sanitized.Clone()
	f.saved = sanitized.Clone()
	f.lastErr = nil

	if inv, ok := f.store.(summaryInvalidator); ok {
		inv.InvalidateSummaries()
	}
	if f.onSaved != nil {
		f.onSaved()
	}
	return nil
}

// Teardown resets the form to idle and flags any in-flight load or save as
// ignorable.
func (f *Form) Teardown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.phase = PhaseIdle
	f.date = ""
	f.record = nil
	f.draft = nil
	f.saved = nil
	f.editable = false
	f.lastErr = nil
}

// Sanitize drops draft entries that should not persist: answers of follow-ups
// whose show-when condition no longer holds, and keys that belong to no
// question or follow-up. It is idempotent and never mutates its input.
func Sanitize(questions []models.Question, draft models.Responses) models.Responses {
	out := models.Responses{}
	for _, q := range questions {
		if a, ok := draft[q.ID]; ok {
			out[q.ID] = a
		}
		parent := draft[q.ID]
		for _, fu := range q.Followups {
			if !fu.ShowWhen.Matches(parent) {
				continue
			}
			if a, ok := draft[fu.ResponseKey]; ok {
				out[fu.ResponseKey] = a
			}
		}
	}
	return out.Clone()
}
