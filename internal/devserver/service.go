package devserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/perch/daybook/internal/apperr"
	"github.com/perch/daybook/internal/dates"
	"github.com/perch/daybook/internal/diaryform"
	"github.com/perch/daybook/internal/models"
)

// Service coordinates the database, the edit-window policy, and timezone
// resolution for the API layer.
type Service struct {
	db       *DB
	policy   EditPolicy
	loc      *time.Location
	now      func() time.Time
	onChange func(kind, date string)
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// WithChangeHook installs a callback fired after every successful API write,
// with the event kind ("day.created" or "day.updated") and the affected date.
func WithChangeHook(fn func(kind, date string)) ServiceOption {
	return func(s *Service) { s.onChange = fn }
}

// NewService creates the API service. defaultLoc is the timezone used when a
// request does not carry one.
func NewService(db *DB, policy EditPolicy, defaultLoc *time.Location, opts ...ServiceOption) *Service {
	s := &Service{db: db, policy: policy, loc: defaultLoc, now: time.Now}
	if s.loc == nil {
		s.loc = time.Local
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// location resolves a timezone query parameter, falling back to the
// configured default when the name is empty or unknown.
func (s *Service) location(tz string) *time.Location {
	if tz == "" {
		return s.loc
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return s.loc
	}
	return loc
}

// Summaries projects every stored record into the date-picker payload.
// Selectability and editability are computed against today in the request
// timezone.
func (s *Service) Summaries(tz string) ([]models.DailySummary, error) {
	recs, err := s.db.ListRecords()
	if err != nil {
		return nil, err
	}
	now := s.now().In(s.location(tz))
	today := dates.Format(now)

	out := make([]models.DailySummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, models.DailySummary{
			Date:            rec.Date,
			HasInteraction:  rec.Dashboard.HasInteraction,
			Submitted:       rec.Diary.Submitted,
			DiarySelectable: rec.Date <= today,
			DiaryEditable:   s.policy.Editable(rec.Date, rec.Diary.Submitted, now),
			TodayBlueDot:    rec.Date == today && !rec.Diary.Submitted,
		})
	}
	return out, nil
}

// Record returns the full record for a date. A malformed date is rejected
// before touching the database.
func (s *Service) Record(date string) (*models.DailyRecord, error) {
	if !dates.Valid(date) {
		return nil, fmt.Errorf("%w: invalid date %q", apperr.ErrBadRequest, date)
	}
	return s.db.GetRecord(date)
}

// SubmitDiary applies a diary update to the record for date. The update is
// validated against the record's questionnaire, the responses are run
// through the same sanitizer the form uses, and the write is refused with
// apperr.ErrConflict once the edit window has closed.
func (s *Service) SubmitDiary(date, tz string, upd models.DiaryUpdate) (*models.DailyRecord, error) {
	if !dates.Valid(date) {
		return nil, fmt.Errorf("%w: invalid date %q", apperr.ErrBadRequest, date)
	}
	rec, err := s.db.GetRecord(date)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	now := s.now().In(s.location(tz))
	created := rec == nil
	if created {
		// First write for a day with no fixture: allowed only inside the
		// edit window, with the questionnaire cloned from the nearest prior
		// record, matching what the portal form renders for an empty today.
		if !s.policy.Editable(date, false, now) {
			return nil, err
		}
		rec = s.newRecord(date)
	}
	if !s.policy.Editable(date, rec.Diary.Submitted, now) {
		return nil, fmt.Errorf("%w: edit window closed for %s", apperr.ErrConflict, date)
	}
	if err := validateUpdate(rec.Diary.Questions, upd); err != nil {
		return nil, err
	}

	rec.Diary.Responses = diaryform.Sanitize(rec.Diary.Questions, upd.Responses)
	stamp := now.UTC()
	rec.Diary.UpdatedAt = &stamp
	if upd.Submitted != nil {
		rec.Diary.Submitted = *upd.Submitted
		if *upd.Submitted {
			rec.Diary.SubmittedAt = &stamp
		}
	}

	if err := s.db.UpsertRecord(rec, ""); err != nil {
		return nil, err
	}
	if s.onChange != nil {
		kind := "day.updated"
		if created {
			kind = "day.created"
		}
		s.onChange(kind, date)
	}
	return rec, nil
}

// newRecord builds an empty record for date, cloning instructions and
// questions from the nearest prior stored record when one exists.
func (s *Service) newRecord(date string) *models.DailyRecord {
	rec := &models.DailyRecord{
		Date:  date,
		Diary: models.Diary{Responses: models.Responses{}},
	}
	recs, err := s.db.ListRecords()
	if err != nil {
		return rec
	}
	var prior []string
	for _, r := range recs {
		if r.Date < date {
			prior = append(prior, r.Date)
		}
	}
	nearest, ok := dates.NearestDate(date, prior)
	if !ok {
		return rec
	}
	for _, r := range recs {
		if r.Date == nearest {
			d := r.Diary.Clone()
			rec.Diary.Instructions = d.Instructions
			rec.Diary.Questions = d.Questions
			break
		}
	}
	return rec
}

// validateUpdate checks the update against the questionnaire: response keys
// must belong to a question or one of its follow-ups, and answers must match
// the question type. Violations map to 422.
func validateUpdate(questions []models.Question, upd models.DiaryUpdate) error {
	if err := (validation.Errors{
		"responses": validation.Validate(upd.Responses, validation.NotNil),
	}).Filter(); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrUnprocessable, err)
	}

	known := make(map[string]string, len(questions))
	for _, q := range questions {
		known[q.ID] = q.Type
		for _, fu := range q.Followups {
			known[fu.ResponseKey] = models.QuestionTextarea
		}
	}
	for key, ans := range upd.Responses {
		qType, ok := known[key]
		if !ok {
			return fmt.Errorf("%w: unknown response key %q", apperr.ErrUnprocessable, key)
		}
		switch qType {
		case models.QuestionCheckbox:
			if !ans.Multi && !ans.IsEmpty() {
				return fmt.Errorf("%w: %q expects a list of options", apperr.ErrUnprocessable, key)
			}
		case models.QuestionRadio, models.QuestionTextarea:
			if ans.Multi {
				return fmt.Errorf("%w: %q expects a single value", apperr.ErrUnprocessable, key)
			}
		}
	}
	return nil
}

// SaveSubscription validates and stores a new push subscription.
func (s *Service) SaveSubscription(sub *SubscriptionRow) (*SubscriptionRow, error) {
	if err := validateSubscription(sub); err != nil {
		return nil, err
	}
	id, err := s.db.CreateSubscription(sub)
	if err != nil {
		return nil, err
	}
	sub.ID = id
	return sub, nil
}

// ReplaceSubscription validates and rewrites the subscription with the
// given id.
func (s *Service) ReplaceSubscription(id int64, sub *SubscriptionRow) (*SubscriptionRow, error) {
	if err := validateSubscription(sub); err != nil {
		return nil, err
	}
	if err := s.db.UpdateSubscription(id, sub); err != nil {
		return nil, err
	}
	sub.ID = id
	return sub, nil
}

// Subscriptions lists a caregiver's stored subscriptions.
func (s *Service) Subscriptions(caregiverID int) ([]SubscriptionRow, error) {
	return s.db.SubscriptionsByCaregiver(caregiverID)
}

func validateSubscription(sub *SubscriptionRow) error {
	err := validation.ValidateStruct(sub,
		validation.Field(&sub.CaregiverID, validation.Required, validation.Min(1)),
		validation.Field(&sub.Platform, validation.Required),
		validation.Field(&sub.Endpoint, validation.Required),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrUnprocessable, err)
	}
	if len(sub.Keys) > 0 && !json.Valid(sub.Keys) {
		return fmt.Errorf("%w: keys must be a JSON object", apperr.ErrUnprocessable)
	}
	return nil
}
