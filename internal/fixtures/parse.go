package fixtures

import (
	"encoding/json"
	"fmt"

	"github.com/perch/daybook/internal/dates"
	"github.com/perch/daybook/internal/models"
)

// Parse decodes and validates a fixture file into a daily record. The
// questionnaire must be structurally sound: known question types and
// operators, options on choice questions, and response keys that do not
// collide.
func Parse(data []byte) (*models.DailyRecord, error) {
	var rec models.DailyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("fixtures: decode: %w", err)
	}
	if !dates.Valid(rec.Date) {
		return nil, fmt.Errorf("fixtures: invalid date %q", rec.Date)
	}

	keys := make(map[string]struct{}, len(rec.Diary.Questions))
	for _, q := range rec.Diary.Questions {
		if q.ID == "" {
			return nil, fmt.Errorf("fixtures: question without id in %s", rec.Date)
		}
		if _, dup := keys[q.ID]; dup {
			return nil, fmt.Errorf("fixtures: duplicate response key %q in %s", q.ID, rec.Date)
		}
		keys[q.ID] = struct{}{}

		switch q.Type {
		case models.QuestionTextarea:
		case models.QuestionCheckbox, models.QuestionRadio:
			if len(q.Options) == 0 {
				return nil, fmt.Errorf("fixtures: question %q has no options", q.ID)
			}
		default:
			return nil, fmt.Errorf("fixtures: question %q has unknown type %q", q.ID, q.Type)
		}

		for _, fu := range q.Followups {
			if fu.ResponseKey == "" {
				return nil, fmt.Errorf("fixtures: follow-up of %q without response key", q.ID)
			}
			if _, dup := keys[fu.ResponseKey]; dup {
				return nil, fmt.Errorf("fixtures: duplicate response key %q in %s", fu.ResponseKey, rec.Date)
			}
			keys[fu.ResponseKey] = struct{}{}
			switch fu.ShowWhen.Operator {
			case models.OpEquals, models.OpIncludesAny:
			default:
				return nil, fmt.Errorf("fixtures: follow-up %q has unknown operator %q", fu.ResponseKey, fu.ShowWhen.Operator)
			}
		}
	}

	if rec.Diary.Responses == nil {
		rec.Diary.Responses = models.Responses{}
	}
	return &rec, nil
}
