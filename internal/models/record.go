// Package models defines the domain types for Daybook.
package models

import (
	"slices"
	"time"
)

// Question types.
const (
	QuestionCheckbox = "checkbox"
	QuestionRadio    = "radio"
	QuestionTextarea = "textarea"
)

// ShowWhen operators.
const (
	OpEquals      = "equals"
	OpIncludesAny = "includesAny"
)

// DailyRecord is the full per-date payload: read-only dashboard data plus the
// caregiver diary. Dates are "YYYY-MM-DD" strings, so lexicographic order is
// chronological order.
type DailyRecord struct {
	Date      string    `json:"date"`
	Dashboard Dashboard `json:"dashboard"`
	Diary     Diary     `json:"diary"`
}

// Dashboard is the display payload summarizing the child's day. It is never
// written by this system.
type Dashboard struct {
	HasInteraction bool     `json:"hasInteraction"`
	Photos         []string `json:"photos"`
	Words          []string `json:"words"`
	Highlight      []string `json:"highlight"`
	Ask            []string `json:"ask"`
}

// Diary holds the questionnaire and its submission state for one date.
type Diary struct {
	Submitted    bool       `json:"submitted"`
	SubmittedAt  *time.Time `json:"submittedAt"`
	UpdatedAt    *time.Time `json:"updatedAt"`
	Instructions []string   `json:"instructions"`
	Questions    []Question `json:"questions"`
	Responses    Responses  `json:"responses"`
}

// Question is one questionnaire item. Options is set for checkbox and radio
// types; Followups are conditionally visible secondary text fields.
type Question struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Label     string     `json:"label"`
	Options   []string   `json:"options,omitempty"`
	Followups []Followup `json:"followups,omitempty"`
}

// Followup is a secondary free-text field shown only while its ShowWhen
// condition holds against the parent question's answer. Its answer is stored
// under ResponseKey, which is unique across the record.
type Followup struct {
	Label       string   `json:"label"`
	ResponseKey string   `json:"responseKey"`
	ShowWhen    ShowWhen `json:"showWhen"`
}

// ShowWhen is the visibility condition of a follow-up.
type ShowWhen struct {
	Operator string     `json:"operator"`
	Value    StringList `json:"value"`
}

// Matches reports whether the condition holds for the parent answer.
// "equals" compares text answers and treats checkbox sets as membership;
// "includesAny" holds when any condition value is selected.
func (s ShowWhen) Matches(parent Answer) bool {
	switch s.Operator {
	case OpEquals:
		if len(s.Value) == 0 {
			return false
		}
		if parent.Multi {
			return parent.Has(s.Value[0])
		}
		return parent.Text == s.Value[0]
	case OpIncludesAny:
		for _, v := range s.Value {
			if parent.Multi {
				if parent.Has(v) {
					return true
				}
			} else if parent.Text == v {
				return true
			}
		}
	}
	return false
}

// DailySummary is the lightweight per-date projection used to render the
// date picker without fetching full records.
type DailySummary struct {
	Date            string `json:"date"`
	HasInteraction  bool   `json:"hasInteraction"`
	Submitted       bool   `json:"submitted"`
	DiarySelectable bool   `json:"diarySelectable"`
	DiaryEditable   bool   `json:"diaryEditable"`
	TodayBlueDot    bool   `json:"todayBlueDot"`
}

// DiaryUpdate is the PUT body for a diary submission. Responses replaces the
// stored response map; Submitted, when set, updates the submission flag.
type DiaryUpdate struct {
	Responses Responses `json:"responses"`
	Submitted *bool     `json:"submitted,omitempty"`
}

// Clone returns a deep copy of the record, safe to hand to concurrent readers.
func (r *DailyRecord) Clone() *DailyRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Dashboard.Photos = slices.Clone(r.Dashboard.Photos)
	out.Dashboard.Words = slices.Clone(r.Dashboard.Words)
	out.Dashboard.Highlight = slices.Clone(r.Dashboard.Highlight)
	out.Dashboard.Ask = slices.Clone(r.Dashboard.Ask)
	out.Diary = r.Diary.Clone()
	return &out
}

// Clone returns a deep copy of the diary.
func (d Diary) Clone() Diary {
	out := d
	if d.SubmittedAt != nil {
		t := *d.SubmittedAt
		out.SubmittedAt = &t
	}
	if d.UpdatedAt != nil {
		t := *d.UpdatedAt
		out.UpdatedAt = &t
	}
	out.Instructions = slices.Clone(d.Instructions)
	out.Questions = make([]Question, len(d.Questions))
	for i, q := range d.Questions {
		q.Options = slices.Clone(q.Options)
		q.Followups = slices.Clone(q.Followups)
		out.Questions[i] = q
	}
	out.Responses = d.Responses.Clone()
	return out
}
