package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Answer is one response value: free text for radio and textarea questions,
// a set of selected options for checkbox questions. On the wire it is either
// a JSON string or a JSON array of strings.
type Answer struct {
	Text    string
	Options []string
	Multi   bool
}

// TextAnswer builds a single-value answer.
func TextAnswer(text string) Answer {
	return Answer{Text: text}
}

// SetAnswer builds a checkbox answer from the given options.
func SetAnswer(options ...string) Answer {
	return Answer{Options: slices.Clone(options), Multi: true}
}

// IsEmpty reports whether the answer carries no content: whitespace-only text
// or an empty option set.
func (a Answer) IsEmpty() bool {
	if a.Multi {
		return len(a.Options) == 0
	}
	return strings.TrimSpace(a.Text) == ""
}

// Has reports whether option is selected.
func (a Answer) Has(option string) bool {
	return slices.Contains(a.Options, option)
}

// Toggle returns a copy with option added when absent, removed when present.
// The result is always a checkbox answer.
func (a Answer) Toggle(option string) Answer {
	out := Answer{Multi: true}
	if a.Has(option) {
		for _, o := range a.Options {
			if o != option {
				out.Options = append(out.Options, o)
			}
		}
		return out
	}
	out.Options = append(slices.Clone(a.Options), option)
	return out
}

// Equal compares two answers. Options compare as multisets, so selection
// order does not matter but repeated options do.
func (a Answer) Equal(b Answer) bool {
	if a.Multi != b.Multi {
		return false
	}
	if a.Multi {
		if len(a.Options) != len(b.Options) {
			return false
		}
		counts := make(map[string]int, len(a.Options))
		for _, o := range a.Options {
			counts[o]++
		}
		for _, o := range b.Options {
			counts[o]--
			if counts[o] < 0 {
				return false
			}
		}
		return true
	}
	return a.Text == b.Text
}

// MarshalJSON writes a string for text answers and an array for sets.
func (a Answer) MarshalJSON() ([]byte, error) {
	if a.Multi {
		opts := a.Options
		if opts == nil {
			opts = []string{}
		}
		return json.Marshal(opts)
	}
	return json.Marshal(a.Text)
}

// UnmarshalJSON accepts either a string or an array of strings.
func (a *Answer) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*a = Answer{Text: text}
		return nil
	}
	var opts []string
	if err := json.Unmarshal(data, &opts); err != nil {
		return fmt.Errorf("models: answer must be a string or an array of strings")
	}
	*a = Answer{Options: opts, Multi: true}
	return nil
}

// Responses maps question IDs and follow-up response keys to answers.
type Responses map[string]Answer

// Clone returns a deep copy.
func (r Responses) Clone() Responses {
	if r == nil {
		return Responses{}
	}
	out := make(Responses, len(r))
	for k, v := range r {
		v.Options = slices.Clone(v.Options)
		out[k] = v
	}
	return out
}

// Equal compares two response maps structurally.
func (r Responses) Equal(other Responses) bool {
	if len(r) != len(other) {
		return false
	}
	for k, v := range r {
		o, ok := other[k]
		if !ok || !v.Equal(o) {
			return false
		}
	}
	return true
}

// HasContent reports whether any answer in the map is non-empty.
func (r Responses) HasContent() bool {
	for _, a := range r {
		if !a.IsEmpty() {
			return true
		}
	}
	return false
}

// StringList unmarshals from either a single JSON string or an array of
// strings. The show-when condition value uses both shapes on the wire.
type StringList []string

// UnmarshalJSON implements the flexible decoding.
func (l *StringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*l = StringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("models: value must be a string or an array of strings")
	}
	*l = StringList(many)
	return nil
}

// MarshalJSON writes the single-string shape when possible.
func (l StringList) MarshalJSON() ([]byte, error) {
	if len(l) == 1 {
		return json.Marshal(l[0])
	}
	return json.Marshal([]string(l))
}
