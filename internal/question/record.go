package question

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// OptionLetters is the bounded set of answer labels a record may carry.
// Most PRITE items use A-E; imported banks occasionally go further.
var OptionLetters = []string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L", "M", "N", "O"}

// Options maps an upper-case option letter to its text. Only present keys are
// stored: a missing letter means the question has no such option.
type Options map[string]string

// Record is a single study question, either persisted (ID set) or a freshly
// imported candidate (ID empty).
type Record struct {
	ID            string          `json:"id,omitempty"`
	Text          string          `json:"text"`
	Options       Options         `json:"options,omitempty"`
	CorrectAnswer string          `json:"correct_answer,omitempty"`
	Explanation   string          `json:"explanation,omitempty"`
	Category      string          `json:"category,omitempty"`
	Part          string          `json:"part,omitempty"`
	Year          string          `json:"year,omitempty"`
	Number        string          `json:"number,omitempty"`
	CreatedAt     *time.Time      `json:"created_at,omitempty"`
	Creator       string          `json:"creator,omitempty"`
	IsPublic      bool            `json:"is_public"`
	StudyData     json.RawMessage `json:"study_data,omitempty"`
}

// IsOptionLetter reports whether l belongs to OptionLetters.
func IsOptionLetter(l string) bool {
	for _, v := range OptionLetters {
		if v == l {
			return true
		}
	}
	return false
}

// NormalizeOptions upper-cases letters, trims text and drops empty or unknown
// entries. It returns nil when nothing is left.
func NormalizeOptions(in map[string]string) Options {
	if len(in) == 0 {
		return nil
	}
	out := make(Options, len(in))
	for k, v := range in {
		letter := strings.ToUpper(strings.TrimSpace(k))
		text := strings.TrimSpace(v)
		if text == "" || !IsOptionLetter(letter) {
			continue
		}
		out[letter] = text
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Get returns the option text for letter, or "" when absent.
func (o Options) Get(letter string) string {
	if o == nil {
		return ""
	}
	return o[letter]
}

// Has reports whether a non-empty option exists for letter.
func (o Options) Has(letter string) bool {
	return strings.TrimSpace(o.Get(letter)) != ""
}

// Letters returns the present letters in label order.
func (o Options) Letters() []string {
	out := make([]string, 0, len(o))
	for k, v := range o {
		if strings.TrimSpace(v) != "" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Clone returns a deep copy of the record so that merges never alias the
// caller's maps or slices.
func (r Record) Clone() Record {
	out := r
	out.Options = r.Options.Clone()
	if r.CreatedAt != nil {
		t := *r.CreatedAt
		out.CreatedAt = &t
	}
	if r.StudyData != nil {
		out.StudyData = make(json.RawMessage, len(r.StudyData))
		copy(out.StudyData, r.StudyData)
	}
	return out
}

// HasText reports whether the record can take part in comparison.
func (r Record) HasText() bool {
	return strings.TrimSpace(r.Text) != ""
}

// Normalize trims free-text fields and canonicalizes the option map and the
// correct answer letter.
func (r Record) Normalize() Record {
	out := r.Clone()
	out.ID = strings.TrimSpace(out.ID)
	out.Text = strings.TrimSpace(out.Text)
	out.Options = NormalizeOptions(out.Options)
	out.CorrectAnswer = strings.ToUpper(strings.TrimSpace(out.CorrectAnswer))
	out.Explanation = strings.TrimSpace(out.Explanation)
	out.Category = strings.TrimSpace(out.Category)
	out.Part = strings.TrimSpace(out.Part)
	out.Year = strings.TrimSpace(out.Year)
	out.Number = strings.TrimSpace(out.Number)
	out.Creator = strings.TrimSpace(out.Creator)
	return out
}
