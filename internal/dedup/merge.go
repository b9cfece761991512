package dedup

import (
	"fmt"
	"sort"
	"strings"

	"pritecards/internal/question"
)

// Field names accepted in ManualSelections. Options use "option" followed by
// the letter, e.g. "optionC".
const (
	FieldText          = "text"
	FieldCategory      = "category"
	FieldPart          = "part"
	FieldYear          = "year"
	FieldNumber        = "number"
	FieldCorrectAnswer = "correctAnswer"
	FieldExplanation   = "explanation"

	optionFieldPrefix = "option"
)

// ManualSelections maps a field name to true when the candidate's value should
// replace the existing one.
type ManualSelections map[string]bool

// OptionField returns the selection key for an option letter.
func OptionField(letter string) string {
	return optionFieldPrefix + letter
}

// Clone returns an independent copy.
func (m ManualSelections) Clone() ManualSelections {
	if m == nil {
		return nil
	}
	out := make(ManualSelections, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge reconciles a duplicate pair into the record to persist.
//
//   - newer: candidate content with the identity of existing (id, created_at,
//     creator, study data, public flag).
//   - metadata: existing, with part/year/number/category taken from candidate
//     where the candidate has a value.
//   - manual: existing with each selected field taken from candidate. Nil
//     selections leave existing unchanged.
//   - keepBoth: candidate unchanged; the caller inserts it as a new record.
//
// Any other strategy fails with ErrInvalidStrategy.
func Merge(existing, candidate question.Record, strategy Strategy, manual ManualSelections) (question.Record, error) {
	switch strategy {
	case StrategyNewer:
		out := candidate.Clone()
		ex := existing.Clone()
		out.ID = ex.ID
		out.CreatedAt = ex.CreatedAt
		out.Creator = ex.Creator
		out.StudyData = ex.StudyData
		out.IsPublic = ex.IsPublic
		return out, nil

	case StrategyMetadata:
		out := existing.Clone()
		out.Part = firstNonEmpty(candidate.Part, existing.Part)
		out.Year = firstNonEmpty(candidate.Year, existing.Year)
		out.Number = firstNonEmpty(candidate.Number, existing.Number)
		out.Category = firstNonEmpty(candidate.Category, existing.Category)
		return out, nil

	case StrategyManual:
		return mergeManual(existing, candidate, manual)

	case StrategyKeepBoth:
		return candidate.Clone(), nil

	default:
		return question.Record{}, fmt.Errorf("%w: %q", ErrInvalidStrategy, string(strategy))
	}
}

func mergeManual(existing, candidate question.Record, manual ManualSelections) (question.Record, error) {
	out := existing.Clone()
	if manual == nil {
		return out, nil
	}

	fields := make([]string, 0, len(manual))
	for field, selected := range manual {
		if selected {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)

	for _, field := range fields {
		switch field {
		case FieldText:
			out.Text = candidate.Text
		case FieldCategory:
			out.Category = candidate.Category
		case FieldPart:
			out.Part = candidate.Part
		case FieldYear:
			out.Year = candidate.Year
		case FieldNumber:
			out.Number = candidate.Number
		case FieldCorrectAnswer:
			out.CorrectAnswer = candidate.CorrectAnswer
		case FieldExplanation:
			out.Explanation = candidate.Explanation
		default:
			letter, ok := optionLetter(field)
			if !ok {
				return question.Record{}, &fieldError{field: field, err: fmt.Errorf("%w: unknown field", ErrInconsistentSelection)}
			}
			if !candidate.Options.Has(letter) {
				return question.Record{}, &fieldError{field: field, err: fmt.Errorf("%w: candidate has no option %s", ErrInconsistentSelection, letter)}
			}
			if out.Options == nil {
				out.Options = make(question.Options)
			}
			out.Options[letter] = candidate.Options.Get(letter)
		}
	}
	return out, nil
}

func optionLetter(field string) (string, bool) {
	if !strings.HasPrefix(field, optionFieldPrefix) {
		return "", false
	}
	letter := strings.TrimPrefix(field, optionFieldPrefix)
	if !question.IsOptionLetter(letter) {
		return "", false
	}
	return letter, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
