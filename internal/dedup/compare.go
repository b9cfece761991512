package dedup

import "pritecards/internal/question"

// ComparedLetters are the option labels that take part in scoring.
var ComparedLetters = []string{"A", "B", "C", "D", "E"}

// FieldDetail holds per-field similarity between a candidate and an existing
// record. Options missing on either side score 0 and are left out of Compared.
type FieldDetail struct {
	Text     float64            `json:"text"`
	Options  map[string]float64 `json:"options"`
	Compared []string           `json:"compared_options"`

	// Recovered counts fields whose metric failed and fell back to exact match.
	Recovered int `json:"recovered_failures,omitempty"`
}

// CompareFields computes the per-field detail for one pair.
func CompareFields(candidate, existing question.Record) FieldDetail {
	out := FieldDetail{
		Options:  make(map[string]float64, len(ComparedLetters)),
		Compared: make([]string, 0, len(ComparedLetters)),
	}

	var recovered bool
	out.Text, recovered = similarity(candidate.Text, existing.Text)
	if recovered {
		out.Recovered++
	}

	for _, letter := range ComparedLetters {
		if !candidate.Options.Has(letter) || !existing.Options.Has(letter) {
			out.Options[letter] = 0
			continue
		}
		sim, rec := similarity(candidate.Options.Get(letter), existing.Options.Get(letter))
		if rec {
			out.Recovered++
		}
		out.Options[letter] = sim
		out.Compared = append(out.Compared, letter)
	}
	return out
}

// OptionsAverage is the mean similarity over the options present on both
// sides, or 0 when there are none.
func (d FieldDetail) OptionsAverage() float64 {
	if len(d.Compared) == 0 {
		return 0
	}
	sum := 0.0
	for _, letter := range d.Compared {
		sum += d.Options[letter]
	}
	return sum / float64(len(d.Compared))
}
