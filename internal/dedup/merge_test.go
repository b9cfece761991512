package dedup

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pritecards/internal/question"
)

func mergeFixtures() (existing, candidate question.Record) {
	existing = lithiumExisting()
	existing.IsPublic = true
	existing.StudyData = json.RawMessage(`{"reviews":4}`)
	existing.Explanation = "Lithium inhibits IMPase and GSK-3."

	created := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	candidate = question.Record{
		ID:   "cand-1",
		Text: "What is lithium's mechanism of action?",
		Options: question.Options{
			"A": "Inhibition of inositol monophosphatase",
			"B": "Dopamine D2 blockade",
			"C": "GABA-A agonism",
		},
		CorrectAnswer: "A",
		Explanation:   "IMPase inhibition depletes inositol.",
		Category:      "Pharmacology",
		Part:          "2",
		Year:          "2024",
		Number:        "",
		CreatedAt:     &created,
		Creator:       "importer",
	}
	return existing, candidate
}

func TestMergeNewerKeepsIdentity(t *testing.T) {
	existing, candidate := mergeFixtures()

	out, err := Merge(existing, candidate, StrategyNewer, nil)
	require.NoError(t, err)

	assert.Equal(t, existing.ID, out.ID)
	assert.Equal(t, existing.CreatedAt, out.CreatedAt)
	assert.Equal(t, existing.Creator, out.Creator)
	assert.Equal(t, existing.StudyData, out.StudyData)
	assert.True(t, out.IsPublic)

	assert.Equal(t, candidate.Text, out.Text)
	assert.Equal(t, candidate.Options, out.Options)
	assert.Equal(t, candidate.Explanation, out.Explanation)
	assert.Equal(t, candidate.Number, out.Number)
}

func TestMergeMetadataPrefersCandidateValues(t *testing.T) {
	existing, candidate := mergeFixtures()

	out, err := Merge(existing, candidate, StrategyMetadata, nil)
	require.NoError(t, err)

	assert.Equal(t, existing.Text, out.Text)
	assert.Equal(t, existing.Options, out.Options)
	assert.Equal(t, "2", out.Part)
	assert.Equal(t, "2024", out.Year)
	assert.Equal(t, "Pharmacology", out.Category)
	assert.Equal(t, existing.Number, out.Number, "empty candidate value falls back to existing")
	assert.Equal(t, existing.ID, out.ID)
}

func TestMergeMetadataIdempotent(t *testing.T) {
	existing, _ := mergeFixtures()

	out, err := Merge(existing, existing.Clone(), StrategyMetadata, nil)
	require.NoError(t, err)
	assert.Equal(t, existing, out)
}

func TestMergeManualSelectsFields(t *testing.T) {
	existing, candidate := mergeFixtures()

	out, err := Merge(existing, candidate, StrategyManual, ManualSelections{
		FieldText:        true,
		OptionField("A"): false,
		OptionField("C"): true,
		FieldExplanation: false,
	})
	require.NoError(t, err)

	assert.Equal(t, candidate.Text, out.Text)
	assert.Equal(t, existing.Options.Get("A"), out.Options.Get("A"))
	assert.Equal(t, existing.Options.Get("B"), out.Options.Get("B"))
	assert.Equal(t, candidate.Options.Get("C"), out.Options.Get("C"))
	assert.Equal(t, existing.Explanation, out.Explanation)
	assert.Equal(t, existing.Part, out.Part)
	assert.Equal(t, existing.Year, out.Year)
	assert.Equal(t, existing.Number, out.Number)
	assert.Equal(t, existing.Category, out.Category)
	assert.Equal(t, existing.CorrectAnswer, out.CorrectAnswer)
	assert.Equal(t, existing.ID, out.ID)

	// The input records are never mutated.
	assert.False(t, existing.Options.Has("C"))
}

func TestMergeManualWithoutSelectionsIsNoop(t *testing.T) {
	existing, candidate := mergeFixtures()

	out, err := Merge(existing, candidate, StrategyManual, nil)
	require.NoError(t, err)
	assert.Equal(t, existing, out)
}

func TestMergeManualInconsistentSelection(t *testing.T) {
	existing, candidate := mergeFixtures()

	tests := []struct {
		name  string
		field string
	}{
		{"missing option on candidate", OptionField("E")},
		{"unknown field", "difficulty"},
		{"letter outside range", "optionZ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Merge(existing, candidate, StrategyManual, ManualSelections{tt.field: true})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInconsistentSelection))

			var fe *fieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.field)
		})
	}
}

func TestMergeKeepBothReturnsCandidate(t *testing.T) {
	existing, candidate := mergeFixtures()

	out, err := Merge(existing, candidate, StrategyKeepBoth, nil)
	require.NoError(t, err)
	assert.Equal(t, candidate, out)
}

// An unrecognized strategy is a hard error, never a silent fall back to the
// existing record.
func TestMergeUnknownStrategyFails(t *testing.T) {
	existing, candidate := mergeFixtures()

	for _, s := range []Strategy{"", "overwrite", "Newer"} {
		out, err := Merge(existing, candidate, s, nil)
		require.Error(t, err, "strategy %q", s)
		assert.True(t, errors.Is(err, ErrInvalidStrategy))
		assert.Equal(t, question.Record{}, out)
	}
}
