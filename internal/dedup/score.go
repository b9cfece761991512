package dedup

import (
	"fmt"
	"math"
	"strings"

	"pritecards/internal/question"
)

// Strategy is the policy used to reconcile a duplicate pair into one record.
type Strategy string

const (
	StrategyNewer    Strategy = "newer"
	StrategyMetadata Strategy = "metadata"
	StrategyManual   Strategy = "manual"
	StrategyKeepBoth Strategy = "keepBoth"
)

// ParseStrategy accepts the canonical names, case-insensitively, plus
// "keep_both" and "keep-both" for keepBoth.
func ParseStrategy(v string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "newer":
		return StrategyNewer, nil
	case "metadata":
		return StrategyMetadata, nil
	case "manual":
		return StrategyManual, nil
	case "keepboth", "keep_both", "keep-both":
		return StrategyKeepBoth, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStrategy, v)
	}
}

// Valid reports whether s is one of the known strategies.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyNewer, StrategyMetadata, StrategyManual, StrategyKeepBoth:
		return true
	}
	return false
}

// SimilarityResult is the outcome of scoring one (candidate, existing) pair.
type SimilarityResult struct {
	Score         float64     `json:"score"`
	Detail        FieldDetail `json:"detail"`
	Reasons       []string    `json:"reasons"`
	MatchCount    int         `json:"match_count"`
	MergeStrategy Strategy    `json:"merge_strategy"`
}

// Score aggregates per-field similarity into a weighted score, tallies the
// independent signals that fired and suggests a merge strategy. It does not
// special-case identity or exam part; callers filter those pairs.
func Score(candidate, existing question.Record, cfg Config) SimilarityResult {
	detail := CompareFields(candidate, existing)
	res := SimilarityResult{
		Detail:  detail,
		Reasons: make([]string, 0, 4),
	}

	if detail.Text >= cfg.TextThreshold {
		res.Reasons = append(res.Reasons, fmt.Sprintf("Question text is %d%% similar", percent(detail.Text)))
		res.MatchCount++
	}

	similarOptions := 0
	for _, letter := range detail.Compared {
		if detail.Options[letter] >= cfg.OptionsThreshold {
			similarOptions++
		}
	}
	if similarOptions > 0 {
		if similarOptions == 1 {
			res.Reasons = append(res.Reasons, "1 answer option is similar")
		} else {
			res.Reasons = append(res.Reasons, fmt.Sprintf("%d answer options are similar", similarOptions))
		}
		res.MatchCount += min(2, similarOptions)
	}

	if candidate.Number != "" && candidate.Number == existing.Number {
		res.Reasons = append(res.Reasons, fmt.Sprintf("Same question number (%s)", candidate.Number))
		res.MatchCount++
	}

	if candidate.Year != "" && candidate.Part != "" && existing.Year != "" && existing.Part != "" &&
		candidate.Year == existing.Year && candidate.Part == existing.Part {
		res.Reasons = append(res.Reasons, fmt.Sprintf("Same year and part (%s, Part %s)", candidate.Year, candidate.Part))
		res.MatchCount++
	}

	res.Score = detail.Text*cfg.TextWeight + detail.OptionsAverage()*cfg.OptionsWeight
	res.MergeStrategy = suggestStrategy(candidate, existing)
	return res
}

func suggestStrategy(candidate, existing question.Record) Strategy {
	if candidate.CreatedAt != nil && existing.CreatedAt != nil && candidate.CreatedAt.After(*existing.CreatedAt) {
		return StrategyNewer
	}
	return StrategyMetadata
}

func percent(v float64) int {
	return int(math.Round(v * 100))
}
