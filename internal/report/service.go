package report

import (
	"context"
	"fmt"
	"sort"

	"pritecards/internal/question"
)

type corpusLister interface {
	ListCorpus(ctx context.Context, f question.CorpusFilter) ([]question.Record, error)
}

type Service struct {
	corpus corpusLister
}

// Bucket is one group of a corpus breakdown.
type Bucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// CorpusSummary describes a creator's question bank.
type CorpusSummary struct {
	Creator        string   `json:"creator"`
	Total          int      `json:"total"`
	Public         int      `json:"public"`
	WithoutAnswer  int      `json:"without_answer"`
	AverageOptions float64  `json:"average_options"`
	ByPart         []Bucket `json:"by_part"`
	ByYear         []Bucket `json:"by_year"`
	ByCategory     []Bucket `json:"by_category"`
}

func NewService(corpus corpusLister) *Service {
	return &Service{corpus: corpus}
}

func (s *Service) SummaryByCreator(ctx context.Context, creator string) (*CorpusSummary, error) {
	records, err := s.corpus.ListCorpus(ctx, question.CorpusFilter{Creator: creator})
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	return Summarize(creator, records), nil
}

// Summarize builds the breakdown for records. Empty keys are grouped under
// "unknown".
func Summarize(creator string, records []question.Record) *CorpusSummary {
	out := &CorpusSummary{Creator: creator, Total: len(records)}
	parts := map[string]int{}
	years := map[string]int{}
	categories := map[string]int{}
	options := 0
	for _, r := range records {
		if r.IsPublic {
			out.Public++
		}
		if r.CorrectAnswer == "" {
			out.WithoutAnswer++
		}
		options += len(r.Options.Letters())
		parts[orUnknown(r.Part)]++
		years[orUnknown(r.Year)]++
		categories[orUnknown(r.Category)]++
	}
	if len(records) > 0 {
		out.AverageOptions = float64(options) / float64(len(records))
	}
	out.ByPart = buckets(parts)
	out.ByYear = buckets(years)
	out.ByCategory = buckets(categories)
	return out
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

func buckets(m map[string]int) []Bucket {
	out := make([]Bucket, 0, len(m))
	for k, v := range m {
		out = append(out, Bucket{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}
