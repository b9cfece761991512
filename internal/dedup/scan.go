package dedup

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"pritecards/internal/question"
)

const excerptLength = 50

// Match is one existing record ranked against a candidate.
type Match struct {
	Existing   question.Record  `json:"existing"`
	Similarity SimilarityResult `json:"similarity"`
}

// Cluster pairs a candidate with its ranked matches. Clusters are produced
// fresh per scan and never persisted.
type Cluster struct {
	Candidate   question.Record `json:"candidate"`
	Matches     []Match         `json:"matches"`
	IsDuplicate bool            `json:"is_duplicate"`
	Reasons     []string        `json:"reasons"`

	// ReadOnly marks a top match owned by someone other than the scan owner.
	// Such a cluster can only be resolved with keepBoth.
	ReadOnly bool `json:"read_only,omitempty"`
}

// Best returns the top-ranked match.
func (c Cluster) Best() (Match, bool) {
	if len(c.Matches) == 0 {
		return Match{}, false
	}
	return c.Matches[0], true
}

// ScanStats summarizes one scan.
type ScanStats struct {
	Candidates        int           `json:"candidates"`
	Existing          int           `json:"existing"`
	Comparisons       int           `json:"comparisons"`
	SkippedNoText     int           `json:"skipped_no_text"`
	SkippedSelf       int           `json:"skipped_self"`
	SkippedCrossPart  int           `json:"skipped_cross_part"`
	RecoveredFailures int           `json:"recovered_failures"`
	Duplicates        int           `json:"duplicates"`
	Elapsed           time.Duration `json:"elapsed_ns"`
}

// ScanResult partitions the candidates: every candidate lands either in
// NonDuplicates or as the candidate of exactly one cluster.
type ScanResult struct {
	NonDuplicates []question.Record `json:"non_duplicates"`
	Clusters      []Cluster         `json:"clusters"`
	Stats         ScanStats         `json:"stats"`
}

// ProgressFunc receives the share of candidates processed, 0-100.
type ProgressFunc func(percent int)

type scanOptions struct {
	progress ProgressFunc
	yield    func()
	owner    string
}

// ScanOption customizes a scan.
type ScanOption func(*scanOptions)

// WithProgress reports progress after every candidate.
func WithProgress(fn ProgressFunc) ScanOption {
	return func(o *scanOptions) { o.progress = fn }
}

// WithYield replaces the scheduling point run every Config.YieldEvery
// candidates. The default is runtime.Gosched.
func WithYield(fn func()) ScanOption {
	return func(o *scanOptions) { o.yield = fn }
}

// WithOwner marks clusters whose top match belongs to another creator as
// read-only.
func WithOwner(creator string) ScanOption {
	return func(o *scanOptions) { o.owner = strings.TrimSpace(creator) }
}

// Scan checks every candidate against the existing corpus. The corpus is only
// read. Cancellation is honored at each scheduling point; a cancelled scan
// returns no partial result.
func Scan(ctx context.Context, candidates, existing []question.Record, cfg Config, opts ...ScanOption) (ScanResult, error) {
	if err := cfg.Validate(); err != nil {
		return ScanResult{}, err
	}
	o := scanOptions{yield: runtime.Gosched}
	for _, opt := range opts {
		opt(&o)
	}
	if err := ctx.Err(); err != nil {
		return ScanResult{}, fmt.Errorf("scan cancelled before start: %w", err)
	}

	started := time.Now()
	res := ScanResult{
		NonDuplicates: make([]question.Record, 0, len(candidates)),
		Clusters:      make([]Cluster, 0),
		Stats: ScanStats{
			Candidates: len(candidates),
			Existing:   len(existing),
		},
	}

	total := len(candidates)
	for i, candidate := range candidates {
		if cluster, ok := scanOne(candidate, existing, cfg, &res.Stats); ok {
			if best, _ := cluster.Best(); o.owner != "" && best.Existing.Creator != o.owner {
				cluster.ReadOnly = true
				cluster.Reasons = append(cluster.Reasons, "Existing question belongs to another creator; it can only be kept alongside")
			}
			res.Clusters = append(res.Clusters, cluster)
		} else {
			res.NonDuplicates = append(res.NonDuplicates, candidate)
		}

		if o.progress != nil {
			o.progress((i + 1) * 100 / total)
		}
		if (i+1)%cfg.YieldEvery == 0 && i+1 < total {
			o.yield()
			if err := ctx.Err(); err != nil {
				return ScanResult{}, fmt.Errorf("scan cancelled after %d of %d candidates: %w", i+1, total, err)
			}
		}
	}
	if total == 0 && o.progress != nil {
		o.progress(100)
	}

	res.Stats.Duplicates = len(res.Clusters)
	res.Stats.Elapsed = time.Since(started)
	return res, nil
}

// FindMatches ranks the existing records that match candidate, best first.
func FindMatches(candidate question.Record, existing []question.Record, cfg Config) []Match {
	var stats ScanStats
	return findMatches(candidate, existing, cfg, &stats)
}

func scanOne(candidate question.Record, existing []question.Record, cfg Config, stats *ScanStats) (Cluster, bool) {
	if !candidate.HasText() {
		stats.SkippedNoText++
		return Cluster{}, false
	}

	matches := findMatches(candidate, existing, cfg, stats)
	if len(matches) == 0 || matches[0].Similarity.Score < cfg.DuplicateScore {
		return Cluster{}, false
	}

	best := matches[0]
	reasons := make([]string, 0, len(best.Similarity.Reasons)+1)
	reasons = append(reasons, fmt.Sprintf("Similar to existing question: %q", excerpt(best.Existing.Text, excerptLength)))
	reasons = append(reasons, best.Similarity.Reasons...)

	return Cluster{
		Candidate:   candidate,
		Matches:     matches,
		IsDuplicate: true,
		Reasons:     reasons,
	}, true
}

func findMatches(candidate question.Record, existing []question.Record, cfg Config, stats *ScanStats) []Match {
	matches := make([]Match, 0)
	for _, ex := range existing {
		if candidate.ID != "" && candidate.ID == ex.ID {
			stats.SkippedSelf++
			continue
		}
		if !cfg.CheckAcrossParts && candidate.Part != ex.Part {
			stats.SkippedCrossPart++
			continue
		}

		sim := Score(candidate, ex, cfg)
		stats.Comparisons++
		stats.RecoveredFailures += sim.Detail.Recovered
		if sim.MatchCount >= cfg.MinMatches {
			matches = append(matches, Match{Existing: ex, Similarity: sim})
		}
	}

	// Stable sort keeps corpus order among equal scores.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity.Score > matches[j].Similarity.Score
	})
	if len(matches) > cfg.TopMatches {
		matches = matches[:cfg.TopMatches]
	}
	return matches
}

func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
