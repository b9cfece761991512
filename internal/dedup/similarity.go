package dedup

import (
	"math"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// bigramMetric is the Sørensen-Dice coefficient over character bigrams.
// Tests replace it to simulate metric failures.
var bigramMetric strutil.StringMetric = &metrics.SorensenDice{CaseSensitive: false, NgramSize: 2}

// Similarity returns the case-insensitive bigram similarity of a and b in
// [0,1]. Blank input on either side yields 0.
func Similarity(a, b string) float64 {
	sim, _ := similarity(a, b)
	return sim
}

// similarity also reports whether the metric failed and the exact-match
// fallback was used instead.
func similarity(a, b string) (sim float64, recovered bool) {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return 0, false
	}
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if a == b {
		return 1, false
	}
	// Fixed argument order keeps the result symmetric whatever the metric does.
	if a > b {
		a, b = b, a
	}

	defer func() {
		if r := recover(); r != nil {
			sim, recovered = exactMatch(a, b), true
		}
	}()

	sim = strutil.Similarity(a, b, bigramMetric)
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return exactMatch(a, b), true
	}
	return clamp01(sim), false
}

func exactMatch(a, b string) float64 {
	if a == b {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
