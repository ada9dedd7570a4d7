// Package reconcile maps drifting upstream column names onto the internal
// announcement schema using fuzzy label matching.
package reconcile

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agext/levenshtein"
	"golang.org/x/text/width"
)

// DefaultThreshold is the minimum similarity (0-100) for a column to be accepted.
const DefaultThreshold = 82.0

// normalizeLabel folds full-width characters, lowercases, and strips
// whitespace, punctuation, symbols and underscores.
// "股票代码" → "股票代码", "Ｓｅｃ_Code" → "seccode", "PDF 链接" → "pdf链接"
func normalizeLabel(s string) string {
	s = strings.ToLower(width.Fold.String(s))
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Containment only counts when the shorter label carries at least this much
// weight (a Han rune weighs 2, any other rune 1) and is at least a third of
// the longer label's runes. "代码" and "code" qualify; "t" and "标" do not.
const (
	minContainedWeight = 4
	minContainedRatio  = 3
)

// Similarity scores two labels on a 0-100 scale.
// Exact normalized equality scores 100. Containment of one in the other
// scores 90 plus up to 10 by length ratio, provided the contained label is
// substantial. Anything else is the rune-level Levenshtein similarity
// scaled to 100.
func Similarity(a, b string) float64 {
	na, nb := normalizeLabel(a), normalizeLabel(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 100
	}

	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		inner, outer := na, nb
		if utf8.RuneCountInString(inner) > utf8.RuneCountInString(outer) {
			inner, outer = outer, inner
		}
		shorter, longer := utf8.RuneCountInString(inner), utf8.RuneCountInString(outer)
		if labelWeight(inner) >= minContainedWeight && shorter*minContainedRatio >= longer {
			return 90 + 10*float64(shorter)/float64(longer)
		}
	}

	return 100 * levenshtein.Similarity(na, nb, nil)
}

func labelWeight(s string) int {
	w := 0
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			w += 2
		} else {
			w++
		}
	}
	return w
}

// Match finds the best column for a field given its ordered candidate labels.
// Every candidate is scored against every column and the single highest
// pair wins; ties go to the earlier candidate, then the earlier column.
// The match is accepted only if its score is at least threshold.
func Match(columns, candidates []string, threshold float64) (string, float64, bool) {
	best, bestScore := "", -1.0
	for _, cand := range candidates {
		for _, col := range columns {
			score := Similarity(col, cand)
			if score > bestScore {
				best, bestScore = col, score
			}
		}
	}
	if bestScore < 0 || bestScore < threshold {
		return "", max(bestScore, 0), false
	}
	return best, bestScore, true
}
