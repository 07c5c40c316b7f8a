// Package gate holds the reformulation quality heuristics. A reformulation
// that is too short or lexically too close to its source is almost always a
// synonym substitution rather than a genuine restatement, so it is rejected
// before the user ever sees it.
package gate

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Thresholds for the quality heuristics.
const (
	// MinDraftChars / MinDraftWords reject source text with no signal.
	MinDraftChars = 80
	MinDraftWords = 15

	// MinReformulationChars rejects short answers regardless of overlap.
	MinReformulationChars = 180

	// MaxOverlapRatio rejects answers that reuse too many source tokens.
	MaxOverlapRatio = 0.62

	// MaxDraftChars bounds the text accepted for analysis.
	MaxDraftChars = 8000
)

// IsTooShortOrWeak reports whether the user's source text carries too little
// signal to be worth analyzing. Lengths count characters, not bytes, so
// accented text is measured the same as ASCII.
func IsTooShortOrWeak(text string) bool {
	t := strings.TrimSpace(text)
	if utf8.RuneCountInString(t) < MinDraftChars {
		return true
	}
	if len(strings.Fields(t)) < MinDraftWords {
		return true
	}
	return false
}

// ExceedsMaxDraft reports whether the text is longer than the analysis bound.
func ExceedsMaxDraft(text string) bool {
	return utf8.RuneCountInString(text) > MaxDraftChars
}

// OverlapRatio returns |tokens(a) ∩ tokens(b)| / |tokens(a)|, a directional,
// order-independent lexical overlap measure. Returns 0 when either side has
// no tokens.
func OverlapRatio(a, b string) float64 {
	tokensA := tokenize(a)
	tokensB := tokenize(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	setB := make(map[string]struct{}, len(tokensB))
	for _, w := range tokensB {
		setB[w] = struct{}{}
	}

	hit := 0
	for _, w := range tokensA {
		if _, ok := setB[w]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(tokensA))
}

// IsWeakReformulation reports whether a candidate reformulation should be
// rejected: too short, or too lexically close to the original.
func IsWeakReformulation(original, candidate string) bool {
	c := strings.TrimSpace(candidate)
	if utf8.RuneCountInString(c) < MinReformulationChars {
		return true
	}
	if OverlapRatio(original, c) > MaxOverlapRatio {
		return true
	}
	return false
}

// tokenize lower-cases, maps every non-letter/non-digit rune to a space, and
// splits on whitespace, dropping empties.
func tokenize(s string) []string {
	normalized := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Fields(normalized)
}
