package util

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	reQuotes     = regexp.MustCompile(`["'` + "`" + `«»“”‘’]`)
	reNonAllowed = regexp.MustCompile(`[^a-z0-9\-/\s.()&]`)
	reSpaces     = regexp.MustCompile(`\s+`)
)

// missingTokens are the literal spellings the exports use for an absent value.
var missingTokens = map[string]struct{}{
	"":    {},
	"na":  {},
	"n/a": {},
	"nan": {},
}

func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// Fold lower-cases input, strips diacritics and collapses whitespace. It is the
// key every name comparison in the pipeline runs on.
func Fold(input string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, input)
	if err != nil {
		folded = input
	}
	folded = strings.NewReplacer("–", "-", "—", "-").Replace(folded)
	return NormalizeSpaces(strings.ToLower(folded))
}

// NormalizeName reduces a database name to comparable tokens for similarity scoring.
func NormalizeName(input string) string {
	s := Fold(input)
	s = reQuotes.ReplaceAllString(s, " ")
	s = reNonAllowed.ReplaceAllString(s, " ")
	return NormalizeSpaces(s)
}

func Tokenize(input string) []string {
	norm := NormalizeName(input)
	parts := strings.Split(norm, " ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "().-/&")
		if len([]rune(p)) >= 2 {
			out = append(out, p)
		}
	}
	return out
}

func IsMissing(input string) bool {
	_, ok := missingTokens[strings.ToLower(strings.TrimSpace(input))]
	return ok
}

// Clean trims input and returns nil for any missing-value spelling.
func Clean(input string) *string {
	if IsMissing(input) {
		return nil
	}
	v := NormalizeSpaces(input)
	return &v
}

func StripQuotes(input string) string {
	return strings.TrimSpace(reQuotes.ReplaceAllString(input, ""))
}

func DiceCoefficient(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	pairs := func(s string) []string {
		r := []rune(s)
		if len(r) < 2 {
			return nil
		}
		out := make([]string, 0, len(r)-1)
		for i := 0; i < len(r)-1; i++ {
			out = append(out, string(r[i:i+2]))
		}
		return out
	}

	aPairs := pairs(a)
	bPairs := pairs(b)
	if len(aPairs) == 0 || len(bPairs) == 0 {
		return 0
	}

	bCount := map[string]int{}
	for _, p := range bPairs {
		bCount[p]++
	}
	inter := 0
	for _, p := range aPairs {
		if bCount[p] > 0 {
			inter++
			bCount[p]--
		}
	}

	return float64(2*inter) / float64(len(aPairs)+len(bPairs))
}
