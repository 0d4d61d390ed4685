package pipeline

import (
	"sort"

	"dbregistry/internal/util"
)

// Suggestion pairs a name with its closest neighbour among the candidates.
type Suggestion struct {
	Name    string
	Closest string
	Score   float64
}

// SimilarNames lists pairs of distinct canonical names scoring at or above
// threshold. These are usually spellings no canonical rule covers yet.
func SimilarNames(names []string, threshold float64) []Suggestion {
	keys := make([]string, len(names))
	tokens := make([][]string, len(names))
	for i, n := range names {
		keys[i] = util.NormalizeName(n)
		tokens[i] = util.Tokenize(n)
	}

	var out []Suggestion
	for i := range names {
		for j := i + 1; j < len(names); j++ {
			if names[i] == names[j] {
				continue
			}
			score := scoreName(keys[i], keys[j], tokens[i], tokens[j])
			if score >= threshold {
				out = append(out, Suggestion{Name: names[i], Closest: names[j], Score: score})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Closest returns the best scoring candidate for query, or false when no
// candidate reaches threshold.
func Closest(query string, candidates []string, threshold float64) (Suggestion, bool) {
	key := util.NormalizeName(query)
	queryTokens := util.Tokenize(query)

	best := Suggestion{Name: query}
	for _, c := range candidates {
		if c == query {
			continue
		}
		score := scoreName(key, util.NormalizeName(c), queryTokens, util.Tokenize(c))
		if score > best.Score {
			best.Closest = c
			best.Score = score
		}
	}
	if best.Closest == "" || best.Score < threshold {
		return Suggestion{}, false
	}
	return best, true
}

func scoreName(query, candidate string, queryTokens, candidateTokens []string) float64 {
	dice := util.DiceCoefficient(query, candidate)
	if len(queryTokens) == 0 || len(candidateTokens) == 0 {
		return dice
	}

	set := map[string]struct{}{}
	for _, t := range candidateTokens {
		set[t] = struct{}{}
	}
	overlap := 0
	for _, t := range queryTokens {
		if _, ok := set[t]; ok {
			overlap++
		}
	}
	tokenScore := float64(overlap) / float64(len(queryTokens))
	return 0.65*dice + 0.35*tokenScore
}
