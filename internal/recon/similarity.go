package recon

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Similarity algorithm names accepted by Config.SimilarityAlgorithm.
const (
	SimilarityToken       = "token"
	SimilarityLevenshtein = "levenshtein"
	SimilarityHybrid      = "hybrid"
)

// similarityFunc scores how alike two descriptions are, in [0,1].
type similarityFunc func(a, b string) float64

func similarityFor(algorithm string) similarityFunc {
	switch algorithm {
	case SimilarityToken:
		return tokenSimilarity
	case SimilarityLevenshtein:
		return levenshteinSimilarity
	default:
		return hybridSimilarity
	}
}

// tokenSimilarity is the Jaccard overlap of the case-folded token sets of the
// two descriptions.
func tokenSimilarity(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToUpper(s)) {
		tok = strings.Trim(tok, ".,;:()[]\"'")
		if tok != "" {
			set[tok] = struct{}{}
		}
	}
	return set
}

// levenshteinSimilarity is 1 minus the edit distance normalized by the longer
// description length.
func levenshteinSimilarity(a, b string) float64 {
	ua := strings.ToUpper(strings.TrimSpace(a))
	ub := strings.ToUpper(strings.TrimSpace(b))
	if ua == ub {
		return 1
	}
	maxLen := len([]rune(ua))
	if l := len([]rune(ub)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(ua, ub)
	sim := 1 - float64(dist)/float64(maxLen)
	if sim < 0 {
		return 0
	}
	return sim
}

// hybridSimilarity takes the larger of the token and edit-distance scores, so
// reordered words and small typos both score high.
func hybridSimilarity(a, b string) float64 {
	ts := tokenSimilarity(a, b)
	ls := levenshteinSimilarity(a, b)
	if ts > ls {
		return ts
	}
	return ls
}
