package sqlite

import "strings"

// trigramSet builds the set of 3-grams for a normalized string, padded with
// two leading and one trailing space the way pg_trgm does, so the SQLite
// backend ranks names consistently with the Postgres backend's similarity().
func trigramSet(s string) map[string]struct{} {
	s = strings.ToLower(strings.TrimSpace(s))
	set := make(map[string]struct{})
	if s == "" {
		return set
	}

	// Padding each word separately matches pg_trgm word-boundary behavior.
	for _, word := range strings.Fields(s) {
		padded := "  " + word + " "
		for i := 0; i+3 <= len(padded); i++ {
			set[padded[i:i+3]] = struct{}{}
		}
	}

	return set
}

// trigramSimilarity is the Jaccard similarity of two trigram sets in [0,1].
func trigramSimilarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for t := range a {
		if _, ok := b[t]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}

	return float64(intersection) / float64(union)
}
