package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrigramSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want func(t *testing.T, got float64)
	}{
		{
			"identical strings",
			"kai media", "kai media",
			func(t *testing.T, got float64) { assert.Equal(t, 1.0, got) },
		},
		{
			"case insensitive",
			"Kai Media", "kai media",
			func(t *testing.T, got float64) { assert.Equal(t, 1.0, got) },
		},
		{
			"close misspelling scores high",
			"kai media", "kai medai",
			func(t *testing.T, got float64) { assert.Greater(t, got, 0.4) },
		},
		{
			"unrelated strings score low",
			"kai media", "zephyr logistics",
			func(t *testing.T, got float64) { assert.Less(t, got, 0.1) },
		},
		{
			"empty string scores zero",
			"kai media", "",
			func(t *testing.T, got float64) { assert.Equal(t, 0.0, got) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := trigramSimilarity(trigramSet(tt.a), trigramSet(tt.b))
			tt.want(t, got)
		})
	}
}

func TestTrigramSimilarityOrdering(t *testing.T) {
	query := trigramSet("kai media")
	closer := trigramSimilarity(query, trigramSet("kay media"))
	farther := trigramSimilarity(query, trigramSet("kiva mortar"))
	assert.Greater(t, closer, farther)
}
