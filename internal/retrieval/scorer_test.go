package retrieval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/pkg/types"
)

func TestNewScorerRejectsInvalidWeights(t *testing.T) {
	_, err := NewScorer(config.Weights{SemanticSimilarity: 0.9, EntityOverlap: 0.9})
	assert.Error(t, err)
}

func TestScoreIsWeightedSum(t *testing.T) {
	scorer, err := NewScorer(config.DefaultWeights())
	require.NoError(t, err)

	score := scorer.Score(types.Signals{
		SemanticSimilarity: 1,
		EntityOverlap:      1,
		Recency:            1,
		TemporalCoherence:  1,
		Importance:         1,
	})
	assert.InDelta(t, 1.0, score, 1e-9)

	score = scorer.Score(types.Signals{SemanticSimilarity: 1})
	assert.InDelta(t, 0.40, score, 1e-9)

	score = scorer.Score(types.Signals{EntityOverlap: 0.5, Importance: 1})
	assert.InDelta(t, 0.25*0.5+0.05, score, 1e-9)
}

func TestScoreClampsOutOfRangeSignals(t *testing.T) {
	scorer, err := NewScorer(config.DefaultWeights())
	require.NoError(t, err)

	score := scorer.Score(types.Signals{
		SemanticSimilarity: 2.0,
		EntityOverlap:      -1.0,
		Recency:            1.5,
		TemporalCoherence:  1,
		Importance:         1,
	})
	assert.LessOrEqual(t, score, 1.0)
	assert.GreaterOrEqual(t, score, 0.0)
}

func TestSemanticSignal(t *testing.T) {
	assert.Equal(t, 0.75, SemanticSignal(0.75))
	assert.Equal(t, 0.0, SemanticSignal(-0.3))
	assert.Equal(t, 1.0, SemanticSignal(1.2))
}

func TestEntityOverlapSignal(t *testing.T) {
	assert.Equal(t, 1.0, EntityOverlapSignal([]string{"a", "b"}, []string{"b", "a"}))
	assert.InDelta(t, 1.0/3.0, EntityOverlapSignal([]string{"a", "b"}, []string{"a", "c"}), 1e-9)
	assert.Equal(t, 0.0, EntityOverlapSignal(nil, []string{"a"}))
	assert.Equal(t, 0.0, EntityOverlapSignal([]string{"a"}, nil))
	assert.Equal(t, 0.0, EntityOverlapSignal([]string{"a"}, []string{"b"}))
}

func TestRecencySignalHalfLife(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 1.0, RecencySignal(now, now, 30))
	assert.InDelta(t, 0.5, RecencySignal(now.AddDate(0, 0, -30), now, 30), 1e-9)
	assert.InDelta(t, 0.25, RecencySignal(now.AddDate(0, 0, -60), now, 30), 1e-9)
	assert.Equal(t, 0.0, RecencySignal(time.Time{}, now, 30))
	// A future timestamp scores full recency rather than above 1.
	assert.Equal(t, 1.0, RecencySignal(now.Add(time.Hour), now, 30))
}

func TestCoherenceSignal(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	window := 30 * time.Minute

	assert.Equal(t, 1.0, CoherenceSignal(now.Add(-2*time.Hour), now, "s1", "s1", window, 0.3))
	assert.Equal(t, 1.0, CoherenceSignal(now.Add(-10*time.Minute), now, "s1", "s2", window, 0.3))
	assert.Equal(t, 0.3, CoherenceSignal(now.Add(-2*time.Hour), now, "s1", "s2", window, 0.3))
	assert.Equal(t, 0.3, CoherenceSignal(now.Add(-2*time.Hour), now, "", "", window, 0.3))
	// Empty sessions never count as the same session.
	assert.Equal(t, 0.3, CoherenceSignal(time.Time{}, now, "", "", window, 0.3))
}
