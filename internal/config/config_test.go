package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultWeightsAreValid(t *testing.T) {
	w := DefaultWeights()
	require.NoError(t, w.Validate())
	assert.Equal(t, 0.40, w.SemanticSimilarity)
	assert.Equal(t, 0.25, w.EntityOverlap)
	assert.Equal(t, 0.20, w.Recency)
	assert.Equal(t, 0.10, w.TemporalCoherence)
	assert.Equal(t, 0.05, w.Importance)
}

func TestWeightsValidate(t *testing.T) {
	tests := []struct {
		name    string
		weights Weights
		wantErr bool
	}{
		{"defaults", DefaultWeights(), false},
		{"uniform", Weights{0.2, 0.2, 0.2, 0.2, 0.2}, false},
		{"sum below one", Weights{0.4, 0.25, 0.2, 0.1, 0.0}, true},
		{"sum above one", Weights{0.5, 0.25, 0.2, 0.1, 0.05}, true},
		{"negative weight", Weights{0.5, 0.45, 0.2, 0.1, -0.25}, true},
		{"weight above one", Weights{1.2, -0.05, -0.05, -0.05, -0.05}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.weights.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Storage.StorageEngine)
	assert.Equal(t, 0.7, cfg.Resolver.FuzzyThreshold)
	assert.Equal(t, 0.05, cfg.Resolver.FuzzyMargin)
	assert.Equal(t, 300*time.Millisecond, cfg.Resolver.CoreferenceTimeout)
	assert.Equal(t, 100, cfg.Retrieval.PrefilterK)
	assert.Equal(t, 5, cfg.Retrieval.ResultLimit)
	assert.Equal(t, 0.8, cfg.Reconcile.EntityOverlapThreshold)
	assert.Equal(t, 0.85, cfg.Reconcile.SimilarityThreshold)
	assert.Equal(t, 0.15, cfg.Reconcile.ConfidenceMargin)
	assert.Equal(t, 0.5, cfg.Reconcile.DecayPenalty)
	assert.NoError(t, cfg.Retrieval.Weights.Validate())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("RECALL_FUZZY_THRESHOLD", "0.8")
	t.Setenv("RECALL_RESULT_LIMIT", "10")
	t.Setenv("RECALL_COREFERENCE_TIMEOUT", "150ms")
	t.Setenv("RECALL_STORAGE_ENGINE", "postgres")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 0.8, cfg.Resolver.FuzzyThreshold)
	assert.Equal(t, 10, cfg.Retrieval.ResultLimit)
	assert.Equal(t, 150*time.Millisecond, cfg.Resolver.CoreferenceTimeout)
	assert.Equal(t, "postgres", cfg.Storage.StorageEngine)
}

func TestLoadConfigUnparseableEnvFallsBack(t *testing.T) {
	t.Setenv("RECALL_RESULT_LIMIT", "many")
	t.Setenv("RECALL_FUZZY_THRESHOLD", "very")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Retrieval.ResultLimit)
	assert.Equal(t, 0.7, cfg.Resolver.FuzzyThreshold)
}

func TestLoadTuningFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	content := `
retrieval:
  weights:
    semantic_similarity: 0.5
    entity_overlap: 0.2
    recency: 0.2
    temporal_coherence: 0.05
    importance: 0.05
  prefilter_k: 50
  result_limit: 3
  recency_half_life_days: 14
  coherence_window: 10m
  coherence_floor: 0.2
resolver:
  fuzzy_threshold: 0.75
  fuzzy_margin: 0.1
  alias_base_confidence: 0.85
  alias_confirmation_step: 0.02
  coreference_timeout: 200ms
  bootstrap_timeout: 200ms
  cache_size: 256
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.LoadTuningFile(path))

	assert.Equal(t, 0.5, cfg.Retrieval.Weights.SemanticSimilarity)
	assert.Equal(t, 50, cfg.Retrieval.PrefilterK)
	assert.Equal(t, 3, cfg.Retrieval.ResultLimit)
	assert.Equal(t, 0.75, cfg.Resolver.FuzzyThreshold)
	assert.Equal(t, 0.1, cfg.Resolver.FuzzyMargin)
	assert.Equal(t, 200*time.Millisecond, cfg.Resolver.CoreferenceTimeout)
	// Sections absent from the file keep their defaults.
	assert.Equal(t, 0.15, cfg.Reconcile.ConfidenceMargin)
	assert.NoError(t, cfg.Retrieval.Weights.Validate())
}

func TestLoadTuningFilePartialSectionKeepsOtherFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	content := `
resolver:
  fuzzy_threshold: 0.8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.LoadTuningFile(path))

	assert.Equal(t, 0.8, cfg.Resolver.FuzzyThreshold)
	// Fields the file does not mention keep their defaults; a file tuning
	// one threshold must not zero the stage timeouts.
	assert.Equal(t, 0.05, cfg.Resolver.FuzzyMargin)
	assert.Equal(t, 300*time.Millisecond, cfg.Resolver.CoreferenceTimeout)
	assert.Equal(t, 300*time.Millisecond, cfg.Resolver.BootstrapTimeout)
	assert.Equal(t, 1024, cfg.Resolver.CacheSize)
	assert.NoError(t, cfg.Retrieval.Weights.Validate())
}

func TestLoadTuningFileViaEnvRejectsBadWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	content := `
retrieval:
  weights:
    semantic_similarity: 0.9
    entity_overlap: 0.9
    recency: 0.0
    temporal_coherence: 0.0
    importance: 0.0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("RECALL_TUNING_FILE", path)

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadTuningFileMissing(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Error(t, cfg.LoadTuningFile("/nonexistent/tuning.yaml"))
}
