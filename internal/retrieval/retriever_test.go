package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// fakeMemoryStore serves canned vector matches and records access bumps.
type fakeMemoryStore struct {
	matches  []storage.VectorMatch
	accessed []string
}

func (f *fakeMemoryStore) Store(_ context.Context, _ *types.Memory) error { return nil }

func (f *fakeMemoryStore) Get(_ context.Context, id string) (*types.Memory, error) {
	for _, m := range f.matches {
		if m.Memory.ID == id {
			memory := m.Memory
			return &memory, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeMemoryStore) VectorSearch(_ context.Context, _ []float32, k int) ([]storage.VectorMatch, error) {
	if len(f.matches) > k {
		return f.matches[:k], nil
	}
	return f.matches, nil
}

func (f *fakeMemoryStore) MarkSuperseded(_ context.Context, _, _ string, _ float64) error {
	return nil
}

func (f *fakeMemoryStore) IncrementAccessCount(_ context.Context, id string) error {
	f.accessed = append(f.accessed, id)
	return nil
}

func (f *fakeMemoryStore) Close() error { return nil }

// fakeEmbedder returns a fixed vector or an error.
type fakeEmbedder struct {
	embedding []float32
	err       error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return f.embedding, f.err
}

func (f *fakeEmbedder) GetEmbeddingModel() string { return "fake" }

func retrievalConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		Weights:             config.DefaultWeights(),
		PrefilterK:          100,
		ResultLimit:         5,
		RecencyHalfLifeDays: 30,
		CoherenceWindow:     30 * time.Minute,
		CoherenceFloor:      0.3,
	}
}

func matchWith(id string, similarity float64, m types.Memory) storage.VectorMatch {
	m.ID = id
	return storage.VectorMatch{Memory: m, Similarity: similarity}
}

func TestRetrieveRanksBySimilarityWhenOtherSignalsEqual(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	base := types.Memory{UserID: "u1", CreatedAt: now.Add(-time.Hour), Importance: 0.5, Confidence: 0.9}

	store := &fakeMemoryStore{matches: []storage.VectorMatch{
		matchWith("mem:low", 0.2, base),
		matchWith("mem:high", 0.9, base),
		matchWith("mem:mid", 0.5, base),
	}}

	r, err := New(store, &fakeEmbedder{embedding: []float32{1, 0}}, retrievalConfig())
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), Query{UserID: "u1", Text: "invoices", Now: now})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "mem:high", results[0].MemoryID)
	assert.Equal(t, "mem:mid", results[1].MemoryID)
	assert.Equal(t, "mem:low", results[2].MemoryID)

	// Every candidate carries its full signal breakdown.
	assert.Equal(t, 0.9, results[0].Signals.SemanticSimilarity)
	assert.Greater(t, results[0].RelevanceScore, results[1].RelevanceScore)
}

func TestRetrieveEntityOverlapBeatsSlightSimilarityEdge(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	base := types.Memory{UserID: "u1", CreatedAt: now.Add(-time.Hour), Importance: 0.5}

	overlapping := base
	overlapping.EntityIDs = []string{"ent:customer:1"}

	store := &fakeMemoryStore{matches: []storage.VectorMatch{
		matchWith("mem:similar", 0.85, base),
		matchWith("mem:entity", 0.80, overlapping),
	}}

	r, err := New(store, &fakeEmbedder{embedding: []float32{1, 0}}, retrievalConfig())
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), Query{
		UserID: "u1", Text: "kai media invoices", EntityIDs: []string{"ent:customer:1"}, Now: now,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	// 0.25 * full overlap outweighs 0.40 * 0.05 similarity edge.
	assert.Equal(t, "mem:entity", results[0].MemoryID)
}

func TestRetrieveTieBreaksOnMemoryID(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	base := types.Memory{UserID: "u1", CreatedAt: now.Add(-time.Hour), Importance: 0.5}

	store := &fakeMemoryStore{matches: []storage.VectorMatch{
		matchWith("mem:b", 0.7, base),
		matchWith("mem:a", 0.7, base),
	}}

	r, err := New(store, &fakeEmbedder{embedding: []float32{1, 0}}, retrievalConfig())
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), Query{UserID: "u1", Text: "q", Now: now})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "mem:a", results[0].MemoryID)
	assert.Equal(t, "mem:b", results[1].MemoryID)
}

func TestRetrieveFiltersOtherUsers(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	store := &fakeMemoryStore{matches: []storage.VectorMatch{
		matchWith("mem:mine", 0.5, types.Memory{UserID: "u1", CreatedAt: now}),
		matchWith("mem:theirs", 0.9, types.Memory{UserID: "u2", CreatedAt: now}),
		matchWith("mem:shared", 0.4, types.Memory{CreatedAt: now}),
	}}

	r, err := New(store, &fakeEmbedder{embedding: []float32{1, 0}}, retrievalConfig())
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), Query{UserID: "u1", Text: "q", Now: now})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, c := range results {
		assert.NotEqual(t, "mem:theirs", c.MemoryID)
	}
}

func TestRetrieveHonorsResultLimitAndBumpsAccess(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	base := types.Memory{UserID: "u1", CreatedAt: now, Importance: 0.5}

	store := &fakeMemoryStore{}
	for _, id := range []string{"mem:1", "mem:2", "mem:3", "mem:4", "mem:5", "mem:6", "mem:7"} {
		store.matches = append(store.matches, matchWith(id, 0.5, base))
	}

	cfg := retrievalConfig()
	cfg.ResultLimit = 3
	r, err := New(store, &fakeEmbedder{embedding: []float32{1, 0}}, cfg)
	require.NoError(t, err)

	results, err := r.Retrieve(context.Background(), Query{UserID: "u1", Text: "q", Now: now})
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Len(t, store.accessed, 3)
}

func TestRetrieveEmbedFailureIsDistinctError(t *testing.T) {
	store := &fakeMemoryStore{}
	r, err := New(store, &fakeEmbedder{err: errors.New("model unavailable")}, retrievalConfig())
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), Query{UserID: "u1", Text: "q"})
	assert.ErrorIs(t, err, ErrEmbedding)
}

func TestRetrieveUsesImportanceFn(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	base := types.Memory{UserID: "u1", CreatedAt: now, Importance: 0.8}

	store := &fakeMemoryStore{matches: []storage.VectorMatch{matchWith("mem:x", 0.5, base)}}
	r, err := New(store, &fakeEmbedder{embedding: []float32{1, 0}}, retrievalConfig())
	require.NoError(t, err)
	r.ImportanceFn = func(_ *types.Memory, _ time.Time) float64 { return 0.1 }

	results, err := r.Retrieve(context.Background(), Query{UserID: "u1", Text: "q", Now: now})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0.1, results[0].Signals.Importance)
}
