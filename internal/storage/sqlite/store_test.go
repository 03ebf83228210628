package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUpsertAndFindEntity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entity := &types.Entity{
		Name:           "Kai Media",
		NormalizedName: "kai media",
		Type:           types.EntityTypeCustomer,
	}
	stored, err := store.UpsertEntity(ctx, entity)
	require.NoError(t, err)
	require.NotEmpty(t, stored.ID)

	found, err := store.FindCanonicalByName(ctx, "kai media")
	require.NoError(t, err)
	assert.Equal(t, stored.ID, found.ID)
	assert.Equal(t, "Kai Media", found.Name)

	got, err := store.GetEntity(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, types.EntityTypeCustomer, got.Type)
}

func TestFindEntityNotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.FindCanonicalByName(ctx, "nobody")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	_, err = store.GetEntity(ctx, "ent:person:missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestUpsertEntityConvergesOnOneRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.UpsertEntity(ctx, &types.Entity{
		Name:           "Kai Media",
		NormalizedName: "kai media",
		Type:           types.EntityTypeCustomer,
	})
	require.NoError(t, err)

	// A second upsert of the same (type, normalized_name) must return the
	// winning row, not create a duplicate.
	second, err := store.UpsertEntity(ctx, &types.Entity{
		Name:           "Kai Media GmbH",
		NormalizedName: "kai media",
		Type:           types.EntityTypeCustomer,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestAliasRoundtrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entity, err := store.UpsertEntity(ctx, &types.Entity{
		Name:           "Kai Media",
		NormalizedName: "kai media",
		Type:           types.EntityTypeCustomer,
	})
	require.NoError(t, err)

	require.NoError(t, store.UpsertAlias(ctx, &types.Alias{
		UserID:            "u1",
		Mention:           "KM",
		NormalizedMention: "km",
		EntityID:          entity.ID,
		Confirmations:     2,
	}))

	alias, target, err := store.FindAlias(ctx, "u1", "km")
	require.NoError(t, err)
	assert.Equal(t, entity.ID, alias.EntityID)
	assert.Equal(t, 2, alias.Confirmations)
	assert.Equal(t, "Kai Media", target.Name)

	// Aliases are per user.
	_, _, err = store.FindAlias(ctx, "u2", "km")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestUpsertAliasRepointResetsConfirmations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	corp, err := store.UpsertEntity(ctx, &types.Entity{
		Name:           "Acme Corp",
		NormalizedName: "acme corp",
		Type:           types.EntityTypeCustomer,
	})
	require.NoError(t, err)
	labs, err := store.UpsertEntity(ctx, &types.Entity{
		Name:           "Acme Labs",
		NormalizedName: "acme labs",
		Type:           types.EntityTypeCustomer,
	})
	require.NoError(t, err)

	require.NoError(t, store.UpsertAlias(ctx, &types.Alias{
		UserID: "u1", Mention: "acme", NormalizedMention: "acme",
		EntityID: corp.ID, Confirmations: 5,
	}))

	// Re-pointing the surface form to a different entity starts its
	// confirmation count over; trust in the old mapping does not transfer.
	require.NoError(t, store.UpsertAlias(ctx, &types.Alias{
		UserID: "u1", Mention: "acme", NormalizedMention: "acme",
		EntityID: labs.ID, Confirmations: 1,
	}))

	alias, target, err := store.FindAlias(ctx, "u1", "acme")
	require.NoError(t, err)
	assert.Equal(t, labs.ID, alias.EntityID)
	assert.Equal(t, 1, alias.Confirmations)
	assert.Equal(t, "Acme Labs", target.Name)

	// Same-entity upserts still keep the highest count seen.
	require.NoError(t, store.UpsertAlias(ctx, &types.Alias{
		UserID: "u1", Mention: "acme", NormalizedMention: "acme",
		EntityID: labs.ID, Confirmations: 0,
	}))
	alias, _, err = store.FindAlias(ctx, "u1", "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, alias.Confirmations)
}

func TestFindCanonicalByNameIsDeterministicAcrossTypes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// The same normalized name may exist under two entity types; the lookup
	// must not depend on scan order.
	a, err := store.UpsertEntity(ctx, &types.Entity{
		Name: "Mercury", NormalizedName: "mercury", Type: types.EntityTypeCustomer,
	})
	require.NoError(t, err)
	b, err := store.UpsertEntity(ctx, &types.Entity{
		Name: "Mercury", NormalizedName: "mercury", Type: types.EntityTypeProduct,
	})
	require.NoError(t, err)
	require.NotEqual(t, a.ID, b.ID)

	want := a.ID
	if b.ID < want {
		want = b.ID
	}
	for i := 0; i < 5; i++ {
		found, err := store.FindCanonicalByName(ctx, "mercury")
		require.NoError(t, err)
		assert.Equal(t, want, found.ID)
	}
}

func TestFuzzySearchRanksAndFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	names := []string{"kai media", "kay media", "zephyr logistics"}
	for _, n := range names {
		_, err := store.UpsertEntity(ctx, &types.Entity{
			Name:           n,
			NormalizedName: n,
			Type:           types.EntityTypeCustomer,
		})
		require.NoError(t, err)
	}

	matches, err := store.FuzzySearch(ctx, "kai medai", 0.3, 10)
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	assert.Equal(t, "kai media", matches[0].Entity.NormalizedName)
	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, matches[i].Score, matches[i-1].Score)
		assert.NotEqual(t, "zephyr logistics", matches[i].Entity.NormalizedName)
	}
}

func TestMemoryRoundtripWithEmbedding(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	memory := &types.Memory{
		Content:    "Kai Media prefers monthly invoicing",
		UserID:     "u1",
		EntityIDs:  []string{"ent:customer:a"},
		Embedding:  []float32{0.1, 0.2, 0.3},
		Importance: 0.6,
		Confidence: 0.9,
	}
	require.NoError(t, store.Store(ctx, memory))
	require.NotEmpty(t, memory.ID)

	got, err := store.Get(ctx, memory.ID)
	require.NoError(t, err)
	assert.Equal(t, memory.Content, got.Content)
	assert.Equal(t, []string{"ent:customer:a"}, got.EntityIDs)
	assert.InDeltaSlice(t, []float32{0.1, 0.2, 0.3}, got.Embedding, 1e-6)
}

func TestVectorSearchOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	memories := []*types.Memory{
		{ID: "mem:a", Content: "far", Embedding: []float32{0, 1, 0}},
		{ID: "mem:b", Content: "close", Embedding: []float32{1, 0.1, 0}},
		{ID: "mem:c", Content: "exact", Embedding: []float32{1, 0, 0}},
	}
	for _, m := range memories {
		require.NoError(t, store.Store(ctx, m))
	}

	matches, err := store.VectorSearch(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "mem:c", matches[0].Memory.ID)
	assert.Equal(t, "mem:b", matches[1].Memory.ID)
	assert.Greater(t, matches[0].Similarity, matches[1].Similarity)
}

func TestVectorSearchSkipsDimensionMismatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, &types.Memory{
		ID: "mem:short", Content: "short", Embedding: []float32{1, 0},
	}))
	require.NoError(t, store.Store(ctx, &types.Memory{
		ID: "mem:full", Content: "full", Embedding: []float32{1, 0, 0},
	}))

	matches, err := store.VectorSearch(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "mem:full", matches[0].Memory.ID)
}

func TestMarkSuperseded(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	loser := &types.Memory{ID: "mem:loser", Content: "status open", Importance: 0.8}
	require.NoError(t, store.Store(ctx, loser))

	require.NoError(t, store.MarkSuperseded(ctx, "mem:loser", "mem:winner", 0.5))

	got, err := store.Get(ctx, "mem:loser")
	require.NoError(t, err)
	assert.Equal(t, "mem:winner", got.SupersededByID)
	assert.InDelta(t, 0.4, got.Importance, 1e-9)
	require.NotNil(t, got.DecayFlaggedAt)

	assert.True(t, errors.Is(store.MarkSuperseded(ctx, "mem:absent", "x", 0.5), storage.ErrNotFound))
}

func TestIncrementAccessCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, &types.Memory{ID: "mem:x", Content: "hello"}))

	require.NoError(t, store.IncrementAccessCount(ctx, "mem:x"))
	require.NoError(t, store.IncrementAccessCount(ctx, "mem:x"))

	got, err := store.Get(ctx, "mem:x")
	require.NoError(t, err)
	assert.Equal(t, 2, got.AccessCount)
	require.NotNil(t, got.LastAccessedAt)

	assert.True(t, errors.Is(store.IncrementAccessCount(ctx, "mem:absent"), storage.ErrNotFound))
}

func TestDomainRecordsAndFacts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SeedDomainRecord(ctx, storage.DomainRecord{
		ExternalID:     "cust-42",
		Name:           "Kai Media",
		NormalizedName: "kai media",
		EntityType:     types.EntityTypeCustomer,
	}))
	require.NoError(t, store.SeedDomainFact(ctx, types.DomainFact{
		EntityID:   "cust-42",
		EntityType: types.EntityTypeCustomer,
		Topic:      "invoicing",
		Value:      "monthly",
		ObservedAt: time.Now().UTC(),
	}))

	record, err := store.FindDomainRecord(ctx, "kai media")
	require.NoError(t, err)
	assert.Equal(t, "cust-42", record.ExternalID)

	facts, err := store.QueryDomainFacts(ctx, types.EntityTypeCustomer, "cust-42")
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "monthly", facts[0].Value)

	_, err = store.FindDomainRecord(ctx, "unknown co")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}
