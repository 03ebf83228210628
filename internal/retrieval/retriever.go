package retrieval

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// ErrEmbedding indicates the query embedding could not be produced. Callers
// may degrade to entity-only retrieval or surface the failure; the retriever
// itself does not guess.
var ErrEmbedding = errors.New("retrieval: query embedding failed")

// Query carries everything the retriever needs to rank memories for one
// request. Now is explicit so scoring is deterministic under test.
type Query struct {
	UserID    string
	Text      string
	SessionID string

	// EntityIDs are the canonical entities resolved from the query text.
	EntityIDs []string

	// Now anchors the recency and coherence signals. Zero means time.Now.
	Now time.Time
}

// Retriever runs the two-phase retrieval: vector pre-filter, then full
// multi-signal scoring and ranking.
type Retriever struct {
	memories storage.MemoryStore
	embedder llm.EmbeddingGenerator
	scorer   *Scorer
	cfg      config.RetrievalConfig

	// ImportanceFn derives the importance signal from a memory. Nil means
	// the stored importance is used as-is; the pipeline installs a
	// decay-aware function here.
	ImportanceFn func(memory *types.Memory, now time.Time) float64
}

// New constructs a Retriever. Weights are validated here, once, so a
// misconfigured deployment fails at startup rather than per query.
func New(memories storage.MemoryStore, embedder llm.EmbeddingGenerator, cfg config.RetrievalConfig) (*Retriever, error) {
	scorer, err := NewScorer(cfg.Weights)
	if err != nil {
		return nil, err
	}
	return &Retriever{
		memories: memories,
		embedder: embedder,
		scorer:   scorer,
		cfg:      cfg,
	}, nil
}

// Weights returns the active weight set, for provenance reporting.
func (r *Retriever) Weights() config.Weights {
	return r.scorer.Weights()
}

// Retrieve returns up to cfg.ResultLimit memories ranked by combined
// relevance, score descending with memory ID as the deterministic
// tie-breaker. Every returned candidate carries its full signal breakdown so
// callers can always answer why a memory ranked where it did.
func (r *Retriever) Retrieve(ctx context.Context, query Query) ([]types.MemoryCandidate, error) {
	now := query.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if r.embedder == nil {
		return nil, ErrEmbedding
	}
	embedding, err := r.embedder.Embed(ctx, query.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	matches, err := r.memories.VectorSearch(ctx, embedding, r.cfg.PrefilterK)
	if err != nil {
		return nil, fmt.Errorf("retrieval: vector search: %w", err)
	}

	candidates := make([]types.MemoryCandidate, 0, len(matches))
	for _, match := range matches {
		memory := match.Memory

		// Memories belong to their user; unowned memories are shared.
		if memory.UserID != "" && query.UserID != "" && memory.UserID != query.UserID {
			continue
		}

		recencyAnchor := memory.CreatedAt
		if memory.LastAccessedAt != nil && memory.LastAccessedAt.After(recencyAnchor) {
			recencyAnchor = *memory.LastAccessedAt
		}

		importance := memory.Importance
		if r.ImportanceFn != nil {
			importance = r.ImportanceFn(&memory, now)
		}

		signals := types.Signals{
			SemanticSimilarity: SemanticSignal(match.Similarity),
			EntityOverlap:      EntityOverlapSignal(query.EntityIDs, memory.EntityIDs),
			Recency:            RecencySignal(recencyAnchor, now, r.cfg.RecencyHalfLifeDays),
			TemporalCoherence:  CoherenceSignal(memory.CreatedAt, now, memory.SessionID, query.SessionID, r.cfg.CoherenceWindow, r.cfg.CoherenceFloor),
			Importance:         importance,
		}

		candidates = append(candidates, types.MemoryCandidate{
			MemoryID:       memory.ID,
			MemoryType:     memory.Type,
			Signals:        signals,
			Confidence:     memory.Confidence,
			RelevanceScore: r.scorer.Score(signals),
		})
	}

	slices.SortStableFunc(candidates, func(a, b types.MemoryCandidate) int {
		if a.RelevanceScore != b.RelevanceScore {
			if a.RelevanceScore > b.RelevanceScore {
				return -1
			}
			return 1
		}
		return strings.Compare(a.MemoryID, b.MemoryID)
	})

	limit := r.cfg.ResultLimit
	if limit <= 0 {
		limit = 5
	}
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	// Access counting feeds the recency signal on future queries. It must
	// never fail a retrieval that already succeeded.
	for _, c := range candidates {
		_ = r.memories.IncrementAccessCount(ctx, c.MemoryID)
	}

	return candidates, nil
}
