// Package engine composes the resolver, retriever, and reconciler into the
// single pipeline entry point. The coordinator owns cross-stage policy:
// ambiguity short-circuits the whole request, inference failures degrade a
// stage rather than the turn while transport failures surface as errors, and
// every answer leaves with its provenance.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/reconcile"
	"github.com/scrypster/recall/internal/resolver"
	"github.com/scrypster/recall/internal/retrieval"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// Coordinator wires the pipeline stages together.
type Coordinator struct {
	resolver   *resolver.Resolver
	retriever  *retrieval.Retriever
	reconciler *reconcile.Reconciler
	store      storage.Store
	embedder   llm.EmbeddingGenerator
}

// New builds the full pipeline from a store, an LLM provider, and config.
// The provider may be nil for deployments without a local model: the
// coreference stage and conflict detection then always decline, and
// retrieval degrades to entity resolution only.
func New(store storage.Store, provider llm.Provider, cfg *config.Config) (*Coordinator, error) {
	var coref llm.CoreferenceResolver
	var judge llm.ContradictionJudge
	var embedder llm.EmbeddingGenerator
	if provider != nil {
		coref = provider
		judge = provider
		embedder = provider
	}

	res, err := resolver.New(store, store, coref, cfg.Resolver)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	ret, err := retrieval.New(store, embedder, cfg.Retrieval)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	ret.ImportanceFn = ComputeDecayScore

	rec := reconcile.New(store, judge, cfg.Reconcile)

	return &Coordinator{
		resolver:   res,
		retriever:  ret,
		reconciler: rec,
		store:      store,
		embedder:   embedder,
	}, nil
}

// ConfirmAlias records an explicit user confirmation that a mention refers
// to an entity, upgrading future resolutions of that surface form.
func (c *Coordinator) ConfirmAlias(ctx context.Context, userID, mentionText, entityID string) error {
	return c.resolver.ConfirmAlias(ctx, userID, mentionText, entityID)
}

// Remember stores a new memory, embedding its content when a provider is
// available.
func (c *Coordinator) Remember(ctx context.Context, memory *types.Memory) error {
	if c.embedder != nil && len(memory.Embedding) == 0 {
		embedding, err := c.embedder.Embed(ctx, memory.Content)
		if err != nil {
			return fmt.Errorf("engine: embed memory: %w", err)
		}
		memory.Embedding = embedding
		memory.EmbeddingModel = c.embedder.GetEmbeddingModel()
		memory.EmbeddingDimension = len(embedding)
	}
	if err := c.store.Store(ctx, memory); err != nil {
		return fmt.Errorf("engine: store memory: %w", err)
	}
	return nil
}

// ProcessQuery runs one turn through the pipeline: resolve every mention,
// short-circuit on ambiguity, retrieve and rank memories, reconcile them
// against the supplied domain facts, and bundle provenance.
func (c *Coordinator) ProcessQuery(ctx context.Context, input QueryInput) (*QueryResult, error) {
	if input.Text == "" {
		return nil, fmt.Errorf("engine: %w: query text is required", storage.ErrInvalidInput)
	}
	now := input.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	mentions := input.Mentions
	if len(mentions) == 0 {
		// Mention extraction is the caller's concern; without it the whole
		// text is treated as one mention so exact and alias hits still work.
		mentions = []types.Mention{{Text: input.Text, Start: 0, End: len(input.Text)}}
	}

	hints, err := c.buildHints(ctx, input)
	if err != nil {
		return nil, err
	}

	result := &QueryResult{
		Provenance: Provenance{
			Weights: c.retriever.Weights(),
			Methods: make(map[string]types.ResolutionMethod),
		},
	}

	var entityIDs []string
	for _, mention := range mentions {
		resolution, err := c.resolver.Resolve(ctx, input.UserID, mention, hints)
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}

		switch resolution.Outcome {
		case resolver.OutcomeAmbiguous:
			// A near-tie means any guess would be wrong too often. Stop the
			// whole turn and hand the tie back to the caller.
			result.DisambiguationRequired = true
			result.Disambiguations = append(result.Disambiguations, *resolution)

		case resolver.OutcomeResolved:
			result.ResolvedEntities = append(result.ResolvedEntities, *resolution.Entity)
			result.Provenance.Methods[resolution.Entity.MentionText] = resolution.Entity.Method
			entityIDs = append(entityIDs, resolution.Entity.EntityID)

		default:
			result.Unresolved = append(result.Unresolved, resolution.MentionText)
		}
	}

	if result.DisambiguationRequired {
		return result, nil
	}

	memories, err := c.retriever.Retrieve(ctx, retrieval.Query{
		UserID:    input.UserID,
		Text:      input.Text,
		SessionID: input.SessionID,
		EntityIDs: entityIDs,
		Now:       now,
	})
	if err != nil {
		if c.embedder == nil && errors.Is(err, retrieval.ErrEmbedding) {
			// No provider configured: the deployment opted out of similarity
			// search, so the turn still answers with resolved entities. A
			// configured provider failing to embed is a transport fault and
			// propagates; silence would be indistinguishable from an empty
			// memory store.
			result.Degraded = true
			return result, nil
		}
		return nil, fmt.Errorf("engine: %w", err)
	}
	result.Memories = memories

	for _, m := range memories {
		result.Provenance.Memories = append(result.Provenance.Memories, MemoryProvenance{
			MemoryID: m.MemoryID,
			Signals:  m.Signals,
			Score:    m.RelevanceScore,
		})
	}

	conflicts, err := c.reconcileFacts(ctx, memories, input.DomainFacts)
	if err != nil {
		return nil, err
	}
	result.Conflicts = conflicts

	return result, nil
}

// buildHints assembles the coreference stage's context from the input.
func (c *Coordinator) buildHints(ctx context.Context, input QueryInput) (resolver.Hints, error) {
	hints := resolver.Hints{RecentTurns: input.RecentTurns}

	for _, id := range input.RecentEntityIDs {
		entity, err := c.store.GetEntity(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return hints, fmt.Errorf("engine: load recent entity %s: %w", id, err)
		}
		hints.RecentEntities = append(hints.RecentEntities, llm.CandidateEntity{
			EntityID: entity.ID,
			Name:     entity.Name,
			Type:     entity.Type,
		})
	}

	return hints, nil
}

// reconcileFacts checks every supplied domain fact against the retrieved
// memories. Conflicts are output, never errors; only transport and storage
// failures abort.
func (c *Coordinator) reconcileFacts(ctx context.Context, candidates []types.MemoryCandidate, facts []types.DomainFact) ([]types.ConflictRecord, error) {
	if len(facts) == 0 || len(candidates) == 0 {
		return nil, nil
	}

	existing := make([]reconcile.Observation, 0, len(candidates))
	for _, candidate := range candidates {
		memory, err := c.store.Get(ctx, candidate.MemoryID)
		if err != nil {
			return nil, fmt.Errorf("engine: load memory %s: %w", candidate.MemoryID, err)
		}
		existing = append(existing, reconcile.FromMemory(memory))
	}

	var conflicts []types.ConflictRecord
	for _, fact := range facts {
		var embedding []float32
		if c.embedder != nil {
			var err error
			embedding, err = c.embedder.Embed(ctx, fact.Value)
			if err != nil {
				return nil, fmt.Errorf("engine: embed domain fact: %w", err)
			}
		}

		records, err := c.reconciler.Reconcile(ctx, existing, reconcile.FromDomainFact(fact, embedding))
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		conflicts = append(conflicts, records...)
	}

	return conflicts, nil
}
