// Package resolver implements the entity resolution cascade: five stages
// ordered by decreasing precision and increasing cost, from free exact
// lookups down to LLM coreference and domain database bootstrap. The first
// stage to produce an answer wins; ambiguity short-circuits the cascade and
// surfaces a disambiguation request instead of a guess.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// Outcome classifies the result of resolving one mention.
type Outcome string

const (
	// OutcomeResolved means a single entity was chosen with calibrated confidence.
	OutcomeResolved Outcome = "resolved"

	// OutcomeAmbiguous means multiple candidates scored too close together;
	// the caller must ask the user instead of accepting a guess.
	OutcomeAmbiguous Outcome = "ambiguous"

	// OutcomeUnresolved means every stage declined; the mention is passed
	// through as free text.
	OutcomeUnresolved Outcome = "unresolved"
)

// Candidate is one of the near-tied entities behind an ambiguous outcome.
type Candidate struct {
	EntityID string  `json:"entity_id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Score    float64 `json:"score"`
}

// Resolution is the full outcome of resolving a single mention.
type Resolution struct {
	MentionText string  `json:"mention_text"`
	Outcome     Outcome `json:"outcome"`

	// Entity is set when Outcome is OutcomeResolved.
	Entity *types.ResolvedEntity `json:"entity,omitempty"`

	// Candidates is set when Outcome is OutcomeAmbiguous, ordered by score
	// descending.
	Candidates []Candidate `json:"candidates,omitempty"`
}

// Hints carries per-request conversational context consumed by the inference
// stages. All fields are optional; empty hints simply mean the coreference
// stage has nothing to work with and declines.
type Hints struct {
	// RecentTurns is the recent conversation, oldest first.
	RecentTurns []string

	// RecentEntities are entities resolved in recent turns, the candidate
	// set for pronoun and definite-reference resolution.
	RecentEntities []llm.CandidateEntity
}

// Resolver runs the cascade. It is safe for concurrent use: all mutable
// state lives in the store and the internal LRU, both of which synchronize
// internally.
type Resolver struct {
	entities storage.EntityStore
	domain   storage.DomainStore
	coref    llm.CoreferenceResolver
	cfg      config.ResolverConfig
	cache    *resolutionCache
}

// New constructs a Resolver. The coreference resolver may be nil, in which
// case the inference stage always declines.
func New(entities storage.EntityStore, domain storage.DomainStore, coref llm.CoreferenceResolver, cfg config.ResolverConfig) (*Resolver, error) {
	cache, err := newResolutionCache(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("resolver: create cache: %w", err)
	}

	return &Resolver{
		entities: entities,
		domain:   domain,
		coref:    coref,
		cfg:      cfg,
		cache:    cache,
	}, nil
}

// Resolve runs the cascade for one mention. Stage order is fixed: exact,
// alias, fuzzy, llm coreference, domain bootstrap. Storage failures in the
// deterministic stages abort the request; inference stage failures and
// timeouts fall through to the next stage.
func (r *Resolver) Resolve(ctx context.Context, userID string, mention types.Mention, hints Hints) (*Resolution, error) {
	normalized := Normalize(mention.Text)
	if normalized == "" {
		return &Resolution{MentionText: mention.Text, Outcome: OutcomeUnresolved}, nil
	}

	if cached, ok := r.cache.get(userID, normalized); ok {
		resolved := cached
		resolved.MentionText = mention.Text
		return &Resolution{MentionText: mention.Text, Outcome: OutcomeResolved, Entity: &resolved}, nil
	}

	type stage struct {
		name string
		run  func(ctx context.Context, userID, mentionText, normalized string, hints Hints) (*Resolution, error)
	}
	stages := []stage{
		{"exact", r.resolveExact},
		{"alias", r.resolveAlias},
		{"fuzzy", r.resolveFuzzy},
		{"llm_coreference", r.resolveCoreference},
		{"domain_bootstrap", r.resolveBootstrap},
	}

	for _, s := range stages {
		resolution, err := s.run(ctx, userID, mention.Text, normalized, hints)
		if err != nil {
			return nil, fmt.Errorf("resolver: stage %s: %w", s.name, err)
		}
		if resolution == nil {
			continue
		}

		if resolution.Outcome == OutcomeResolved {
			if err := resolution.Entity.Validate(); err != nil {
				// Band violations are fatal; confidence is never clamped here.
				return nil, fmt.Errorf("resolver: stage %s: %w", s.name, err)
			}
			if resolution.Entity.Method == types.MethodExact || resolution.Entity.Method == types.MethodAlias {
				r.cache.put(userID, normalized, *resolution.Entity)
			}
		}

		return resolution, nil
	}

	return &Resolution{MentionText: mention.Text, Outcome: OutcomeUnresolved}, nil
}

// ConfirmAlias records an explicit user confirmation that a mention refers
// to an entity. This is the only path by which inference-stage resolutions
// become durable aliases: the cascade itself never persists LLM guesses.
func (r *Resolver) ConfirmAlias(ctx context.Context, userID, mentionText, entityID string) error {
	normalized := Normalize(mentionText)
	if normalized == "" || entityID == "" {
		return fmt.Errorf("resolver: %w: mention and entity ID are required", storage.ErrInvalidInput)
	}

	if _, err := r.entities.GetEntity(ctx, entityID); err != nil {
		return fmt.Errorf("resolver: confirm alias target: %w", err)
	}

	confirmations := 1
	existing, _, err := r.entities.FindAlias(ctx, userID, normalized)
	switch {
	case err == nil:
		if existing.EntityID == entityID {
			confirmations = existing.Confirmations + 1
		}
	case errors.Is(err, storage.ErrNotFound):
		// First confirmation for this surface form.
	default:
		return fmt.Errorf("resolver: confirm alias lookup: %w", err)
	}

	alias := &types.Alias{
		UserID:            userID,
		Mention:           mentionText,
		NormalizedMention: normalized,
		EntityID:          entityID,
		Confirmations:     confirmations,
	}
	if err := r.entities.UpsertAlias(ctx, alias); err != nil {
		return fmt.Errorf("resolver: confirm alias: %w", err)
	}

	// Cached resolutions for this surface form may now point at the wrong
	// entity or carry a stale confidence.
	r.cache.invalidate(userID, normalized)

	return nil
}
